package dice

import (
	"errors"
	"testing"
)

func TestRollWithinBounds(t *testing.T) {
	r := NewSeeded(1)
	for faces := 1; faces <= MaxFaces; faces++ {
		for i := 0; i < 50; i++ {
			got, err := r.Roll(faces)
			if err != nil {
				t.Fatalf("Roll(%d): %v", faces, err)
			}
			if got < 1 || got > faces {
				t.Fatalf("Roll(%d) = %d, out of range", faces, got)
			}
		}
	}
}

func TestRollRejectsInvalidFaces(t *testing.T) {
	r := NewSeeded(1)
	for _, faces := range []int{0, -1, 101, 1000} {
		_, err := r.Roll(faces)
		if !errors.Is(err, ErrInvalidFaces) {
			t.Fatalf("Roll(%d) error = %v, want %v", faces, err, ErrInvalidFaces)
		}
	}
}

func TestRollDeterministicWithSeed(t *testing.T) {
	a := NewSeeded(42)
	b := NewSeeded(42)
	for i := 0; i < 100; i++ {
		va, _ := a.Roll(20)
		vb, _ := b.Roll(20)
		if va != vb {
			t.Fatalf("roll %d diverged: %d vs %d", i, va, vb)
		}
	}
}

// TestRollUniformity is a coarse statistical check: over many seeded trials
// every face of a d20 should land within 20% of the expected count.
func TestRollUniformity(t *testing.T) {
	const (
		faces  = 20
		trials = 100000
	)
	r := NewSeeded(7)
	counts := make([]int, faces+1)
	for i := 0; i < trials; i++ {
		v, err := r.Roll(faces)
		if err != nil {
			t.Fatalf("Roll: %v", err)
		}
		counts[v]++
	}

	expected := trials / faces
	for face := 1; face <= faces; face++ {
		if counts[face] < expected*8/10 || counts[face] > expected*12/10 {
			t.Errorf("face %d: count %d outside [%d, %d]",
				face, counts[face], expected*8/10, expected*12/10)
		}
	}
}

func TestRollSkill(t *testing.T) {
	r := NewSeeded(3)
	table := DefaultTable()

	result, err := r.RollSkill(table, 60)
	if err != nil {
		t.Fatalf("RollSkill: %v", err)
	}
	if result.Faces != 100 {
		t.Errorf("Faces = %d, want 100", result.Faces)
	}
	if result.Value < 1 || result.Value > 100 {
		t.Errorf("Value = %d, out of range", result.Value)
	}
	if result.Skill != 60 {
		t.Errorf("Skill = %d, want 60", result.Skill)
	}
	want, _ := table.Classify(result.Value, 60)
	if result.Degree != want {
		t.Errorf("Degree = %q, want %q", result.Degree, want)
	}
}

func TestRollSkillRejectsInvalidSkill(t *testing.T) {
	r := NewSeeded(3)
	if _, err := r.RollSkill(DefaultTable(), 0); !errors.Is(err, ErrInvalidSkill) {
		t.Fatalf("error = %v, want %v", err, ErrInvalidSkill)
	}
}
