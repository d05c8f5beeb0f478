// Package dice implements dice rolling and percentile skill resolution for
// the Keeper. Rolls are plain uniform draws; degree-of-success classification
// walks an ordered band table so the ruleset can be swapped without touching
// control flow.
package dice

import (
	"errors"
	"math/rand"
	"time"
)

// MaxFaces is the largest die the Keeper will roll. Percentile dice (d100)
// are the ceiling in the supported rulesets.
const MaxFaces = 100

// ErrInvalidFaces indicates a face count outside (0, MaxFaces].
var ErrInvalidFaces = errors.New("faces must be between 1 and 100")

// Roller produces uniform die rolls from a swappable random source, so tests
// can seed it deterministically.
type Roller struct {
	rng *rand.Rand
}

// NewRoller creates a time-seeded Roller.
func NewRoller() *Roller {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded creates a Roller with a deterministic seed.
//
// Given the same seed, a Roller always produces the same roll sequence.
func NewSeeded(seed int64) *Roller {
	return &Roller{rng: rand.New(rand.NewSource(seed))}
}

// Roll returns a uniformly distributed integer in [1, faces].
func (r *Roller) Roll(faces int) (int, error) {
	if faces < 1 || faces > MaxFaces {
		return 0, ErrInvalidFaces
	}
	return r.rng.Intn(faces) + 1, nil
}

// Result captures a single resolved roll. Skill and Degree are set only for
// skill checks. Results are ephemeral: they live within one tool call.
type Result struct {
	Faces  int    `json:"faces"`
	Value  int    `json:"value"`
	Skill  int    `json:"skill,omitempty"`
	Degree Degree `json:"degree,omitempty"`
}

// RollSkill rolls percentile dice against a skill value and classifies the
// outcome using the given table.
func (r *Roller) RollSkill(table *Table, skill int) (Result, error) {
	value, err := r.Roll(MaxFaces)
	if err != nil {
		return Result{}, err
	}
	degree, err := table.Classify(value, skill)
	if err != nil {
		return Result{}, err
	}
	return Result{Faces: MaxFaces, Value: value, Skill: skill, Degree: degree}, nil
}
