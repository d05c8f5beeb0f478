package dice

import (
	"errors"
	"fmt"
	"os"

	_ "embed"

	"gopkg.in/yaml.v3"
)

// Degree is the categorical outcome of a percentile roll against a skill.
type Degree string

const (
	DegreeCritical Degree = "Critical"
	DegreeExtreme  Degree = "Extreme Success"
	DegreeHard     Degree = "Hard Success"
	DegreeSuccess  Degree = "Success"
	DegreeFail     Degree = "Fail"
	DegreeFumble   Degree = "Fumble"
)

// ErrInvalidRoll indicates a percentile roll outside [1, 100].
var ErrInvalidRoll = errors.New("roll must be between 1 and 100")

// ErrInvalidSkill indicates a skill value outside [1, 100].
var ErrInvalidSkill = errors.New("skill must be between 1 and 100")

// Band is one row of the resolution table: a roll at or below the bound
// yields the band's degree. The bound is either an absolute Max or the skill
// divided by Divisor (integer floor). Exactly one of the two is set.
type Band struct {
	Degree  Degree `yaml:"degree"`
	Max     int    `yaml:"max,omitempty"`
	Divisor int    `yaml:"divisor,omitempty"`
}

// FumbleRule describes when a high roll is a fumble. Low-skill checks fumble
// on a wider range than high-skill ones.
type FumbleRule struct {
	// LowSkillMax is the highest skill still using the wider fumble range.
	LowSkillMax int `yaml:"low_skill_max"`
	// LowSkillMinRoll is the smallest fumbling roll for low-skill checks.
	LowSkillMinRoll int `yaml:"low_skill_min_roll"`
	// MinRoll is the smallest fumbling roll otherwise.
	MinRoll int `yaml:"min_roll"`
}

// Table is the complete degree-of-success ruleset. Bands are ordered from
// best to worst outcome; rolls matching no band and no fumble rule are fails.
type Table struct {
	Bands  []Band     `yaml:"bands"`
	Fumble FumbleRule `yaml:"fumble"`
}

//go:embed rules.yaml
var defaultRules []byte

// DefaultTable returns the embedded Call of Cthulhu 7th edition table.
func DefaultTable() *Table {
	table, err := parseTable(defaultRules)
	if err != nil {
		// The embedded table is validated by tests; a parse failure here is a
		// build defect, not a runtime condition.
		panic(err)
	}
	return table
}

// LoadTable reads a ruleset from a YAML file.
func LoadTable(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return parseTable(raw)
}

func parseTable(raw []byte) (*Table, error) {
	var table Table
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := table.validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return &table, nil
}

func (t *Table) validate() error {
	if len(t.Bands) == 0 {
		return errors.New("at least one band is required")
	}
	for i, b := range t.Bands {
		if b.Degree == "" {
			return fmt.Errorf("band %d: degree is required", i)
		}
		if (b.Max > 0) == (b.Divisor > 0) {
			return fmt.Errorf("band %d: exactly one of max or divisor must be positive", i)
		}
	}
	if t.Fumble.MinRoll < 1 || t.Fumble.LowSkillMinRoll < 1 {
		return errors.New("fumble rolls must be positive")
	}
	return nil
}

// Classify maps a percentile roll and a skill value to a degree of success.
// The fumble rule is checked first, then each band in order; a roll matching
// nothing is a plain fail.
func (t *Table) Classify(roll, skill int) (Degree, error) {
	if roll < 1 || roll > 100 {
		return "", ErrInvalidRoll
	}
	if skill < 1 || skill > 100 {
		return "", ErrInvalidSkill
	}

	fumbleMin := t.Fumble.MinRoll
	if skill <= t.Fumble.LowSkillMax {
		fumbleMin = t.Fumble.LowSkillMinRoll
	}
	if roll >= fumbleMin {
		return DegreeFumble, nil
	}

	for _, band := range t.Bands {
		bound := band.Max
		if band.Divisor > 0 {
			bound = skill / band.Divisor
		}
		if roll <= bound {
			return band.Degree, nil
		}
	}
	return DegreeFail, nil
}
