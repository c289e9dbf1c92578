package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sequent/internal/session"
)

// Scenario defines one conformance scenario: a CUE package definition,
// an attempt over it, and a step list with expected outcomes. Scenarios
// run against a fresh in-memory store with a fixed clock and seeded
// randomness, so the resulting trace is byte-identical across runs.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Package is the inline CUE package definition the attempt runs over.
	Package string `yaml:"package"`

	// Learner is the learner key; defaults to "learner-1".
	Learner string `yaml:"learner,omitempty"`

	// View selects the session view: execute (default), review, or
	// randomAccess.
	View string `yaml:"view,omitempty"`

	// Grants lists rights granted to the learner beyond CreateAttempt,
	// which every scenario gets.
	Grants []string `yaml:"grants,omitempty"`

	// Seed drives selection and randomization; defaults to 1.
	Seed uint64 `yaml:"seed,omitempty"`

	// Steps is the navigation flow with per-step expectations.
	Steps []Step `yaml:"steps"`
}

// Step is one session operation.
type Step struct {
	// Do names the operation: start, continue, previous, choose,
	// suspend, resume, exit, abandon, reactivate, commit.
	Do string `yaml:"do"`

	// Target is the activity key for choose.
	Target string `yaml:"target,omitempty"`

	// Expect validates the step's outcome; omitted fields are not
	// checked.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is a per-step expectation. Empty fields are skipped.
type Expect struct {
	// Current is the expected current activity key after the step.
	Current string `yaml:"current,omitempty"`

	// Status is the expected session status after the step.
	Status string `yaml:"status,omitempty"`

	// Error is the expected failure: a sequencing rule code (for
	// example "SB.2.1-1"), "invalidOperation", "invalidPackage", or
	// "modeError". Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`
}

var stepOps = map[string]bool{
	"start": true, "continue": true, "previous": true, "choose": true,
	"suspend": true, "resume": true, "exit": true, "abandon": true,
	"reactivate": true, "commit": true,
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Package == "" {
		return fmt.Errorf("package is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	if _, err := s.view(); err != nil {
		return err
	}
	for i, step := range s.Steps {
		if !stepOps[step.Do] {
			return fmt.Errorf("step %d: unknown operation %q", i+1, step.Do)
		}
		if step.Do == "choose" && step.Target == "" {
			return fmt.Errorf("step %d: choose requires a target", i+1)
		}
	}
	return nil
}

func (s *Scenario) view() (session.View, error) {
	switch s.View {
	case "", "execute":
		return session.Execute, nil
	case "review":
		return session.Review, nil
	case "randomAccess":
		return session.RandomAccess, nil
	default:
		return session.Execute, fmt.Errorf("unknown view %q", s.View)
	}
}

func (s *Scenario) seed() uint64 {
	if s.Seed == 0 {
		return 1
	}
	return s.Seed
}

func (s *Scenario) learner() string {
	if s.Learner == "" {
		return "learner-1"
	}
	return s.Learner
}
