// Package seed loads demo data into a store and checks the resulting boards.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okian/stark/internal/adapters/repository"
	"github.com/okian/stark/internal/domain/model"
)

// Error constants.
var (
	ErrEmptyFixture = errors.New("fixture has no events")
	ErrDangling     = errors.New("fixture references an unknown id")
)

// Fixture is a self-contained data set. Evaluations reference the events,
// participants and judges declared alongside them.
type Fixture struct {
	Profiles     []model.Profile         `yaml:"profiles"`
	Events       []model.Event           `yaml:"events"`
	Applications []model.Application     `yaml:"applications"`
	Assignments  []model.JudgeAssignment `yaml:"assignments"`
	Evaluations  []model.Evaluation      `yaml:"evaluations"`
}

// Summary counts what Apply wrote.
type Summary struct {
	Profiles     int
	Events       int
	Applications int
	Assignments  int
	Evaluations  int
}

// Parse decodes a YAML fixture. Unknown keys are rejected.
func Parse(data []byte) (*Fixture, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads and parses the fixture at path.
func LoadFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return Parse(data)
}

// Marshal renders f as YAML.
func (f *Fixture) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}

// Validate checks that every reference resolves inside the fixture.
func (f *Fixture) Validate() error {
	if len(f.Events) == 0 {
		return ErrEmptyFixture
	}
	profiles := make(map[string]struct{}, len(f.Profiles))
	for _, p := range f.Profiles {
		profiles[p.ID] = struct{}{}
	}
	events := make(map[string]struct{}, len(f.Events))
	for _, ev := range f.Events {
		events[ev.ID] = struct{}{}
		if _, ok := profiles[ev.CompanyID]; !ok {
			return fmt.Errorf("%w: event %s company %s", ErrDangling, ev.ID, ev.CompanyID)
		}
	}
	known := func(kind, eventID string, ids ...string) error {
		if _, ok := events[eventID]; !ok {
			return fmt.Errorf("%w: %s event %s", ErrDangling, kind, eventID)
		}
		for _, id := range ids {
			if _, ok := profiles[id]; !ok {
				return fmt.Errorf("%w: %s profile %s", ErrDangling, kind, id)
			}
		}
		return nil
	}
	for _, a := range f.Applications {
		if err := known("application", a.EventID, a.ParticipantID); err != nil {
			return err
		}
	}
	for _, ja := range f.Assignments {
		if err := known("assignment", ja.EventID, ja.JudgeID); err != nil {
			return err
		}
	}
	for _, e := range f.Evaluations {
		if err := known("evaluation", e.EventID, e.ParticipantID, e.JudgeID); err != nil {
			return err
		}
	}
	return nil
}

// Apply writes the fixture in dependency order. Rows that already exist are
// updated or skipped by the store, so applying twice is safe.
func Apply(ctx context.Context, w repository.Writer, f *Fixture) (Summary, error) {
	var s Summary
	for _, p := range f.Profiles {
		if err := w.PutProfile(ctx, p); err != nil {
			return s, fmt.Errorf("profile %s: %w", p.ID, err)
		}
		s.Profiles++
	}
	for _, ev := range f.Events {
		if err := w.PutEvent(ctx, ev); err != nil {
			return s, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		s.Events++
	}
	for _, a := range f.Applications {
		if err := w.PutApplication(ctx, a); err != nil {
			return s, fmt.Errorf("application %s/%s: %w", a.EventID, a.ParticipantID, err)
		}
		s.Applications++
	}
	for _, ja := range f.Assignments {
		if err := w.PutAssignment(ctx, ja); err != nil {
			return s, fmt.Errorf("assignment %s/%s: %w", ja.EventID, ja.JudgeID, err)
		}
		s.Assignments++
	}
	for _, e := range f.Evaluations {
		if _, err := w.UpsertEvaluation(ctx, e); err != nil {
			return s, fmt.Errorf("evaluation %s/%s/%s: %w", e.EventID, e.ParticipantID, e.JudgeID, err)
		}
		s.Evaluations++
	}
	return s, nil
}
