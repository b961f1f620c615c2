// Package judging models a judge's working sheet for one event: a row per
// applied participant that the judge edits locally and saves one at a time.
package judging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/internal/domain/scoring"
	"github.com/okian/stark/pkg/errs"
)

// Errors returned by Sheet operations.
var (
	ErrUnknownParticipant = errors.New("participant has not applied to this event")
	ErrUnknownField       = errors.New("unknown score field")
)

// Saver upserts one evaluation keyed on (event, participant, judge) and
// returns the stored id.
type Saver interface {
	UpsertEvaluation(ctx context.Context, e model.Evaluation) (string, error)
}

// Participant is a sheet row's subject.
type Participant struct {
	ID   string
	Name string
}

// Row is one participant's line on a judge's sheet.
type Row struct {
	ParticipantID string
	Name          string
	EvaluationID  string
	Scores        model.Scores
}

// Average is the live judge average of the row.
func (r Row) Average() float64 {
	return scoring.JudgeAverage(r.Scores)
}

// Sheet is not safe for concurrent use.
type Sheet struct {
	EventID string
	JudgeID string

	rows  []Row
	index map[string]int
	saver Saver
	now   func() time.Time
}

// NewSheet builds a sheet with one row per participant, in the given order.
// Existing evaluations by judgeID fill their rows; other rows start unset.
func NewSheet(eventID, judgeID string, participants []Participant, existing []model.Evaluation, saver Saver) *Sheet {
	s := &Sheet{
		EventID: eventID,
		JudgeID: judgeID,
		rows:    make([]Row, 0, len(participants)),
		index:   make(map[string]int, len(participants)),
		saver:   saver,
		now:     time.Now,
	}
	for _, p := range participants {
		if _, dup := s.index[p.ID]; dup {
			continue
		}
		name := p.Name
		if name == "" {
			name = model.PlaceholderParticipant
		}
		s.index[p.ID] = len(s.rows)
		s.rows = append(s.rows, Row{ParticipantID: p.ID, Name: name})
	}
	for _, e := range existing {
		if e.JudgeID != judgeID || e.EventID != eventID {
			continue
		}
		if i, ok := s.index[e.ParticipantID]; ok {
			s.rows[i].EvaluationID = e.ID
			s.rows[i].Scores = e.Scores
		}
	}
	return s
}

// Rows returns a copy of the rows in sheet order.
func (s *Sheet) Rows() []Row {
	out := make([]Row, len(s.rows))
	copy(out, s.rows)
	return out
}

// Row returns the row for participantID.
func (s *Sheet) Row(participantID string) (Row, bool) {
	i, ok := s.index[participantID]
	if !ok {
		return Row{}, false
	}
	return s.rows[i], true
}

// SetScore parses raw form input into field of the participant's row. The
// store is not touched.
func (s *Sheet) SetScore(participantID string, field model.Field, raw string) error {
	const op = "judging.set_score"
	i, ok := s.index[participantID]
	if !ok {
		return errs.WrapKind(op, errs.ErrNotFound, ErrUnknownParticipant)
	}
	if !field.Valid() {
		return errs.WrapKind(op, errs.ErrInvalid, fmt.Errorf("%w: %q", ErrUnknownField, field))
	}
	s.rows[i].Scores.Set(field, scoring.ParseInput(raw))
	return nil
}

// SetScores replaces all four sub-scores of the row, clamping set values.
func (s *Sheet) SetScores(participantID string, scores model.Scores) error {
	i, ok := s.index[participantID]
	if !ok {
		return errs.WrapKind("judging.set_scores", errs.ErrNotFound, ErrUnknownParticipant)
	}
	s.rows[i].Scores = scoring.ClampScores(scores)
	return nil
}

// Best returns the participant whose row average is strictly highest,
// taking the first on ties. An all-zero sheet flags its first row; an empty
// sheet flags nothing.
func (s *Sheet) Best() (string, bool) {
	bestID, bestAvg := "", -1.0
	for _, r := range s.rows {
		if avg := r.Average(); avg > bestAvg {
			bestID, bestAvg = r.ParticipantID, avg
		}
	}
	return bestID, bestID != ""
}

// OverallAverage is the mean of the row averages, 0 for an empty sheet.
func (s *Sheet) OverallAverage() float64 {
	avgs := make([]float64, len(s.rows))
	for i, r := range s.rows {
		avgs[i] = r.Average()
	}
	return scoring.Mean(avgs)
}

// Save upserts the participant's row. On success the row takes the stored id;
// on failure the local edit is kept and the error returned for a retry.
func (s *Sheet) Save(ctx context.Context, participantID string) (Row, error) {
	const op = "judging.save"
	i, ok := s.index[participantID]
	if !ok {
		return Row{}, errs.WrapKind(op, errs.ErrNotFound, ErrUnknownParticipant)
	}
	row := s.rows[i]
	id, err := s.saver.UpsertEvaluation(ctx, model.Evaluation{
		ID:            row.EvaluationID,
		EventID:       s.EventID,
		ParticipantID: row.ParticipantID,
		JudgeID:       s.JudgeID,
		Scores:        scoring.ClampScores(row.Scores),
		UpdatedAt:     s.now().UTC(),
	})
	if err != nil {
		return row, errs.Wrap(op, err)
	}
	s.rows[i].EvaluationID = id
	return s.rows[i], nil
}
