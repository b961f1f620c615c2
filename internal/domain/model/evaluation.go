package model

import "time"

// Field names one of the four evaluation criteria.
type Field string

// Criteria, in column order.
const (
	FieldTeamwork  Field = "teamwork"
	FieldIdea      Field = "idea"
	FieldExecution Field = "execution"
	FieldBusiness  Field = "business"
)

// Fields lists every criterion in column order.
var Fields = []Field{FieldTeamwork, FieldIdea, FieldExecution, FieldBusiness} //nolint:gochecknoglobals // fixed criteria list

// Valid reports whether f is one of the four criteria.
func (f Field) Valid() bool {
	switch f {
	case FieldTeamwork, FieldIdea, FieldExecution, FieldBusiness:
		return true
	}
	return false
}

// Scores holds the four sub-scores. A nil pointer means the judge has not set it.
type Scores struct {
	Teamwork  *float64 `json:"teamwork" yaml:"teamwork"`
	Idea      *float64 `json:"idea" yaml:"idea"`
	Execution *float64 `json:"execution" yaml:"execution"`
	Business  *float64 `json:"business" yaml:"business"`
}

// Get returns the sub-score for f, nil for unknown fields.
func (s Scores) Get(f Field) *float64 {
	switch f {
	case FieldTeamwork:
		return s.Teamwork
	case FieldIdea:
		return s.Idea
	case FieldExecution:
		return s.Execution
	case FieldBusiness:
		return s.Business
	}
	return nil
}

// Set stores v under f. Unknown fields are ignored.
func (s *Scores) Set(f Field, v *float64) {
	switch f {
	case FieldTeamwork:
		s.Teamwork = v
	case FieldIdea:
		s.Idea = v
	case FieldExecution:
		s.Execution = v
	case FieldBusiness:
		s.Business = v
	}
}

// Evaluation is one judge's scoring of one participant in one event.
// (EventID, ParticipantID, JudgeID) is unique.
type Evaluation struct {
	ID            string    `json:"id" yaml:"id"`
	EventID       string    `json:"event_id" yaml:"event_id"`
	ParticipantID string    `json:"participant_id" yaml:"participant_id"`
	JudgeID       string    `json:"judge_id" yaml:"judge_id"`
	Scores        `yaml:",inline"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
}

// Score returns a pointer to v.
func Score(v float64) *float64 {
	return &v
}
