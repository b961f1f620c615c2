package model

import "time"

// Event is a hackathon owned by a sponsor company.
type Event struct {
	ID        string     `json:"id" yaml:"id"`
	CompanyID string     `json:"company_id" yaml:"company_id"`
	Title     string     `json:"title" yaml:"title"`
	EventDate *time.Time `json:"event_date,omitempty" yaml:"event_date,omitempty"`
	Location  *string    `json:"location,omitempty" yaml:"location,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
}

// Application records that a participant entered an event.
type Application struct {
	ID            string    `json:"id" yaml:"id"`
	EventID       string    `json:"event_id" yaml:"event_id"`
	ParticipantID string    `json:"participant_id" yaml:"participant_id"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
}

// JudgeAssignment places a judge on an event's panel.
type JudgeAssignment struct {
	EventID string `json:"event_id" yaml:"event_id"`
	JudgeID string `json:"judge_id" yaml:"judge_id"`
}
