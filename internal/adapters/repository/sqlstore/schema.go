package sqlstore

import (
	"context"
	"fmt"
)

// CreateSchema creates every table. Safe to call repeatedly.
func (s *Store) CreateSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// The statements stay within the subset shared by SQLite and PostgreSQL.
const schema = `
CREATE TABLE IF NOT EXISTS profiles (
    id TEXT PRIMARY KEY,
    role TEXT NOT NULL,
    sub_role TEXT,
    full_name TEXT NOT NULL DEFAULT '',
    avatar_url TEXT,
    website TEXT,
    approval_status TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    event_date TIMESTAMP,
    location TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_company_id ON events(company_id);

CREATE TABLE IF NOT EXISTS applications (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    participant_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (event_id, participant_id)
);

CREATE INDEX IF NOT EXISTS idx_applications_event_id ON applications(event_id);

CREATE TABLE IF NOT EXISTS judge_assignments (
    event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    judge_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (event_id, judge_id)
);

CREATE INDEX IF NOT EXISTS idx_judge_assignments_judge_id ON judge_assignments(judge_id);

CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    participant_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    judge_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    score_teamwork REAL,
    score_idea REAL,
    score_execution REAL,
    score_business REAL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (event_id, participant_id, judge_id)
);

CREATE INDEX IF NOT EXISTS idx_evaluations_event_id ON evaluations(event_id);

CREATE TABLE IF NOT EXISTS audit_logs (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    action TEXT NOT NULL,
    details TEXT,
    ip_address TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_user_created ON audit_logs(user_id, created_at);
`
