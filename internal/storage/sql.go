/*
Copyright 2020 GramLabs, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/thestormforge/optimize-engine/api/v1alpha1"
)

const pqUniqueViolation = "23505"

// addTrialRetries bounds the number-collision retries in AddTrial.
const addTrialRetries = 5

// Schema is the relational layout of the store. Observations live in their
// own table so rung populations are a single indexed query.
const Schema = `
CREATE TABLE IF NOT EXISTS studies (
    id           TEXT PRIMARY KEY,
    spec         JSONB NOT NULL,
    status       TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS trials (
    study_id       TEXT NOT NULL REFERENCES studies (id),
    number         BIGINT NOT NULL,
    assignments    JSONB NOT NULL,
    status         TEXT NOT NULL,
    final_value    DOUBLE PRECISION,
    bracket        INT NOT NULL DEFAULT 0,
    failure_reason TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL,
    completed_at   TIMESTAMPTZ,
    PRIMARY KEY (study_id, number)
);

CREATE TABLE IF NOT EXISTS observations (
    study_id     TEXT NOT NULL,
    trial_number BIGINT NOT NULL,
    rung         INT NOT NULL,
    value        DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (study_id, trial_number, rung),
    FOREIGN KEY (study_id, trial_number) REFERENCES trials (study_id, number)
);

CREATE INDEX IF NOT EXISTS observations_rung_idx
    ON observations (study_id, rung);
`

// SQL is a store backed by a relational database. Per-study linearizability
// comes from transactions scoped to a single study's rows.
type SQL struct {
	db *sqlx.DB
}

var _ Store = &SQL{}

// NewSQL wraps an open database handle; Open is the usual entry point.
func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{db: db}
}

// Open connects to the supplied PostgreSQL URL and ensures the schema exists.
func Open(ctx context.Context, url string) (*SQL, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	s := NewSQL(db)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Init creates the schema if it is not already present.
func (s *SQL) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("initialize store schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQL) Close() error {
	return s.db.Close()
}

type trialRow struct {
	StudyID       string          `db:"study_id"`
	Number        int64           `db:"number"`
	Assignments   json.RawMessage `db:"assignments"`
	Status        string          `db:"status"`
	FinalValue    sql.NullFloat64 `db:"final_value"`
	Bracket       int             `db:"bracket"`
	FailureReason string          `db:"failure_reason"`
	CreatedAt     time.Time       `db:"created_at"`
	CompletedAt   sql.NullTime    `db:"completed_at"`
}

// CreateStudy persists a new study, rejecting duplicate identifiers.
func (s *SQL) CreateStudy(ctx context.Context, study *v1alpha1.Study) error {
	spec, err := json.Marshal(study)
	if err != nil {
		return fmt.Errorf("encode study %q: %w", study.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO studies (id, spec, status, created_at) VALUES ($1, $2, $3, $4)`,
		study.ID, spec, string(study.Status), study.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrStudyExists, study.ID)
	}
	return err
}

// GetStudy returns the study with the supplied identifier.
func (s *SQL) GetStudy(ctx context.Context, id string) (*v1alpha1.Study, error) {
	var row struct {
		Spec        json.RawMessage `db:"spec"`
		Status      string          `db:"status"`
		CompletedAt sql.NullTime    `db:"completed_at"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT spec, status, completed_at FROM studies WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrStudyNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	study := &v1alpha1.Study{}
	if err := json.Unmarshal(row.Spec, study); err != nil {
		return nil, fmt.Errorf("decode study %q: %w", id, err)
	}
	study.Status = v1alpha1.StudyStatus(row.Status)
	if row.CompletedAt.Valid {
		ts := row.CompletedAt.Time
		study.CompletedAt = &ts
	}
	return study, nil
}

// SetStudyStatus transitions the lifecycle state of a study.
func (s *SQL) SetStudyStatus(ctx context.Context, id string, status v1alpha1.StudyStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE studies SET status = $2, completed_at = CASE WHEN $3 THEN NOW() ELSE completed_at END WHERE id = $1`,
		id, string(status), isTerminalStudyStatus(status))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrStudyNotFound, id)
	}
	return nil
}

// AddTrial appends a pending trial to its study and assigns its number.
func (s *SQL) AddTrial(ctx context.Context, trial *v1alpha1.Trial) error {
	assignments, err := json.Marshal(trial.Assignments)
	if err != nil {
		return fmt.Errorf("encode assignments for study %q: %w", trial.StudyID, err)
	}

	// Two writers can read the same MAX(number); the loser hits the primary
	// key and retries against the new maximum.
	for attempt := 0; ; attempt++ {
		err = s.db.GetContext(ctx, &trial.Number,
			`INSERT INTO trials (study_id, number, assignments, status, bracket, created_at)
			 SELECT $1, COALESCE(MAX(number) + 1, 0), $2, $3, $4, $5 FROM trials WHERE study_id = $1
			 RETURNING number`,
			trial.StudyID, assignments, string(trial.Status), trial.Bracket, trial.CreatedAt)
		if isUniqueViolation(err) && attempt < addTrialRetries {
			continue
		}
		if err != nil {
			return fmt.Errorf("add trial to study %q: %w", trial.StudyID, err)
		}
		return nil
	}
}

// UpdateTrial applies a state transition; updates of terminal trials are rejected.
func (s *SQL) UpdateTrial(ctx context.Context, trial *v1alpha1.Trial) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trials SET status = $3, final_value = $4, failure_reason = $5, completed_at = $6
		 WHERE study_id = $1 AND number = $2 AND status NOT IN ('succeeded', 'pruned', 'failed')`,
		trial.StudyID, trial.Number, string(trial.Status),
		nullFloat(trial.FinalValue), trial.FailureReason, nullTime(trial.CompletedAt))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := s.db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM trials WHERE study_id = $1 AND number = $2)`,
			trial.StudyID, trial.Number); err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s/%d", ErrTrialFinalized, trial.StudyID, trial.Number)
		}
		return fmt.Errorf("%w: %s/%d", ErrTrialNotFound, trial.StudyID, trial.Number)
	}
	return nil
}

// ListTrials returns the trials of a study in stable creation order.
func (s *SQL) ListTrials(ctx context.Context, studyID string) ([]v1alpha1.Trial, error) {
	var rows []trialRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT study_id, number, assignments, status, final_value, bracket, failure_reason, created_at, completed_at
		 FROM trials WHERE study_id = $1 ORDER BY number`, studyID)
	if err != nil {
		return nil, err
	}

	trials := make([]v1alpha1.Trial, 0, len(rows))
	index := make(map[int64]int, len(rows))
	for _, row := range rows {
		t := v1alpha1.Trial{
			StudyID:       row.StudyID,
			Number:        row.Number,
			Status:        v1alpha1.TrialStatus(row.Status),
			Bracket:       row.Bracket,
			FailureReason: row.FailureReason,
			CreatedAt:     row.CreatedAt,
		}
		if err := json.Unmarshal(row.Assignments, &t.Assignments); err != nil {
			return nil, fmt.Errorf("decode assignments for %s/%d: %w", studyID, row.Number, err)
		}
		if row.FinalValue.Valid {
			v := row.FinalValue.Float64
			t.FinalValue = &v
		}
		if row.CompletedAt.Valid {
			ts := row.CompletedAt.Time
			t.CompletedAt = &ts
		}
		index[t.Number] = len(trials)
		trials = append(trials, t)
	}

	var obs []struct {
		TrialNumber int64   `db:"trial_number"`
		Rung        int     `db:"rung"`
		Value       float64 `db:"value"`
	}
	err = s.db.SelectContext(ctx, &obs,
		`SELECT trial_number, rung, value FROM observations WHERE study_id = $1 ORDER BY trial_number, rung`, studyID)
	if err != nil {
		return nil, err
	}
	for _, o := range obs {
		if i, ok := index[o.TrialNumber]; ok {
			trials[i].Observations = append(trials[i].Observations, v1alpha1.Observation{Rung: o.Rung, Value: o.Value})
		}
	}
	return trials, nil
}

// RecordObservation records a write-once intermediate value for a trial rung.
func (s *SQL) RecordObservation(ctx context.Context, studyID string, trialNumber int64, obs v1alpha1.Observation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO observations (study_id, trial_number, rung, value) VALUES ($1, $2, $3, $4)`,
		studyID, trialNumber, obs.Rung, obs.Value)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s/%d rung %d", ErrObservationExists, studyID, trialNumber, obs.Rung)
	}
	return err
}

// ObservationsAtRung returns the pruning population for a rung of a bracket,
// ordered by trial creation.
func (s *SQL) ObservationsAtRung(ctx context.Context, studyID string, bracket, rung int) ([]TrialObservation, error) {
	var population []TrialObservation
	err := s.db.SelectContext(ctx, &population,
		`SELECT o.trial_number, o.value
		 FROM observations o JOIN trials t ON t.study_id = o.study_id AND t.number = o.trial_number
		 WHERE o.study_id = $1 AND t.bracket = $2 AND o.rung = $3
		 ORDER BY o.trial_number`, studyID, bracket, rung)
	return population, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func isTerminalStudyStatus(status v1alpha1.StudyStatus) bool {
	switch status {
	case v1alpha1.StudyCompleted, v1alpha1.StudyCancelled, v1alpha1.StudyFailed:
		return true
	}
	return false
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
