package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"

	"gridsettle/settlement"
)

// Storage wraps the settlement history persistence layer.
type Storage struct {
	db *sql.DB
}

var (
	// ErrPathRequired is returned when the backing store path is missing.
	ErrPathRequired = errors.New("storage: database path must be configured")
	// ErrRunNotFound is returned when no run exists for the identifier.
	ErrRunNotFound = errors.New("storage: settlement run not found")
)

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(path string) (*Storage, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Run summarises one settlement run.
type Run struct {
	ID            uuid.UUID `json:"id"`
	ClaimCount    int       `json:"claimCount"`
	GroupCount    int       `json:"groupCount"`
	SettledClaims int       `json:"settledClaims"`
	FailedClaims  int       `json:"failedClaims"`
	Indeterminate int       `json:"indeterminateClaims"`
	FeeEstimate   uint64    `json:"feeEstimate"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// RecordRun persists a run summary together with its per-claim outcomes.
func (s *Storage) RecordRun(ctx context.Context, run Run, claims []settlement.MintClaim, outcomes []settlement.Outcome) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if run.ID == uuid.Nil {
		return fmt.Errorf("run id required")
	}
	if len(claims) != len(outcomes) {
		return fmt.Errorf("claim/outcome length mismatch: %d vs %d", len(claims), len(outcomes))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run record: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO settlement_runs(id, claim_count, group_count, settled_claims, failed_claims, indeterminate_claims, fee_estimate, started_at, finished_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, run.ID.String(), run.ClaimCount, run.GroupCount, run.SettledClaims, run.FailedClaims, run.Indeterminate,
		run.FeeEstimate, run.StartedAt.UTC(), run.FinishedAt.UTC()); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for i, outcome := range outcomes {
		claim := claims[i]
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO claim_outcomes(run_id, claim_id, recipient, account, amount, status, tx_hash, kind, reason, recorded_at)
            VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        `, run.ID.String(), outcome.ClaimID.String(), claim.Recipient, claim.Account, claim.Amount,
			string(outcome.Status), outcome.TxHash, string(outcome.Kind), outcome.Reason, time.Now().UTC()); err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run record: %w", err)
	}
	return nil
}

// GetRun loads the summary row for a run identifier.
func (s *Storage) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	result := Run{}
	if s == nil {
		return result, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT id, claim_count, group_count, settled_claims, failed_claims, indeterminate_claims, fee_estimate, started_at, finished_at
        FROM settlement_runs
        WHERE id = ?
    `, id.String())
	var rawID string
	if err := row.Scan(&rawID, &result.ClaimCount, &result.GroupCount, &result.SettledClaims,
		&result.FailedClaims, &result.Indeterminate, &result.FeeEstimate, &result.StartedAt, &result.FinishedAt); err != nil {
		if err == sql.ErrNoRows {
			return result, ErrRunNotFound
		}
		return result, fmt.Errorf("query run: %w", err)
	}
	parsed, err := uuid.Parse(rawID)
	if err != nil {
		return result, fmt.Errorf("parse run id: %w", err)
	}
	result.ID = parsed
	return result, nil
}

// OutcomeRecord is one persisted per-claim outcome row.
type OutcomeRecord struct {
	RunID     uuid.UUID `json:"runId"`
	ClaimID   uuid.UUID `json:"claimId"`
	Recipient string    `json:"recipient"`
	Account   string    `json:"account"`
	Amount    uint64    `json:"amount"`
	Status    string    `json:"status"`
	TxHash    string    `json:"txHash,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// RunOutcomes returns the persisted outcomes for a run in insertion order.
func (s *Storage) RunOutcomes(ctx context.Context, runID uuid.UUID) ([]OutcomeRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT run_id, claim_id, recipient, account, amount, status, tx_hash, kind, reason
        FROM claim_outcomes
        WHERE run_id = ?
        ORDER BY id ASC
    `, runID.String())
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()
	records := make([]OutcomeRecord, 0)
	for rows.Next() {
		var rec OutcomeRecord
		var rawRun, rawClaim string
		if err := rows.Scan(&rawRun, &rawClaim, &rec.Recipient, &rec.Account, &rec.Amount,
			&rec.Status, &rec.TxHash, &rec.Kind, &rec.Reason); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if rec.RunID, err = uuid.Parse(rawRun); err != nil {
			return nil, fmt.Errorf("parse run id: %w", err)
		}
		if rec.ClaimID, err = uuid.Parse(rawClaim); err != nil {
			return nil, fmt.Errorf("parse claim id: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return records, nil
}

// ClaimHistory returns every persisted outcome for a claim identifier, most
// recent first. Callers retrying failed claims use this to audit attempts.
func (s *Storage) ClaimHistory(ctx context.Context, claimID uuid.UUID) ([]OutcomeRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT run_id, claim_id, recipient, account, amount, status, tx_hash, kind, reason
        FROM claim_outcomes
        WHERE claim_id = ?
        ORDER BY id DESC
    `, claimID.String())
	if err != nil {
		return nil, fmt.Errorf("query claim history: %w", err)
	}
	defer rows.Close()
	records := make([]OutcomeRecord, 0)
	for rows.Next() {
		var rec OutcomeRecord
		var rawRun, rawClaim string
		if err := rows.Scan(&rawRun, &rawClaim, &rec.Recipient, &rec.Account, &rec.Amount,
			&rec.Status, &rec.TxHash, &rec.Kind, &rec.Reason); err != nil {
			return nil, fmt.Errorf("scan claim history: %w", err)
		}
		if rec.RunID, err = uuid.Parse(rawRun); err != nil {
			return nil, fmt.Errorf("parse run id: %w", err)
		}
		if rec.ClaimID, err = uuid.Parse(rawClaim); err != nil {
			return nil, fmt.Errorf("parse claim id: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim history: %w", err)
	}
	return records, nil
}

// Statistics aggregates persisted settlement activity.
type Statistics struct {
	TotalRuns           int64  `json:"totalRuns"`
	TotalClaims         int64  `json:"totalClaims"`
	SettledClaims       int64  `json:"settledClaims"`
	FailedClaims        int64  `json:"failedClaims"`
	IndeterminateClaims int64  `json:"indeterminateClaims"`
	EstimatedFeeUnits   uint64 `json:"estimatedFeeUnits"`
}

// Statistics summarises all recorded runs.
func (s *Storage) Statistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{}
	if s == nil {
		return stats, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(claim_count), 0),
               COALESCE(SUM(settled_claims), 0),
               COALESCE(SUM(failed_claims), 0),
               COALESCE(SUM(indeterminate_claims), 0),
               COALESCE(SUM(fee_estimate), 0)
        FROM settlement_runs
    `)
	if err := row.Scan(&stats.TotalRuns, &stats.TotalClaims, &stats.SettledClaims,
		&stats.FailedClaims, &stats.IndeterminateClaims, &stats.EstimatedFeeUnits); err != nil {
		return stats, fmt.Errorf("query statistics: %w", err)
	}
	return stats, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS settlement_runs (
    id TEXT PRIMARY KEY,
    claim_count INTEGER NOT NULL,
    group_count INTEGER NOT NULL,
    settled_claims INTEGER NOT NULL,
    failed_claims INTEGER NOT NULL,
    indeterminate_claims INTEGER NOT NULL,
    fee_estimate INTEGER NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS claim_outcomes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    recipient TEXT NOT NULL,
    account TEXT NOT NULL,
    amount INTEGER NOT NULL,
    status TEXT NOT NULL,
    tx_hash TEXT NOT NULL,
    kind TEXT NOT NULL,
    reason TEXT NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_claim_outcomes_run ON claim_outcomes(run_id);
CREATE INDEX IF NOT EXISTS idx_claim_outcomes_claim ON claim_outcomes(claim_id);
`
