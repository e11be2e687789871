package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/david/market-ledger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNoDocument is returned by Latest before the first run has been published.
var ErrNoDocument = errors.New("no ledger document published yet")

// Querier is the subset of *pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store keeps the latest ledger document in a single JSONB row.
type Store struct {
	pool Querier
}

func NewStore(pool Querier) *Store {
	return &Store{pool: pool}
}

// Snapshot is the indexed header of the stored document.
type Snapshot struct {
	GeneratedAt        time.Time `json:"generated_at"`
	OverallScore       float64   `json:"overall_score"`
	OverallStatus      string    `json:"overall_status"`
	TotalOpportunities int       `json:"total_opportunities"`
	UpdatedAt          time.Time `json:"updated_at"`
}

const upsertDocument = `
	INSERT INTO ledger_documents (slot, generated_at, overall_score, overall_status, total_opportunities, document, updated_at)
	VALUES ('latest', $1, $2, $3, $4, $5, NOW())
	ON CONFLICT (slot) DO UPDATE SET
		generated_at = EXCLUDED.generated_at,
		overall_score = EXCLUDED.overall_score,
		overall_status = EXCLUDED.overall_status,
		total_opportunities = EXCLUDED.total_opportunities,
		document = EXCLUDED.document,
		updated_at = NOW()`

// Publish replaces the stored document with doc.
func (s *Store) Publish(ctx context.Context, doc models.Document) error {
	generated, err := time.Parse(time.RFC3339, doc.Generated)
	if err != nil {
		return fmt.Errorf("document timestamp %q: %w", doc.Generated, err)
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.pool.Exec(ctx, upsertDocument,
		generated,
		doc.MarketHealth.OverallScore,
		doc.MarketHealth.OverallStatus,
		doc.Summary.TotalOpportunities,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert ledger document: %w", err)
	}
	return nil
}

// Latest returns the stored document.
func (s *Store) Latest(ctx context.Context) (*models.Document, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM ledger_documents WHERE slot = 'latest'`).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger document: %w", err)
	}

	var doc models.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode stored document: %w", err)
	}
	return &doc, nil
}

// Snapshot returns the header columns of the stored document without decoding it.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	err := s.pool.QueryRow(ctx, `
		SELECT generated_at, overall_score::float8, overall_status, total_opportunities, updated_at
		FROM ledger_documents WHERE slot = 'latest'`).
		Scan(&snap.GeneratedAt, &snap.OverallScore, &snap.OverallStatus, &snap.TotalOpportunities, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger snapshot: %w", err)
	}
	return &snap, nil
}
