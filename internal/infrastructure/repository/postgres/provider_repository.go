package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/provider-intel/internal/core/domain"
)

type ProviderRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewProviderRepository(db *sql.DB) *ProviderRepository {
	return &ProviderRepository{db: db, now: time.Now}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	if err := preparePool(db); err != nil {
		return nil, err
	}
	return db, nil
}

// preparePool sizes the pool and checks connectivity. The handle is closed when the
// database cannot be reached.
func preparePool(db *sql.DB) error {
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			slog.Warn("db_close_failed", "error", closeErr)
		}
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}

func (r *ProviderRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across scraper/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS provider_runs (
	run_id TEXT PRIMARY KEY,
	total INTEGER NOT NULL,
	chunks INTEGER NOT NULL,
	summary JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS providers (
	run_id TEXT NOT NULL REFERENCES provider_runs(run_id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	source_id TEXT NOT NULL,
	name TEXT NOT NULL,
	state TEXT NOT NULL,
	activities INTEGER NOT NULL,
	tier SMALLINT NOT NULL,
	relevant BOOLEAN NOT NULL,
	categories JSONB NOT NULL DEFAULT '[]'::jsonb,
	org_type TEXT NOT NULL,
	cross_border BOOLEAN NOT NULL,
	special_market BOOLEAN NOT NULL,
	high_volume BOOLEAN NOT NULL,
	commendation BOOLEAN NOT NULL,
	pitch TEXT NOT NULL,
	record JSONB NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_providers_tier ON providers(run_id, tier);
CREATE INDEX IF NOT EXISTS idx_providers_source_id ON providers(source_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// WriteReport stores a run and all of its classified providers in one transaction.
func (r *ProviderRepository) WriteReport(ctx context.Context, summary domain.RunSummary, records []domain.ClassifiedRecord) error {
	if summary.RunID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "write providers", errors.New("run id is required"))
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin providers tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO provider_runs (run_id, total, chunks, summary, created_at)
VALUES ($1,$2,$3,$4,$5)
`, summary.RunID, summary.Total, summary.Chunks, summaryJSON, r.now().UTC()); err != nil {
		return fmt.Errorf("insert provider run: %w", err)
	}

	for i, rec := range records {
		categoriesJSON, err := json.Marshal(rec.Categories)
		if err != nil {
			return fmt.Errorf("marshal categories: %w", err)
		}
		recordJSON, err := json.Marshal(rec.Record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO providers (
	run_id, position, source_id, name, state, activities, tier, relevant, categories, org_type,
	cross_border, special_market, high_volume, commendation, pitch, record
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`,
			summary.RunID, i, rec.SourceID(), rec.Name(), rec.Record[domain.FieldState], rec.Activities,
			int(rec.Tier), rec.Relevant, categoriesJSON, rec.OrgType,
			rec.CrossBorder, rec.SpecialMarket, rec.HighVolume, rec.Commendation, rec.Pitch, recordJSON,
		); err != nil {
			return fmt.Errorf("insert provider %s: %w", rec.SourceID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit providers tx: %w", err)
	}
	return nil
}

// ListByTier returns a run's providers of one tier in insertion order.
func (r *ProviderRepository) ListByTier(ctx context.Context, runID string, tier domain.Tier) ([]domain.ClassifiedRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT activities, tier, relevant, categories, org_type, cross_border, special_market, high_volume, commendation, pitch, record
FROM providers
WHERE run_id = $1 AND tier = $2
ORDER BY position
`, runID, int(tier))
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ClassifiedRecord, 0)
	for rows.Next() {
		var rec domain.ClassifiedRecord
		var tierValue int
		var categoriesRaw, recordRaw []byte
		if err := rows.Scan(
			&rec.Activities, &tierValue, &rec.Relevant, &categoriesRaw, &rec.OrgType,
			&rec.CrossBorder, &rec.SpecialMarket, &rec.HighVolume, &rec.Commendation, &rec.Pitch, &recordRaw,
		); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		if err := json.Unmarshal(categoriesRaw, &rec.Categories); err != nil {
			return nil, fmt.Errorf("unmarshal categories: %w", err)
		}
		if err := json.Unmarshal(recordRaw, &rec.Record); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		rec.Tier = domain.Tier(tierValue)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}
	return out, nil
}
