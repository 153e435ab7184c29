// Package auditsink mirrors FeedbackAudit entries into Postgres when
// POSTGRES_DSN is configured (SPEC_FULL.md §11: optional durability beyond
// the State Store's feedback audit list). It is a side mirror only: the
// State Store's audit:feedback list remains the source of truth the Query
// API reads from.
package auditsink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"dwelltrack/internal/dwellerr"
	"dwelltrack/internal/model"
)

// Sink mirrors feedback audit entries into a `feedback_audit` table.
type Sink struct {
	pool *pgxpool.Pool
}

// Open creates a connection pool against dsn and ensures the mirror table
// exists. Callers should treat a non-nil error as fatal only if a Postgres
// mirror was explicitly requested; an unset DSN means no Sink is built at
// all (see cmd/dwelltrack).
func Open(ctx context.Context, dsn string) (*Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres pool: %v", dwellerr.ErrStoreUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", dwellerr.ErrStoreUnavailable, err)
	}
	s := &Sink{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// ensureSchema performs a best-effort CREATE IF NOT EXISTS; production
// deployments are expected to manage migrations with an external tool.
func (s *Sink) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS feedback_audit (
	id BIGSERIAL PRIMARY KEY,
	operation TEXT NOT NULL,
	payload JSONB NOT NULL,
	ts_ms BIGINT NOT NULL
)`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("%w: create feedback_audit table: %v", dwellerr.ErrStoreUnavailable, err)
	}
	return nil
}

// Append mirrors a single audit entry. Failures here are logged by the
// caller and never block the primary feedback operation: the State Store's
// audit list already recorded it.
func (s *Sink) Append(ctx context.Context, a model.FeedbackAudit) error {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return fmt.Errorf("%w: encode audit payload: %v", dwellerr.ErrInternal, err)
	}
	const stmt = `INSERT INTO feedback_audit (operation, payload, ts_ms) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, stmt, a.Operation, payload, a.TsMs); err != nil {
		return fmt.Errorf("%w: insert audit row: %v", dwellerr.ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *Sink) Close() {
	s.pool.Close()
}
