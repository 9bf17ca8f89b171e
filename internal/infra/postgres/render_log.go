package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// RenderEvent is one audited /generate-pdf request. Documents themselves are
// never stored.
type RenderEvent struct {
	RequestID  string    `json:"request_id"`
	// Username is stored but never served by /ops/renders.
	Username   string    `json:"-"`
	Outcome    string    `json:"outcome"`
	Tier       string    `json:"tier,omitempty"`
	Cached     bool      `json:"cached"`
	HTMLBytes  int       `json:"html_bytes"`
	PDFBytes   int       `json:"pdf_bytes"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RenderLog writes RenderEvents to the render_log table.
type RenderLog struct {
	db *sql.DB
}

func NewRenderLog(db *sql.DB) *RenderLog {
	return &RenderLog{db: db}
}

// EnsureSchema creates the table and its index when missing.
func (l *RenderLog) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ddl1 := `CREATE TABLE IF NOT EXISTS render_log (
		id BIGSERIAL PRIMARY KEY,
		request_id TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL,
		outcome TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT '',
		cached BOOLEAN NOT NULL DEFAULT false,
		html_bytes INTEGER NOT NULL,
		pdf_bytes INTEGER NOT NULL DEFAULT 0,
		duration_ms BIGINT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`
	ddl2 := `CREATE INDEX IF NOT EXISTS idx_render_log_created_at ON render_log (created_at);`
	if _, err := l.db.ExecContext(ctx, ddl1); err != nil {
		return err
	}
	if _, err := l.db.ExecContext(ctx, ddl2); err != nil {
		return err
	}
	return nil
}

// Record inserts ev. A zero CreatedAt is set to now.
func (l *RenderLog) Record(ctx context.Context, ev RenderEvent) error {
	if l == nil || l.db == nil {
		return errors.New("render log disabled")
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO render_log (request_id, username, outcome, tier, cached, html_bytes, pdf_bytes, duration_ms, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ev.RequestID, ev.Username, ev.Outcome, ev.Tier, ev.Cached,
		ev.HTMLBytes, ev.PDFBytes, ev.DurationMS, ev.Error, ev.CreatedAt,
	)
	return err
}

// Recent returns up to limit events, newest first.
func (l *RenderLog) Recent(ctx context.Context, limit int) ([]RenderEvent, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("render log disabled")
	}
	switch {
	case limit <= 0:
		limit = 50
	case limit > 500:
		limit = 500
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := l.db.QueryContext(ctx,
		`SELECT request_id, username, outcome, tier, cached, html_bytes, pdf_bytes, duration_ms, error, created_at
		 FROM render_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RenderEvent
	for rows.Next() {
		var ev RenderEvent
		if err := rows.Scan(&ev.RequestID, &ev.Username, &ev.Outcome, &ev.Tier, &ev.Cached,
			&ev.HTMLBytes, &ev.PDFBytes, &ev.DurationMS, &ev.Error, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
