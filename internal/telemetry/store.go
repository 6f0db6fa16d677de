// Package telemetry persists span records emitted by any component (a turn,
// a tool call, a backoff wait) into an embedded SQLite store. Spans are
// buffered in memory and flushed to disk in a single transaction, either
// when the batch fills up or a flush interval elapses, whichever comes first.
package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/binlecode/agentcore/internal/retry"
	"github.com/binlecode/agentcore/pkg/models"
)

const (
	// DefaultFlushInterval is how long the store waits before flushing a
	// partially-filled batch.
	DefaultFlushInterval = 5 * time.Second

	// DefaultBatchSize is how many spans trigger an immediate flush.
	DefaultBatchSize = 200

	// lockRetryAttempts bounds how many times a batch write retries after
	// a "database is locked" error before the batch is dropped.
	lockRetryAttempts = 5
)

// Config configures a Store.
type Config struct {
	// Path is the SQLite database file. Empty means in-memory (":memory:"),
	// useful for tests.
	Path string

	// FlushInterval is the maximum time a span waits in the buffer before
	// being written out. Defaults to DefaultFlushInterval.
	FlushInterval time.Duration

	// BatchSize is the number of buffered spans that forces an immediate
	// flush. Defaults to DefaultBatchSize.
	BatchSize int
}

// Store buffers SpanRecords and flushes them to an embedded SQLite database.
type Store struct {
	db  *sql.DB
	log zerolog.Logger

	flushInterval time.Duration
	batchSize     int

	mu      sync.Mutex
	buf     []models.SpanRecord
	closing chan struct{}
	flushed chan struct{}
	wg      sync.WaitGroup
}

// New opens (or creates) the SQLite database at cfg.Path, applies schema
// and pragmas, and starts the background flush loop.
func New(cfg Config, log zerolog.Logger) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry store: %w", err)
	}
	// A single writer connection avoids "database is locked" churn under WAL;
	// readers (the status viewer) open their own short-lived connections.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:            db,
		log:           log.With().Str("component", "telemetry").Logger(),
		flushInterval: flushInterval,
		batchSize:     batchSize,
		closing:       make(chan struct{}),
		flushed:       make(chan struct{}, 1),
	}

	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.flushLoop()

	return s, nil
}

func (s *Store) init() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS spans (
			trace_id   TEXT NOT NULL,
			span_id    TEXT NOT NULL,
			parent_id  TEXT,
			name       TEXT NOT NULL,
			start_ns   INTEGER NOT NULL,
			end_ns     INTEGER NOT NULL,
			attributes TEXT,
			status     TEXT NOT NULL,
			PRIMARY KEY (trace_id, span_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("create spans table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_spans_trace ON spans(trace_id)",
		"CREATE INDEX IF NOT EXISTS idx_spans_start ON spans(start_ns)",
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("create span index: %w", err)
		}
	}
	return nil
}

// Record buffers a span for the next flush. It never blocks on disk I/O.
func (s *Store) Record(span models.SpanRecord) {
	s.mu.Lock()
	s.buf = append(s.buf, span)
	full := len(s.buf) >= s.batchSize
	s.mu.Unlock()

	if full {
		select {
		case s.flushed <- struct{}{}:
		default:
		}
	}
}

func (s *Store) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush(context.Background())
		case <-s.flushed:
			s.flush(context.Background())
		case <-s.closing:
			s.flush(context.Background())
			return
		}
	}
}

// flush writes the current buffer to disk in a single transaction.
func (s *Store) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.buf) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.buf
	s.buf = nil
	s.mu.Unlock()

	result := retry.Do(ctx, retry.Exponential(lockRetryAttempts, 20*time.Millisecond, time.Second), func() error {
		err := s.writeBatch(ctx, batch)
		if err != nil && !isDatabaseLocked(err) {
			return &retry.PermanentError{Err: err}
		}
		return err
	})
	if result.Err != nil {
		s.log.Warn().
			Err(result.Err).
			Int("count", len(batch)).
			Int("attempts", result.Attempts).
			Dur("retry_duration", result.Duration).
			Msg("telemetry flush failed, spans dropped")
	}
}

// isDatabaseLocked reports whether err is a SQLITE_BUSY/"database is
// locked" condition, the one failure writeBatch's bounded backoff
// retries; every other error is treated as permanent.
func isDatabaseLocked(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func (s *Store) writeBatch(ctx context.Context, batch []models.SpanRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO spans (trace_id, span_id, parent_id, name, start_ns, end_ns, attributes, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, span := range batch {
		attrs, err := json.Marshal(span.Attributes)
		if err != nil {
			return fmt.Errorf("marshal attributes: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			span.TraceID,
			span.SpanID,
			nullString(span.ParentID),
			span.Name,
			span.StartNanos,
			span.EndNanos,
			string(attrs),
			span.Status,
		); err != nil {
			return fmt.Errorf("insert span %s/%s: %w", span.TraceID, span.SpanID, err)
		}
	}

	return tx.Commit()
}

// Recent returns the most recently started spans for a trace, newest first,
// used by the status viewer. It reads directly; it does not include spans
// still sitting in the in-memory buffer awaiting flush.
func (s *Store) Recent(ctx context.Context, traceID string, limit int) ([]models.SpanRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, span_id, parent_id, name, start_ns, end_ns, attributes, status
		FROM spans
		WHERE trace_id = ? OR ? = ''
		ORDER BY start_ns DESC
		LIMIT ?
	`, traceID, traceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query spans: %w", err)
	}
	defer rows.Close()

	var out []models.SpanRecord
	for rows.Next() {
		var (
			span      models.SpanRecord
			parentID  sql.NullString
			attrsBlob string
		)
		if err := rows.Scan(&span.TraceID, &span.SpanID, &parentID, &span.Name, &span.StartNanos, &span.EndNanos, &attrsBlob, &span.Status); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}
		span.ParentID = parentID.String
		if attrsBlob != "" {
			if err := json.Unmarshal([]byte(attrsBlob), &span.Attributes); err != nil {
				return nil, fmt.Errorf("unmarshal attributes: %w", err)
			}
		}
		out = append(out, span)
	}
	return out, rows.Err()
}

// Close flushes any remaining buffered spans and closes the database.
func (s *Store) Close() error {
	close(s.closing)
	s.wg.Wait()
	return s.db.Close()
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
