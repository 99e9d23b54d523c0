package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"wifiguard/internal/alertq"
	"wifiguard/internal/config"
)

// Store manages journal persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.JournalPath())
}

// OpenPath opens the journal at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite db: %w", err)
	}

	store := &Store{db: db, path: filepath.Clean(dbPath)}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// connPragmas run on every pooled connection as the driver opens it.
var connPragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
}

func dsn(dbPath string) string {
	params := make([]string, 0, len(connPragmas))
	for _, pragma := range connPragmas {
		params = append(params, "_pragma="+pragma)
	}
	return dbPath + "?" + strings.Join(params, "&")
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// RecordAlert persists a delivered alert. Recording the same alert twice is
// a no-op.
func (s *Store) RecordAlert(ctx context.Context, alert alertq.Alert) error {
	if alert.ID == "" {
		return errors.New("alert has no id")
	}
	observed := alert.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO alerts (alert_id, ssid, observed_at, recorded_at) VALUES (?, ?, ?, ?)`,
		alert.ID,
		alert.SSID.String(),
		formatTime(observed),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// RecordEvent persists a monitor event. A zero OccurredAt is stamped now.
func (s *Store) RecordEvent(ctx context.Context, event Event) error {
	if strings.TrimSpace(string(event.Kind)) == "" {
		return errors.New("event has no kind")
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO events (kind, worker, ssid, detail, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		string(event.Kind),
		nullableString(event.Worker),
		nullableString(event.SSID),
		nullableString(event.Detail),
		formatTime(occurred),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// RecentAlerts returns up to limit alerts, newest first. An empty ssid
// matches every network.
func (s *Store) RecentAlerts(ctx context.Context, limit int, ssid string) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, alert_id, ssid, observed_at, recorded_at FROM alerts`
	args := []any{}
	if ssid != "" {
		query += ` WHERE ssid = ?`
		args = append(args, ssid)
	}
	query += ` ORDER BY observed_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var records []AlertRecord
	for rows.Next() {
		var (
			rec                AlertRecord
			observed, recorded string
		)
		if err := rows.Scan(&rec.ID, &rec.AlertID, &rec.SSID, &observed, &recorded); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		rec.ObservedAt = parseTime(observed)
		rec.RecordedAt = parseTime(recorded)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return records, nil
}

// RecentEvents returns up to limit events, newest first, optionally
// restricted to the given kinds.
func (s *Store) RecentEvents(ctx context.Context, limit int, kinds ...EventKind) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, kind, worker, ssid, detail, occurred_at FROM events`
	args := make([]any, 0, len(kinds)+1)
	if len(kinds) > 0 {
		placeholders := make([]string, len(kinds))
		for i, kind := range kinds {
			placeholders[i] = "?"
			args = append(args, string(kind))
		}
		query += ` WHERE kind IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev                   Event
			kind, occurred       string
			worker, ssid, detail sql.NullString
		)
		if err := rows.Scan(&ev.ID, &kind, &worker, &ssid, &detail, &occurred); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = EventKind(kind)
		ev.Worker = worker.String
		ev.SSID = ssid.String
		ev.Detail = detail.String
		ev.OccurredAt = parseTime(occurred)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Summary aggregates alert and event counts. topN bounds the network list.
func (s *Store) Summary(ctx context.Context, topN int) (Summary, error) {
	summary := Summary{EventsByKind: make(map[EventKind]int)}

	var last sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COUNT(DISTINCT ssid), MAX(observed_at) FROM alerts`,
	).Scan(&summary.Alerts, &summary.DistinctSSIDs, &last)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize alerts: %w", err)
	}
	if last.Valid {
		summary.LastAlert = parseTime(last.String)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(1) FROM events GROUP BY kind`)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize events: %w", err)
	}
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			rows.Close()
			return Summary{}, fmt.Errorf("scan event summary: %w", err)
		}
		summary.EventsByKind[EventKind(kind)] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return Summary{}, fmt.Errorf("iterate event summary: %w", err)
	}
	rows.Close()

	if topN > 0 {
		top, err := s.topNetworks(ctx, topN)
		if err != nil {
			return Summary{}, err
		}
		summary.TopNetworks = top
	}
	return summary, nil
}

func (s *Store) topNetworks(ctx context.Context, limit int) ([]NetworkCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ssid, COUNT(1) AS hits, MIN(observed_at), MAX(observed_at)
         FROM alerts GROUP BY ssid ORDER BY hits DESC, ssid ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top networks: %w", err)
	}
	defer rows.Close()

	var out []NetworkCount
	for rows.Next() {
		var (
			nc          NetworkCount
			first, last string
		)
		if err := rows.Scan(&nc.SSID, &nc.Count, &first, &last); err != nil {
			return nil, fmt.Errorf("scan top network: %w", err)
		}
		nc.FirstSeen = parseTime(first)
		nc.LastSeen = parseTime(last)
		out = append(out, nc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top networks: %w", err)
	}
	return out, nil
}

// Prune deletes alerts and events older than cutoff and returns how many
// rows were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stamp := formatTime(cutoff)
	var total int64
	for _, stmt := range []string{
		`DELETE FROM alerts WHERE observed_at < ?`,
		`DELETE FROM events WHERE occurred_at < ?`,
	} {
		res, err := tx.ExecContext(ctx, stmt, stamp)
		if err != nil {
			return 0, fmt.Errorf("prune journal: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("prune rows affected: %w", err)
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return total, nil
}

// Clear removes every alert and event.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	return s.Prune(ctx, time.Now().Add(24*time.Hour))
}

// timeLayout sorts lexically, which the ORDER BY clauses rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
