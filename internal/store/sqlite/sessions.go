package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopzz/catmap/internal/domain"
	"github.com/shopzz/catmap/internal/store"
)

// summaryColumns is the ordered list of columns selected for listings.
// Must match the scan order in scanSummary.
const summaryColumns = `id, name, created_at, updated_at,
	canonical_total, resolved_count, source_a_remaining, source_b_remaining`

// SaveSession creates or replaces a session row.
func (s *Store) SaveSession(ctx context.Context, rec *domain.SessionRecord) error {
	baseline, err := json.Marshal(rec.Baseline)
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}

	var state sql.NullString
	if rec.State != nil {
		data, err := json.Marshal(rec.State)
		if err != nil {
			return fmt.Errorf("marshal state: %w", err)
		}
		state = sql.NullString{String: string(data), Valid: true}
	}

	sum := store.Summarize(rec)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mapping_sessions (id, name, created_at, updated_at,
			canonical_total, resolved_count, source_a_remaining, source_b_remaining,
			baseline, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at,
			canonical_total = excluded.canonical_total,
			resolved_count = excluded.resolved_count,
			source_a_remaining = excluded.source_a_remaining,
			source_b_remaining = excluded.source_b_remaining,
			baseline = excluded.baseline,
			state = excluded.state`,
		rec.ID, rec.Name, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
		sum.CanonicalTotal, sum.ResolvedCount, sum.SourceARemaining, sum.SourceBRemaining,
		string(baseline), state,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.SessionRecord, error) {
	var (
		rec       domain.SessionRecord
		createdAt string
		updatedAt string
		baseline  string
		state     sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at, baseline, state
		FROM mapping_sessions WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Name, &createdAt, &updatedAt, &baseline, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(baseline), &rec.Baseline); err != nil {
		return nil, fmt.Errorf("decode baseline: %w", err)
	}
	if state.Valid {
		rec.State = &domain.Snapshot{}
		if err := json.Unmarshal([]byte(state.String), rec.State); err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
	}
	return &rec, nil
}

// scanSummary scans a row selected with summaryColumns.
func scanSummary(scanner interface{ Scan(dest ...any) error }) (domain.SessionSummary, error) {
	var (
		sum       domain.SessionSummary
		createdAt string
		updatedAt string
	)

	err := scanner.Scan(
		&sum.ID,
		&sum.Name,
		&createdAt,
		&updatedAt,
		&sum.CanonicalTotal,
		&sum.ResolvedCount,
		&sum.SourceARemaining,
		&sum.SourceBRemaining,
	)
	if err != nil {
		return sum, err
	}

	if sum.CreatedAt, err = parseTime(createdAt); err != nil {
		return sum, err
	}
	if sum.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return sum, err
	}
	return sum, nil
}

// ListSessions returns all session summaries, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM mapping_sessions ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	summaries := []domain.SessionSummary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// DeleteSession removes a session by ID.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM mapping_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}
