package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	statusTable  = "connection_status"
	historyTable = "connection_history"

	// unknownChannel marks best-effort error events recorded before any
	// channel was known.
	unknownChannel = "UNKNOWN"

	// supersededNote is attached to the implicit DISCONNECT logged when a
	// new connection replaces an active one.
	supersededNote = "superseded by new connection"
)

var (
	selectCurrentSQL = fmt.Sprintf(
		`SELECT channel_id, guild_id, connected_at, last_updated FROM %s WHERE id = 1`, statusTable)
	upsertStatusSQL = fmt.Sprintf(
		`INSERT OR REPLACE INTO %s (id, channel_id, guild_id, connected_at, last_updated) VALUES (1, ?, ?, ?, ?)`, statusTable)
	deleteStatusSQL = fmt.Sprintf(`DELETE FROM %s WHERE id = 1`, statusTable)
	touchStatusSQL  = fmt.Sprintf(`UPDATE %s SET last_updated = ? WHERE id = 1`, statusTable)
	insertHistorySQL = fmt.Sprintf(
		`INSERT INTO %s (channel_id, guild_id, action, timestamp, error_message) VALUES (?, ?, ?, ?, ?)`, historyTable)
	recentHistorySQL = fmt.Sprintf(
		`SELECT id, channel_id, guild_id, action, timestamp, error_message FROM %s ORDER BY id DESC LIMIT ?`, historyTable)
)

// Connect records a connection to channelID, superseding any active
// connection. The status upsert and the CONNECT history row commit in one
// transaction: either both are durable or neither is. guildID may be empty.
//
// Returns *ValidationError for an empty channel id and *TransactionError
// after a rolled-back storage failure.
func (s *Store) Connect(ctx context.Context, channelID, guildID string) error {
	if strings.TrimSpace(channelID) == "" {
		return ErrEmptyChannelID
	}
	now := time.Now().UTC()
	if err := s.connectTx(ctx, channelID, guildID, now); err != nil {
		s.recordErrorEvent(ctx, channelID, guildID, now, fmt.Sprintf("connect failed: %v", err))
		return &TransactionError{Op: "connect", Err: err}
	}
	return nil
}

func (s *Store) connectTx(ctx context.Context, channelID, guildID string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer s.rollback(tx)

	cur, err := currentIn(ctx, tx)
	if err != nil {
		return err
	}
	if cur != nil {
		// The history stream must never show two CONNECT events without an
		// intervening DISCONNECT.
		if err := appendHistory(ctx, tx, cur.ChannelID, cur.GuildID, ActionDisconnect, now, supersededNote); err != nil {
			return err
		}
	}

	ts := now.Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, upsertStatusSQL, channelID, nullable(guildID), ts, ts); err != nil {
		return fmt.Errorf("upserting status: %w", err)
	}

	if err := appendHistory(ctx, tx, channelID, guildID, ActionConnect, now, ""); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// Disconnect clears the active connection and returns its pre-deletion
// snapshot. Disconnecting while already disconnected is a valid no-op and
// returns (nil, nil) without touching history.
func (s *Store) Disconnect(ctx context.Context) (*ConnectionSnapshot, error) {
	now := time.Now().UTC()
	snap, err := s.disconnectTx(ctx, now)
	if err == nil {
		return snap, nil
	}
	// Even a failure with no known channel must leave a trace in history.
	channelID, guildID := unknownChannel, ""
	if snap != nil {
		channelID, guildID = snap.ChannelID, snap.GuildID
	}
	s.recordErrorEvent(ctx, channelID, guildID, now, fmt.Sprintf("disconnect failed: %v", err))
	return nil, &TransactionError{Op: "disconnect", Err: err}
}

func (s *Store) disconnectTx(ctx context.Context, now time.Time) (*ConnectionSnapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer s.rollback(tx)

	cur, err := currentIn(ctx, tx)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing: %w", err)
		}
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, deleteStatusSQL); err != nil {
		return cur, fmt.Errorf("deleting status: %w", err)
	}
	if err := appendHistory(ctx, tx, cur.ChannelID, cur.GuildID, ActionDisconnect, now, ""); err != nil {
		return cur, err
	}
	if err := tx.Commit(); err != nil {
		return cur, fmt.Errorf("committing: %w", err)
	}
	return cur, nil
}

// Current returns the active connection, or nil when there is none. Read
// failures always propagate as *TransactionError; only row absence is folded
// into a nil snapshot.
func (s *Store) Current(ctx context.Context) (*ConnectionSnapshot, error) {
	snap, err := currentIn(ctx, s.db)
	if err != nil {
		return nil, &TransactionError{Op: "current", Err: err}
	}
	return snap, nil
}

// IsConnected reports whether an active connection exists. Defined strictly
// as Current != nil so the two can never disagree.
func (s *Store) IsConnected(ctx context.Context) (bool, error) {
	snap, err := s.Current(ctx)
	if err != nil {
		return false, err
	}
	return snap != nil, nil
}

// Touch refreshes last_updated on the active connection and reports whether
// one existed. No history row is written; a heartbeat is not a state
// transition.
func (s *Store) Touch(ctx context.Context) (bool, error) {
	res, err := s.db.ExecContext(ctx, touchStatusSQL, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, &TransactionError{Op: "touch", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &TransactionError{Op: "touch", Err: err}
	}
	return n > 0, nil
}

// RecentHistory returns up to limit history events, newest first. If limit
// is <= 0 it defaults to 50.
func (s *Store) RecentHistory(ctx context.Context, limit int) ([]HistoryEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, recentHistorySQL, limit)
	if err != nil {
		return nil, &TransactionError{Op: "history", Err: err}
	}
	defer rows.Close()

	var events []HistoryEvent
	for rows.Next() {
		var ev HistoryEvent
		var guildID, errMsg sql.NullString
		var action, ts string
		if err := rows.Scan(&ev.ID, &ev.ChannelID, &guildID, &action, &ts, &errMsg); err != nil {
			return nil, &TransactionError{Op: "history", Err: err}
		}
		ev.GuildID = guildID.String
		ev.ErrorMessage = errMsg.String
		ev.Action = Action(action)
		if ev.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
			return nil, &TransactionError{Op: "history", Err: fmt.Errorf("parsing timestamp: %w", err)}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, &TransactionError{Op: "history", Err: err}
	}
	return events, nil
}

// recordErrorEvent makes a separate best-effort attempt to leave an ERROR
// trace after a failed operation. Its own failure is logged, never
// propagated, so the caller only ever sees the original error.
func (s *Store) recordErrorEvent(ctx context.Context, channelID, guildID string, now time.Time, msg string) {
	ctx = context.WithoutCancel(ctx)
	if err := appendHistory(ctx, s.db, channelID, guildID, ActionError, now, msg); err != nil {
		s.logger.Error("recording error event failed", "channel_id", channelID, "error", err)
	}
}

// rollback releases a transaction. Rollback failures are logged and
// swallowed so they never mask the original error; rolling back an already
// committed transaction is a no-op.
func (s *Store) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.Error("rollback failed", "error", err)
	}
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func currentIn(ctx context.Context, q rowQuerier) (*ConnectionSnapshot, error) {
	var snap ConnectionSnapshot
	var guildID sql.NullString
	var connectedAt, lastUpdated string
	err := q.QueryRowContext(ctx, selectCurrentSQL).Scan(&snap.ChannelID, &guildID, &connectedAt, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}
	snap.GuildID = guildID.String
	if snap.ConnectedAt, err = time.Parse(time.RFC3339, connectedAt); err != nil {
		return nil, fmt.Errorf("parsing connected_at: %w", err)
	}
	if snap.LastUpdated, err = time.Parse(time.RFC3339, lastUpdated); err != nil {
		return nil, fmt.Errorf("parsing last_updated: %w", err)
	}
	return &snap, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendHistory(ctx context.Context, e execer, channelID, guildID string, action Action, ts time.Time, note string) error {
	if _, err := e.ExecContext(ctx, insertHistorySQL,
		channelID, nullable(guildID), string(action), ts.Format(time.RFC3339), nullable(note)); err != nil {
		return fmt.Errorf("appending %s history: %w", action, err)
	}
	return nil
}

// nullable maps the empty string to NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
