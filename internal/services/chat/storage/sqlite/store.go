// Package sqlite provides a SQLite-backed chat message store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/openhack/teamup/internal/platform/storage/sqlitemigrate"
	"github.com/openhack/teamup/internal/services/chat/domain"
	"github.com/openhack/teamup/internal/services/chat/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists chat messages in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite chat store and applies embedded migrations.
//
// Write transactions start immediate so sequence assignment serializes per
// database, keeping room sequences gapless under concurrent senders.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AppendMessage assigns the next room sequence and inserts the message. A
// replayed client_message_id returns the originally stored message with
// duplicate set.
func (s *Store) AppendMessage(ctx context.Context, message domain.Message) (domain.Message, bool, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Message{}, false, err
	}

	roomID := message.RoomID.String()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var nextSeq int64
	if err := tx.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE room_id = ?`,
		roomID,
	).Scan(&nextSeq); err != nil {
		return domain.Message{}, false, fmt.Errorf("next room seq: %w", err)
	}
	message.Seq = nextSeq

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO messages (room_id, seq, id, sender_id, sender_name, body, client_message_id, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		roomID,
		message.Seq,
		message.ID,
		message.SenderID,
		message.SenderName,
		message.Body,
		message.ClientMessageID,
		toMillis(message.SentAt),
	); err != nil {
		if isUniqueViolation(err) {
			existing, lookupErr := s.findByClientMessageID(ctx, message.RoomID, message.ClientMessageID)
			if lookupErr != nil {
				return domain.Message{}, false, lookupErr
			}
			return existing, true, nil
		}
		return domain.Message{}, false, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Message{}, false, fmt.Errorf("commit tx: %w", err)
	}
	return message, false, nil
}

// ListMessagesSince loads messages with seq greater than sinceSeq, ascending.
func (s *Store) ListMessagesSince(ctx context.Context, roomID domain.RoomID, sinceSeq int64, limit int) ([]domain.Message, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT room_id, seq, id, sender_id, sender_name, body, client_message_id, sent_at
		 FROM messages
		 WHERE room_id = ? AND seq > ?
		 ORDER BY seq ASC LIMIT ?`,
		roomID.String(),
		sinceSeq,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ListMessagesBefore loads up to limit messages with seq below beforeSeq,
// ascending. A beforeSeq of zero or less means from the latest message.
func (s *Store) ListMessagesBefore(ctx context.Context, roomID domain.RoomID, beforeSeq int64, limit int) ([]domain.Message, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if beforeSeq <= 0 {
		beforeSeq = 1<<63 - 1
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT room_id, seq, id, sender_id, sender_name, body, client_message_id, sent_at
		 FROM (
		   SELECT * FROM messages WHERE room_id = ? AND seq < ?
		   ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq ASC`,
		roomID.String(),
		beforeSeq,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// LatestSeq returns the highest assigned sequence in the room, zero when empty.
func (s *Store) LatestSeq(ctx context.Context, roomID domain.RoomID) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	var latest int64
	if err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE room_id = ?`,
		roomID.String(),
	).Scan(&latest); err != nil {
		return 0, fmt.Errorf("latest seq: %w", err)
	}
	return latest, nil
}

func (s *Store) findByClientMessageID(ctx context.Context, roomID domain.RoomID, clientMessageID string) (domain.Message, error) {
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT room_id, seq, id, sender_id, sender_name, body, client_message_id, sent_at
		 FROM messages WHERE room_id = ? AND client_message_id = ?`,
		roomID.String(),
		clientMessageID,
	)
	message, err := scanMessage(row)
	if err != nil {
		return domain.Message{}, fmt.Errorf("find duplicate message: %w", err)
	}
	return message, nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (domain.Message, error) {
	var (
		message domain.Message
		rawRoom string
		sentAt  int64
	)
	if err := row.Scan(
		&rawRoom,
		&message.Seq,
		&message.ID,
		&message.SenderID,
		&message.SenderName,
		&message.Body,
		&message.ClientMessageID,
		&sentAt,
	); err != nil {
		return domain.Message{}, err
	}
	roomID, err := domain.ParseRoomID(rawRoom)
	if err != nil {
		return domain.Message{}, fmt.Errorf("stored room id %q: %w", rawRoom, err)
	}
	message.RoomID = roomID
	message.SentAt = fromMillis(sentAt)
	return message, nil
}

func collectMessages(rows *sql.Rows) ([]domain.Message, error) {
	var messages []domain.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
