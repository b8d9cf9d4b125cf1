// Package store keeps the history of received cell broadcast messages in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pion/logging"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/cell"
)

// CreateDDL is the DDL of the message history.
const CreateDDL = `
CREATE TABLE IF NOT EXISTS messages (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	message_identifier INTEGER NOT NULL,
	serial_number      INTEGER NOT NULL,
	service_category   INTEGER NOT NULL,
	data_coding_scheme INTEGER NOT NULL,
	plmn               TEXT    NOT NULL,
	lac                INTEGER NOT NULL,
	cid                INTEGER NOT NULL,
	language           TEXT    NOT NULL DEFAULT '',
	body               TEXT    NOT NULL,
	geometries         BLOB,
	maximum_wait_ns    INTEGER NOT NULL DEFAULT 0,
	slot_index         INTEGER NOT NULL,
	received_at_ns     INTEGER NOT NULL,
	delivered          INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_messages_identity
	ON messages (message_identifier, serial_number, received_at_ns);

CREATE INDEX IF NOT EXISTS idx_messages_received_at
	ON messages (received_at_ns);
`

const selectColumns = `id, message_identifier, serial_number, service_category, data_coding_scheme,
	plmn, lac, cid, language, body, geometries, maximum_wait_ns, slot_index, received_at_ns, delivered`

// Config of the message history.
type Config struct {
	// Path of the database file, ":memory:" for a volatile history.
	Path          string
	LoggerFactory logging.LoggerFactory
}

// SQLite is the message history backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	log logging.LeveledLogger
}

// OpenDB opens (or creates) a SQLite database at path with WAL journal mode and a busy timeout.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}

	// Single writer, and ":memory:" databases exist per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q on %s: %w", p, path, err)
		}
	}

	return db, nil
}

// Open opens the message history and creates the schema if necessary.
func Open(config Config) (*SQLite, error) {
	db, err := OpenDB(config.Path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(CreateDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema on %s: %w", config.Path, err)
	}

	result := &SQLite{db: db}
	if config.LoggerFactory != nil {
		result.log = config.LoggerFactory.NewLogger("store")
	}
	return result, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Insert adds the given message to the history and returns its record id.
func (s *SQLite) Insert(ctx context.Context, msg cb.Message, delivered bool) (int64, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO messages (
		message_identifier, serial_number, service_category, data_coding_scheme,
		plmn, lac, cid, language, body, geometries, maximum_wait_ns, slot_index, received_at_ns, delivered
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.MessageIdentifier, msg.SerialNumber, msg.ServiceCategory, msg.DataCodingScheme,
		msg.Location.PLMN, msg.Location.LAC, msg.Location.CID, msg.Language, msg.Body,
		cb.EncodeGeometries(msg.Geometries), int64(msg.MaximumWaitTime), msg.SlotIndex,
		msg.ReceivedAt.UnixNano(), delivered,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message %s: %w", msg.Identity(), err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert message %s: %w", msg.Identity(), err)
	}
	if s.log != nil {
		s.log.Debugf("recorded message %s as %d (delivered: %t)", msg.Identity(), id, delivered)
	}
	return id, nil
}

// QueryUndeliveredByIdentity returns all undelivered messages with the given identity that were
// received at or after since, oldest first.
func (s *SQLite) QueryUndeliveredByIdentity(ctx context.Context, identity cb.Identity, since time.Time) ([]cb.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM messages
		WHERE message_identifier = ? AND serial_number = ? AND received_at_ns >= ? AND delivered = 0
		ORDER BY received_at_ns, id`,
		identity.MessageIdentifier, identity.SerialNumber, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query undelivered %s: %w", identity, err)
	}
	return scanRecords(rows)
}

// QueryDeliveredDuplicate reports if a delivered message with the given identity was received at or after since.
func (s *SQLite) QueryDeliveredDuplicate(ctx context.Context, identity cb.Identity, since time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages
		WHERE message_identifier = ? AND serial_number = ? AND received_at_ns >= ? AND delivered = 1`,
		identity.MessageIdentifier, identity.SerialNumber, since.UnixNano()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query duplicate %s: %w", identity, err)
	}
	return count > 0, nil
}

// MarkDelivered flags the given record as delivered. It reports false if the record does not
// exist or was already delivered.
func (s *SQLite) MarkDelivered(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET delivered = 1 WHERE id = ? AND delivered = 0`, id)
	if err != nil {
		return false, fmt.Errorf("mark %d delivered: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark %d delivered: %w", id, err)
	}
	return affected == 1, nil
}

// Recent returns the messages received at or after since, newest first, at most limit records.
func (s *SQLite) Recent(ctx context.Context, since time.Time, limit int) ([]cb.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM messages
		WHERE received_at_ns >= ? ORDER BY received_at_ns DESC, id DESC LIMIT ?`,
		since.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	return scanRecords(rows)
}

// Purge removes all messages received before the given time and returns the number of removed records.
func (s *SQLite) Purge(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE received_at_ns < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	return result.RowsAffected()
}

func scanRecords(rows *sql.Rows) ([]cb.Record, error) {
	defer rows.Close()

	var result []cb.Record
	for rows.Next() {
		var record cb.Record
		var geometries []byte
		var maximumWait, receivedAt int64
		var plmn string
		var lac, cid int
		msg := &record.Message
		err := rows.Scan(&record.ID, &msg.MessageIdentifier, &msg.SerialNumber, &msg.ServiceCategory, &msg.DataCodingScheme,
			&plmn, &lac, &cid, &msg.Language, &msg.Body, &geometries, &maximumWait, &msg.SlotIndex, &receivedAt, &record.Delivered)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Location = cell.Location{PLMN: plmn, LAC: lac, CID: cid}
		msg.MaximumWaitTime = time.Duration(maximumWait)
		msg.ReceivedAt = time.Unix(0, receivedAt).UTC()
		msg.Geometries, err = cb.DecodeGeometries(geometries)
		if err != nil {
			return nil, fmt.Errorf("scan geometries of %d: %w", record.ID, err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return result, nil
}
