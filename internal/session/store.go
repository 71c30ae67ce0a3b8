package session

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// migrations is the versioned, additive schema history. The database's
// PRAGMA user_version records how many entries have been applied; upgrades
// run the remainder inside one transaction each and never drop data.
var migrations = []string{
	// v1: base tables.
	`CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		endpoint TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp DATETIME NOT NULL
	);`,

	// v2: assistant resume token.
	`ALTER TABLE sessions ADD COLUMN resume_token TEXT NOT NULL DEFAULT '';`,

	// v3: ordering and lookup indexes.
	`CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id);`,
}

// Store provides durable CRUD over sessions and messages with one reactive
// read path (Watch) and several point queries. Writes are serialized on a
// single connection.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	nextSub int
	subs    map[int]chan []Session
}

// NewStore opens the SQLite database at dbPath and applies any pending
// schema migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer: sidesteps SQLITE_BUSY and keeps each session's writes in
	// the order they were issued.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db, subs: make(map[int]chan []Session)}, nil
}

// Close closes the database connection and all Watch subscriptions.
func (s *Store) Close() error {
	s.mu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than this build supports", version)
	}

	for v := version; v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, v+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", v+1, err)
		}
	}
	return nil
}

// InsertSession creates a session and returns its assigned ID. Zero
// timestamps are set to now.
func (s *Store) InsertSession(sess *Session) (int64, error) {
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = now
	}

	res, err := s.db.Exec(
		`INSERT INTO sessions (title, endpoint, resume_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.Title, sess.Endpoint, sess.ResumeToken, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}
	sess.ID = id

	s.notify()
	return id, nil
}

// GetSession retrieves a session by ID. Returns (nil, nil) when absent.
func (s *Store) GetSession(id int64) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, title, endpoint, resume_token, created_at, updated_at
		 FROM sessions WHERE id = ?`,
		id,
	)

	var sess Session
	err := row.Scan(&sess.ID, &sess.Title, &sess.Endpoint, &sess.ResumeToken, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return &sess, nil
}

// TouchSession bumps the session's updated_at to now.
func (s *Store) TouchSession(id int64) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	s.notify()
	return nil
}

// RenameSession sets the session's title and bumps updated_at.
func (s *Store) RenameSession(id int64, title string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}

	s.notify()
	return nil
}

// SetResumeToken records the assistant runtime's resume token for the
// session and bumps updated_at.
func (s *Store) SetResumeToken(id int64, token string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET resume_token = ?, updated_at = ? WHERE id = ?`,
		token, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("set resume token: %w", err)
	}

	s.notify()
	return nil
}

// DeleteSession removes a session and, via the foreign key cascade, all of
// its messages.
func (s *Store) DeleteSession(id int64) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	s.notify()
	return nil
}

// InsertMessage appends a message to its session's transcript and bumps the
// session's updated_at in the same transaction. A zero Timestamp is set to
// now. Returns the assigned message ID.
func (s *Store) InsertMessage(msg *Message) (int64, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin message insert: %w", err)
	}

	res, err := tx.Exec(
		`INSERT INTO messages (session_id, kind, content, timestamp)
		 VALUES (?, ?, ?, ?)`,
		msg.SessionID, msg.Kind, msg.Content, msg.Timestamp,
	)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("insert message: %w", err)
	}
	// updated_at never moves backwards, even for backdated messages.
	if _, err := tx.Exec(
		`UPDATE sessions SET updated_at = ? WHERE id = ? AND updated_at < ?`,
		msg.Timestamp, msg.SessionID, msg.Timestamp,
	); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("touch session for message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit message insert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("message id: %w", err)
	}
	msg.ID = id

	s.notify()
	return id, nil
}

// AppendToMessage appends text to an open message's content and bumps the
// owning session's updated_at, so a session streaming a long turn stays at
// the top of the list. Used by the stream coalescer while an assistant turn
// is in progress.
func (s *Store) AppendToMessage(id int64, text string) error {
	now := time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin message append: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE messages SET content = content || ? WHERE id = ?`,
		text, id,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("append to message: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE sessions SET updated_at = ?
		 WHERE id = (SELECT session_id FROM messages WHERE id = ?) AND updated_at < ?`,
		now, id, now,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("touch session for append: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message append: %w", err)
	}

	s.notify()
	return nil
}

// ListMessages retrieves a session's transcript, ascending by timestamp
// (insertion order breaks ties).
func (s *Store) ListMessages(sessionID int64) ([]Message, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, kind, content, timestamp
		 FROM messages
		 WHERE session_id = ?
		 ORDER BY timestamp ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Kind, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return messages, nil
}

// ListSessions returns all sessions ordered by updated_at descending,
// freshest first.
func (s *Store) ListSessions() ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, title, endpoint, resume_token, created_at, updated_at
		 FROM sessions
		 ORDER BY updated_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.Endpoint, &sess.ResumeToken, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return sessions, nil
}

// Watch returns a channel that receives the full session list, freshest
// first, after every store mutation. The latest snapshot wins: a slow
// consumer sees the newest state, not every intermediate one. The returned
// cancel func must be called when the consumer is done.
func (s *Store) Watch() (<-chan []Session, func()) {
	ch := make(chan []Session, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	// Prime with the current list so consumers need no separate read.
	if sessions, err := s.ListSessions(); err == nil {
		ch <- sessions
	}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// notify pushes a fresh session snapshot to every watcher.
func (s *Store) notify() {
	s.mu.Lock()
	empty := len(s.subs) == 0
	s.mu.Unlock()
	if empty {
		return
	}

	sessions, err := s.ListSessions()
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- sessions:
		default:
			// Drop the stale pending snapshot, then deliver the new one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- sessions:
			default:
			}
		}
	}
}
