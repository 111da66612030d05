// Package store persists users, conversations and messages in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"marketmate/pkg/llm"
)

// ErrNotFound reports a lookup for a row that does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL DEFAULT '',
	tier TEXT NOT NULL DEFAULT 'free-tier',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	model TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	channel_key TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_channel_key ON conversations(channel_key);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL REFERENCES conversations(id),
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
`

// Conversation is one persisted conversation row.
type Conversation struct {
	ID         string
	UserID     string
	Model      string
	Summary    string
	ChannelKey string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store wraps the SQLite handle. Safe for concurrent use; SQLite
// serializes writers internally.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureUser creates the user row if missing and returns its tier.
func (s *Store) EnsureUser(ctx context.Context, userID, username string) (string, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, tier, created_at) VALUES (?, ?, 'free-tier', ?)
		 ON CONFLICT(id) DO UPDATE SET username = excluded.username`,
		userID, username, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("ensure user: %w", err)
	}

	var tier string
	err = s.db.QueryRowContext(ctx, `SELECT tier FROM users WHERE id = ?`, userID).Scan(&tier)
	if err != nil {
		return "", fmt.Errorf("read user tier: %w", err)
	}
	return tier, nil
}

// SetUserTier updates a user's subscription tier.
func (s *Store) SetUserTier(ctx context.Context, userID, tier string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET tier = ? WHERE id = ?`, tier, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateConversation starts a new conversation for the user.
func (s *Store) CreateConversation(ctx context.Context, userID, model, channelKey string) (*Conversation, error) {
	now := time.Now()
	conv := &Conversation{
		ID:         uuid.NewString(),
		UserID:     userID,
		Model:      model,
		ChannelKey: channelKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, model, summary, channel_key, created_at, updated_at)
		 VALUES (?, ?, ?, '', ?, ?, ?)`,
		conv.ID, conv.UserID, conv.Model, conv.ChannelKey, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// Conversation loads one conversation by id.
func (s *Store) Conversation(ctx context.Context, id string) (*Conversation, error) {
	return s.scanConversation(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, model, summary, channel_key, created_at, updated_at
		 FROM conversations WHERE id = ?`, id))
}

// ConversationByKey loads the most recent conversation bound to a
// channel session key. Telegram uses this to continue chats across
// restarts.
func (s *Store) ConversationByKey(ctx context.Context, channelKey string) (*Conversation, error) {
	return s.scanConversation(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, model, summary, channel_key, created_at, updated_at
		 FROM conversations WHERE channel_key = ? ORDER BY updated_at DESC LIMIT 1`, channelKey))
}

func (s *Store) scanConversation(row *sql.Row) (*Conversation, error) {
	var conv Conversation
	var created, updated int64
	err := row.Scan(&conv.ID, &conv.UserID, &conv.Model, &conv.Summary, &conv.ChannelKey, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	conv.CreatedAt = time.Unix(created, 0)
	conv.UpdatedAt = time.Unix(updated, 0)
	return &conv, nil
}

// History returns the last limit user/assistant messages of a
// conversation in chronological order. limit <= 0 means no cap.
func (s *Store) History(ctx context.Context, conversationID string, limit int) ([]llm.Message, error) {
	query := `SELECT role, content, created_at FROM (
			SELECT id, role, content, created_at FROM messages
			WHERE conversation_id = ? AND role IN (?, ?)
			ORDER BY id DESC`
	args := []any{conversationID, llm.RoleUser, llm.RoleAssistant}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	query += `) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var out []llm.Message
	for rows.Next() {
		var role, content string
		var created int64
		if err := rows.Scan(&role, &content, &created); err != nil {
			return nil, err
		}
		msg := llm.NewMessage(role, content)
		msg.Timestamp = created
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Messages returns the full transcript of a conversation, all roles
// included, for the conversation inspection API.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]llm.Message, error) {
	return s.History(ctx, conversationID, 0)
}

// CountUserMessages counts the persisted user messages of a conversation.
func (s *Store) CountUserMessages(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND role = ?`,
		conversationID, llm.RoleUser).Scan(&n)
	return n, err
}

// ApplyTurn records one completed turn atomically: the user message,
// the assistant response when one was produced, and the refreshed
// summary.
func (s *Store) ApplyTurn(ctx context.Context, conversationID, userQuery, response, summary string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		conversationID, llm.RoleUser, userQuery, now); err != nil {
		return fmt.Errorf("record user message: %w", err)
	}

	if response != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			conversationID, llm.RoleAssistant, response, now); err != nil {
			return fmt.Errorf("record assistant message: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET summary = CASE WHEN ? != '' THEN ? ELSE summary END, updated_at = ? WHERE id = ?`,
		summary, summary, now, conversationID); err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}

	return tx.Commit()
}
