package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type repo struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepo returns the message log backed by the chats table. The same SQL
// runs on Postgres and SQLite.
func NewRepo(db *sql.DB) Log {
	return &repo{db: db, now: time.Now}
}

const eventColumns = `id, sender, message, session_id, external_chat_id, external_message_id, created_at`

func (r *repo) Append(ctx context.Context, ev *ChatEvent) error {
	ev.CreatedAt = r.now().UTC()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO chats (sender, message, session_id, external_chat_id, external_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		string(ev.Sender),
		ev.Message,
		ev.SessionID,
		nullString(ev.ExternalChatID),
		nullInt64(ev.ExternalMessageID),
		ev.CreatedAt,
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("relay: append: %w", err)
	}
	return nil
}

func (r *repo) LatestByExternalChatID(ctx context.Context, chatID string) (*ChatEvent, error) {
	return r.latest(ctx, `
		SELECT `+eventColumns+`
		FROM chats
		WHERE external_chat_id = $1 AND session_id <> ''
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, chatID)
}

func (r *repo) LatestByExternalMessageID(ctx context.Context, chatID string, messageID int64) (*ChatEvent, error) {
	return r.latest(ctx, `
		SELECT `+eventColumns+`
		FROM chats
		WHERE external_chat_id = $1 AND external_message_id = $2 AND session_id <> ''
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, chatID, messageID)
}

func (r *repo) LatestBySender(ctx context.Context, sender Sender) (*ChatEvent, error) {
	return r.latest(ctx, `
		SELECT `+eventColumns+`
		FROM chats
		WHERE sender = $1 AND session_id <> ''
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, string(sender))
}

// ListBySession selects the newest limit rows and returns them oldest first.
func (r *repo) ListBySession(ctx context.Context, sessionID string, limit int) ([]ChatEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM chats
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("relay: list session: %w", err)
	}
	defer rows.Close()

	var out []ChatEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("relay: list session: %w", err)
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("relay: list session: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *repo) latest(ctx context.Context, query string, args ...any) (*ChatEvent, error) {
	ev, err := scanEvent(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("relay: latest: %w", err)
	}
	return ev, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*ChatEvent, error) {
	var (
		ev     ChatEvent
		sender string
		chatID sql.NullString
		msgID  sql.NullInt64
	)
	if err := row.Scan(
		&ev.ID,
		&sender,
		&ev.Message,
		&ev.SessionID,
		&chatID,
		&msgID,
		&ev.CreatedAt,
	); err != nil {
		return nil, err
	}
	ev.Sender = Sender(sender)
	if chatID.Valid {
		ev.ExternalChatID = &chatID.String
	}
	if msgID.Valid {
		ev.ExternalMessageID = &msgID.Int64
	}
	return &ev, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// offlineRepo stands in when no database is configured so that the
// outbound flow keeps delivering messages.
type offlineRepo struct{}

func NewOfflineRepo() Log {
	return offlineRepo{}
}

func (offlineRepo) Append(context.Context, *ChatEvent) error { return ErrLogUnavailable }

func (offlineRepo) LatestByExternalChatID(context.Context, string) (*ChatEvent, error) {
	return nil, ErrLogUnavailable
}

func (offlineRepo) LatestByExternalMessageID(context.Context, string, int64) (*ChatEvent, error) {
	return nil, ErrLogUnavailable
}

func (offlineRepo) LatestBySender(context.Context, Sender) (*ChatEvent, error) {
	return nil, ErrLogUnavailable
}

func (offlineRepo) ListBySession(context.Context, string, int) ([]ChatEvent, error) {
	return nil, ErrLogUnavailable
}
