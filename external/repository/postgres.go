package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lingora-app/lingora/internal/repository"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

const conversationColumns = `id, user_id, title, language, level, topic, status, duration_seconds, started_at, ended_at, created_at`

func scanConversation(row pgx.Row) (*repository.Conversation, error) {
	var c repository.Conversation
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.Language, &c.Level, &c.Topic,
		&c.Status, &c.DurationSeconds, &c.StartedAt, &c.EndedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresRepository) CreateConversation(ctx context.Context, input repository.CreateConversationInput) (*repository.Conversation, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO conversations (user_id, language, level, status, started_at)
		 VALUES ($1, $2, $3, 'active', NOW())
		 RETURNING `+conversationColumns,
		input.UserID, input.Language, input.Level)
	return scanConversation(row)
}

func (r *PostgresRepository) GetConversationWithTranscripts(ctx context.Context, conversationID string) (*repository.ConversationWithTranscripts, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`,
		conversationID)
	c, err := scanConversation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM transcript_entries WHERE conversation_id = $1
		 ORDER BY created_at ASC, id ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []repository.TranscriptEntry
	for rows.Next() {
		var e repository.TranscriptEntry
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Role, &e.Content, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &repository.ConversationWithTranscripts{Conversation: *c, Entries: entries}, nil
}

func (r *PostgresRepository) ListConversationsByUser(ctx context.Context, userID string, limit int) ([]repository.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Conversation
	for rows.Next() {
		var c repository.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Language, &c.Level, &c.Topic,
			&c.Status, &c.DurationSeconds, &c.StartedAt, &c.EndedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) CompleteConversation(ctx context.Context, input repository.CompleteConversationInput) error {
	if input.HasDuration {
		_, err := r.pool.Exec(ctx,
			`UPDATE conversations SET status = 'completed', ended_at = $2, duration_seconds = $3 WHERE id = $1`,
			input.ConversationID, time.Now(), input.DurationSeconds)
		return err
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET status = 'completed', ended_at = $2 WHERE id = $1`,
		input.ConversationID, time.Now())
	return err
}

func (r *PostgresRepository) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET title = $2 WHERE id = $1`,
		conversationID, title)
	return err
}

func (r *PostgresRepository) AppendTranscriptEntry(ctx context.Context, input repository.AppendTranscriptEntryInput) (*repository.TranscriptEntry, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, nil
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO transcript_entries (conversation_id, role, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, conversation_id, role, content, created_at`,
		input.ConversationID, input.Role, input.Content)
	var e repository.TranscriptEntry
	if err := row.Scan(&e.ID, &e.ConversationID, &e.Role, &e.Content, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *PostgresRepository) SaveSignupConsent(ctx context.Context, input repository.SaveSignupConsentInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_profiles (user_id, gdpr_consent, marketing_consent, consented_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET gdpr_consent = EXCLUDED.gdpr_consent,
		     marketing_consent = EXCLUDED.marketing_consent,
		     consented_at = EXCLUDED.consented_at`,
		input.UserID, input.GDPRConsent, input.MarketingConsent)
	return err
}
