package repository

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a conversation lookup matches no row.
var ErrNotFound = errors.New("repository: not found")

type CreateConversationInput struct {
	UserID   string
	Language string
	Level    string
}

type CompleteConversationInput struct {
	ConversationID string
	// DurationSeconds is applied only when HasDuration is true.
	DurationSeconds int64
	HasDuration     bool
}

type AppendTranscriptEntryInput struct {
	ConversationID string
	Role           Role
	Content        string
}

type SaveSignupConsentInput struct {
	UserID           string
	GDPRConsent      bool
	MarketingConsent bool
}

type ConversationRepository interface {
	CreateConversation(ctx context.Context, input CreateConversationInput) (*Conversation, error)
	GetConversationWithTranscripts(ctx context.Context, conversationID string) (*ConversationWithTranscripts, error)
	ListConversationsByUser(ctx context.Context, userID string, limit int) ([]Conversation, error)
	CompleteConversation(ctx context.Context, input CompleteConversationInput) error
	UpdateConversationTitle(ctx context.Context, conversationID, title string) error
}

type TranscriptRepository interface {
	// AppendTranscriptEntry is a no-op returning (nil, nil) when Content is
	// empty after trimming.
	AppendTranscriptEntry(ctx context.Context, input AppendTranscriptEntryInput) (*TranscriptEntry, error)
}

type AccountRepository interface {
	SaveSignupConsent(ctx context.Context, input SaveSignupConsentInput) error
}

type Repository interface {
	ConversationRepository
	TranscriptRepository
	AccountRepository
}
