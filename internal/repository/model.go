package repository

import "time"

type ConversationStatus string

const (
	ConversationStatusActive    ConversationStatus = "active"
	ConversationStatusCompleted ConversationStatus = "completed"
	ConversationStatusArchived  ConversationStatus = "archived"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Conversation struct {
	ID              string
	UserID          string
	Title           *string
	Language        string
	Level           string
	Topic           *string
	Status          ConversationStatus
	DurationSeconds int64
	StartedAt       time.Time
	EndedAt         *time.Time
	CreatedAt       time.Time
}

type TranscriptEntry struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	CreatedAt      time.Time
}

type ConversationWithTranscripts struct {
	Conversation
	Entries []TranscriptEntry
}

type SignupConsent struct {
	UserID           string
	GDPRConsent      bool
	MarketingConsent bool
	ConsentedAt      time.Time
}
