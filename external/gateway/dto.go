package gateway

import (
	"time"

	"github.com/lingora-app/lingora/internal/repository"
	"github.com/lingora-app/lingora/internal/session"
)

type conversationDTO struct {
	ID              string     `json:"id"`
	Title           *string    `json:"title"`
	Language        string     `json:"language"`
	Level           string     `json:"level"`
	Topic           *string    `json:"topic,omitempty"`
	Status          string     `json:"status"`
	DurationSeconds int64      `json:"duration_seconds"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toConversationDTO(c *repository.Conversation) conversationDTO {
	return conversationDTO{
		ID:              c.ID,
		Title:           c.Title,
		Language:        c.Language,
		Level:           c.Level,
		Topic:           c.Topic,
		Status:          string(c.Status),
		DurationSeconds: c.DurationSeconds,
		StartedAt:       c.StartedAt,
		EndedAt:         c.EndedAt,
		CreatedAt:       c.CreatedAt,
	}
}

type transcriptEntryDTO struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type conversationDetailDTO struct {
	conversationDTO
	Transcripts []transcriptEntryDTO `json:"transcripts"`
}

// stateMessage is the snapshot pushed to the websocket client on every
// observable session change.
type stateMessage struct {
	Type           string              `json:"type"`
	Phase          string              `json:"phase"`
	Connecting     bool                `json:"connecting"`
	Connected      bool                `json:"connected"`
	MicEnabled     bool                `json:"mic_enabled"`
	LocalSpeaking  bool                `json:"local_speaking"`
	RemoteSpeaking bool                `json:"remote_speaking"`
	Error          string              `json:"error,omitempty"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Transcripts    []liveTranscriptDTO `json:"transcripts"`
}

type liveTranscriptDTO struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	IsFinal   bool      `json:"is_final"`
	Timestamp time.Time `json:"timestamp"`
}

func toStateMessage(st session.State) stateMessage {
	msg := stateMessage{
		Type:           "state",
		Phase:          string(st.Phase),
		Connecting:     st.Connecting,
		Connected:      st.Connected,
		MicEnabled:     st.MicEnabled,
		LocalSpeaking:  st.LocalSpeaking,
		RemoteSpeaking: st.RemoteSpeaking,
		Error:          st.LastError,
		ConversationID: st.ConversationID,
		Transcripts:    make([]liveTranscriptDTO, 0, len(st.Transcripts)),
	}
	for _, e := range st.Transcripts {
		msg.Transcripts = append(msg.Transcripts, liveTranscriptDTO{
			ID:        e.ID,
			Role:      string(e.Role),
			Text:      e.Text,
			IsFinal:   e.IsFinal,
			Timestamp: e.Timestamp,
		})
	}
	return msg
}
