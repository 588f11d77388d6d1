package token

import (
	"context"
	"fmt"
)

// Metadata is the opaque preference payload embedded into the session
// credential so the remote agent can read it on join.
type Metadata struct {
	TargetLanguage  string  `json:"target_language"`
	NativeLanguage  string  `json:"native_language"`
	Level           string  `json:"level"`
	SpeakingSpeed   float64 `json:"speaking_speed"`
	VoicePreference string  `json:"voice_preference,omitempty"`
	ConversationID  string  `json:"conversation_id,omitempty"`
	PreviousContext string  `json:"previous_context,omitempty"`
}

type Request struct {
	RoomName            string
	ParticipantIdentity string
	ParticipantName     string
	Metadata            Metadata
}

type Credential struct {
	Token    string
	RoomName string
}

// IssueError carries the issuing collaborator's message through to the
// session error surface.
type IssueError struct {
	Message string
}

func (e *IssueError) Error() string {
	return fmt.Sprintf("token issuance failed: %s", e.Message)
}

type Issuer interface {
	// Issue mints a session credential. identityToken is the caller's bearer
	// identity token; implementations that sign locally may ignore it.
	Issue(ctx context.Context, identityToken string, req Request) (Credential, error)
}
