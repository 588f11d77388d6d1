package session

import (
	"encoding/json"
	"fmt"

	"github.com/lingora-app/lingora/internal/repository"
	"github.com/lingora-app/lingora/internal/transcript"
)

const wireTypeTranscript = "transcript"

// wireMessage is the data-channel payload produced by the remote agent.
type wireMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Role    string `json:"role"`
	Text    string `json:"text"`
	IsFinal *bool  `json:"isFinal"`
}

// parseTranscriptFragment decodes a data-channel payload. ok is false when
// the message carries a type this core does not handle.
func parseTranscriptFragment(payload []byte) (frag transcript.Fragment, ok bool, err error) {
	var msg wireMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return transcript.Fragment{}, false, fmt.Errorf("invalid data message: %w", err)
	}
	if msg.Type != wireTypeTranscript {
		return transcript.Fragment{}, false, nil
	}

	var role repository.Role
	switch msg.Role {
	case string(repository.RoleUser):
		role = repository.RoleUser
	case string(repository.RoleAssistant):
		role = repository.RoleAssistant
	default:
		return transcript.Fragment{}, false, fmt.Errorf("transcript message has unknown role %q", msg.Role)
	}

	isFinal := true
	if msg.IsFinal != nil {
		isFinal = *msg.IsFinal
	}
	return transcript.Fragment{
		ID:      msg.ID,
		Role:    role,
		Text:    msg.Text,
		IsFinal: isFinal,
	}, true, nil
}
