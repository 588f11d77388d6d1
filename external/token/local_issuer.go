package token

import (
	"context"
	"encoding/json"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/lingora-app/lingora/internal/token"
)

const credentialTTL = 6 * time.Hour

// LocalIssuer signs session credentials directly with the media server's API
// key pair, for deployments without a separate issuing service.
type LocalIssuer struct {
	apiKey    string
	apiSecret string
}

func NewLocalIssuer(apiKey, apiSecret string) token.Issuer {
	return &LocalIssuer{apiKey: apiKey, apiSecret: apiSecret}
}

func (s *LocalIssuer) Issue(_ context.Context, _ string, req token.Request) (token.Credential, error) {
	metadataJSON, err := json.Marshal(req.Metadata)
	if err != nil {
		return token.Credential{}, err
	}

	canPublish := true
	canSubscribe := true
	canPublishData := true
	grant := &auth.VideoGrant{
		RoomJoin:       true,
		Room:           req.RoomName,
		CanPublish:     &canPublish,
		CanSubscribe:   &canSubscribe,
		CanPublishData: &canPublishData,
	}

	name := req.ParticipantName
	if name == "" {
		name = req.ParticipantIdentity
	}
	at := auth.NewAccessToken(s.apiKey, s.apiSecret).
		SetVideoGrant(grant).
		SetIdentity(req.ParticipantIdentity).
		SetName(name).
		SetMetadata(string(metadataJSON)).
		SetValidFor(credentialTTL)

	jwt, err := at.ToJWT()
	if err != nil {
		return token.Credential{}, &token.IssueError{Message: err.Error()}
	}
	return token.Credential{Token: jwt, RoomName: req.RoomName}, nil
}
