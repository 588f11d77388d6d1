package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lingora-app/lingora/internal/token"
)

type HTTPIssuer struct {
	issuerURL string
	client    *http.Client
}

func NewHTTPIssuer(issuerURL string) token.Issuer {
	return &HTTPIssuer{
		issuerURL: issuerURL,
		client:    &http.Client{},
	}
}

type issueRequestBody struct {
	RoomName        string         `json:"roomName"`
	ParticipantName string         `json:"participantName,omitempty"`
	Metadata        token.Metadata `json:"metadata"`
}

type issueResponseBody struct {
	Token    string `json:"token"`
	RoomName string `json:"roomName"`
	Error    string `json:"error"`
}

func (s *HTTPIssuer) Issue(ctx context.Context, identityToken string, req token.Request) (token.Credential, error) {
	b, err := json.Marshal(issueRequestBody{
		RoomName:        req.RoomName,
		ParticipantName: req.ParticipantName,
		Metadata:        req.Metadata,
	})
	if err != nil {
		return token.Credential{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.issuerURL, bytes.NewReader(b))
	if err != nil {
		return token.Credential{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+identityToken)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return token.Credential{}, &token.IssueError{Message: err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var body issueResponseBody
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	if !isHTTPSuccessStatus(resp.StatusCode) {
		msg := body.Error
		if msg == "" {
			msg = fmt.Sprintf("issuer returned status %d", resp.StatusCode)
		}
		return token.Credential{}, &token.IssueError{Message: msg}
	}
	if decodeErr != nil {
		return token.Credential{}, &token.IssueError{Message: fmt.Sprintf("invalid issuer response: %v", decodeErr)}
	}
	if body.Token == "" {
		return token.Credential{}, &token.IssueError{Message: "issuer response has no token"}
	}
	roomName := body.RoomName
	if roomName == "" {
		roomName = req.RoomName
	}
	return token.Credential{Token: body.Token, RoomName: roomName}, nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
