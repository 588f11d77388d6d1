package rtc

import (
	"context"

	"github.com/lingora-app/lingora/internal/audio"
)

type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// RemoteTrack is a subscribed media track published by another participant.
type RemoteTrack interface {
	ID() string
	Kind() TrackKind
	// ReadPayload returns the next codec payload from the track.
	ReadPayload() ([]byte, error)
}

// Callbacks holds exactly one handler per notification kind. All handlers are
// registered on connect and implicitly released when the handle is
// disconnected; nil handlers are skipped.
type Callbacks struct {
	OnConnectionStateChanged func(state ConnectionState)
	OnTrackSubscribed        func(track RemoteTrack)
	OnTrackUnsubscribed      func(track RemoteTrack)
	OnDataReceived           func(payload []byte)
	OnActiveSpeakersChanged  func(identities []string)
}

// Handle is an open media session. Exactly one exists per active session and
// it is owned by the session controller.
type Handle interface {
	SetMicrophoneEnabled(enabled bool) error
	Disconnect()
}

type Connector interface {
	// Connect opens a media session. On success the handle takes ownership of
	// the capture source; on error the caller keeps it.
	Connect(ctx context.Context, url, authToken string, capture audio.CaptureSource, cb Callbacks) (Handle, error)
}
