package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lingora-app/lingora/internal/audio"
	"github.com/lingora-app/lingora/internal/config"
	"github.com/lingora-app/lingora/internal/identity"
	"github.com/lingora-app/lingora/internal/repository"
	"github.com/lingora-app/lingora/internal/rtc"
	"github.com/lingora-app/lingora/internal/token"
	"github.com/lingora-app/lingora/internal/transcript"
)

var (
	ErrCaptureUnavailable = errors.New("microphone capture is not available; ensure a capture device is configured")
	ErrAuthRequired       = errors.New("not authenticated")
)

type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
)

type Preferences struct {
	TargetLanguage  string
	NativeLanguage  string
	Level           string
	SpeakingSpeed   float64
	VoicePreference string
	SaveTranscripts bool
}

// Auth is the resolved caller identity plus the raw bearer token forwarded to
// the credential issuer.
type Auth struct {
	Identity      identity.Identity
	IdentityToken string
}

// State is the observable session surface exposed to the UI layer.
type State struct {
	Phase          Phase
	Connecting     bool
	Connected      bool
	MicEnabled     bool
	LocalSpeaking  bool
	RemoteSpeaking bool
	LastError      string
	ConversationID string
	Transcripts    []transcript.Entry
}

// Factory builds one Controller per client session.
type Factory struct {
	cfg        *config.Config
	repo       repository.Repository
	issuer     token.Issuer
	connector  rtc.Connector
	newCapture audio.CaptureFactory
	newSink    audio.SinkFactory
}

func NewFactory(cfg *config.Config, repo repository.Repository, issuer token.Issuer, connector rtc.Connector, newCapture audio.CaptureFactory, newSink audio.SinkFactory) *Factory {
	return &Factory{
		cfg:        cfg,
		repo:       repo,
		issuer:     issuer,
		connector:  connector,
		newCapture: newCapture,
		newSink:    newSink,
	}
}

func (f *Factory) New(auth Auth, prefs Preferences, resumeConversationID string) *Controller {
	if prefs.TargetLanguage == "" {
		prefs.TargetLanguage = f.cfg.DefaultTargetLanguage
	}
	if prefs.NativeLanguage == "" {
		prefs.NativeLanguage = f.cfg.DefaultNativeLanguage
	}
	if prefs.Level == "" {
		prefs.Level = f.cfg.DefaultLevel
	}
	if prefs.SpeakingSpeed <= 0 {
		prefs.SpeakingSpeed = 1.0
	}
	c := &Controller{
		cfg:        f.cfg,
		repo:       f.repo,
		issuer:     f.issuer,
		connector:  f.connector,
		newCapture: f.newCapture,
		newSink:    f.newSink,
		auth:       auth,
		prefs:      prefs,
		resumeID:   resumeConversationID,
		phase:      PhaseDisconnected,
		now:        time.Now,
	}
	c.speaking = NewSpeakingState(c.onSpeakingChanged)
	c.reconciler = transcript.NewReconciler()
	return c
}

// Controller owns one voice session's lifecycle: connect, stream, reconcile,
// disconnect. All state mutation is serialized on one mutex so handler
// callbacks behave like a single event loop.
type Controller struct {
	cfg        *config.Config
	repo       repository.Repository
	issuer     token.Issuer
	connector  rtc.Connector
	newCapture audio.CaptureFactory
	newSink    audio.SinkFactory

	auth     Auth
	prefs    Preferences
	resumeID string

	speaking   *SpeakingState
	reconciler *transcript.Reconciler
	now        func() time.Time

	mu             sync.Mutex
	phase          Phase
	connecting     bool
	micEnabled     bool
	localSpeaking  bool
	remoteSpeaking bool
	lastError      string
	conversationID string
	titleSet       bool
	startedAt      time.Time
	handle         rtc.Handle
	sink           audio.PlaybackSink
	maxTimer       *time.Timer
	// epoch is bumped by Disconnect so a connect still in flight knows it was
	// superseded and must tear down whatever it built.
	epoch    uint64
	onChange func(State)
}

func (c *Controller) SetStateListener(fn func(State)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Phase:          c.phase,
		Connecting:     c.connecting,
		Connected:      c.phase == PhaseConnected,
		MicEnabled:     c.micEnabled,
		LocalSpeaking:  c.localSpeaking,
		RemoteSpeaking: c.remoteSpeaking,
		LastError:      c.lastError,
		ConversationID: c.conversationID,
		Transcripts:    c.reconciler.Entries(),
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(c.Snapshot())
	}
}

// Connect establishes the session. It is a no-op while already connecting or
// connected. Callers must treat it as long-running.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connecting || c.phase == PhaseConnected {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.phase = PhaseConnecting
	c.lastError = ""
	c.reconciler.Reset()
	epoch := c.epoch
	c.mu.Unlock()
	c.notify()

	capture := c.newCapture()
	if !capture.Available() {
		capture.Close()
		return c.failConnect(ErrCaptureUnavailable)
	}
	if c.auth.Identity.UserID == "" {
		capture.Close()
		return c.failConnect(ErrAuthRequired)
	}

	conv, seeded, priorContext := c.resolveConversation(ctx)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		capture.Close()
		return nil
	}
	if conv != nil {
		c.conversationID = conv.ID
		c.titleSet = conv.Title != nil && *conv.Title != ""
	}
	if len(seeded) > 0 {
		c.reconciler.Seed(seeded)
	}
	c.startedAt = c.now()
	conversationID := c.conversationID
	c.mu.Unlock()
	c.notify()

	cred, err := c.issuer.Issue(ctx, c.auth.IdentityToken, token.Request{
		RoomName:            fmt.Sprintf("learn-%s-%d", c.auth.Identity.UserID, c.now().UnixMilli()),
		ParticipantIdentity: c.auth.Identity.UserID,
		ParticipantName:     c.participantName(),
		Metadata: token.Metadata{
			TargetLanguage:  c.prefs.TargetLanguage,
			NativeLanguage:  c.prefs.NativeLanguage,
			Level:           c.prefs.Level,
			SpeakingSpeed:   c.prefs.SpeakingSpeed,
			VoicePreference: c.prefs.VoicePreference,
			ConversationID:  conversationID,
			PreviousContext: priorContext,
		},
	})
	if err != nil {
		capture.Close()
		return c.failConnect(err)
	}

	sink := c.newSink()
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		sink.Close()
		capture.Close()
		return nil
	}
	c.sink = sink
	c.mu.Unlock()

	handle, err := c.connector.Connect(ctx, c.cfg.LiveKitURL, cred.Token, capture, rtc.Callbacks{
		OnConnectionStateChanged: c.handleConnectionState,
		OnTrackSubscribed:        c.handleTrackSubscribed,
		OnTrackUnsubscribed:      c.handleTrackUnsubscribed,
		OnDataReceived:           c.handleData,
		OnActiveSpeakersChanged:  c.handleActiveSpeakers,
	})
	if err != nil {
		c.dropSink(sink)
		capture.Close()
		return c.failConnect(fmt.Errorf("failed to open media session: %w", err))
	}
	if err := handle.SetMicrophoneEnabled(true); err != nil {
		handle.Disconnect()
		c.dropSink(sink)
		return c.failConnect(fmt.Errorf("failed to enable microphone: %w", err))
	}

	c.mu.Lock()
	if c.epoch != epoch {
		// Superseded by a disconnect while the handshake was in flight; the
		// disconnect already reset state, so only the fresh resources remain.
		c.mu.Unlock()
		handle.Disconnect()
		sink.Close()
		return nil
	}
	c.handle = handle
	c.micEnabled = true
	c.phase = PhaseConnected
	c.connecting = false
	if c.cfg.MaxSessionDurationMin > 0 {
		c.maxTimer = time.AfterFunc(time.Duration(c.cfg.MaxSessionDurationMin)*time.Minute, c.Disconnect)
	}
	c.mu.Unlock()
	c.notify()

	slog.Info("session connected",
		"user_id", c.auth.Identity.UserID,
		"conversation_id", conversationID,
		"room", cred.RoomName,
		"target_language", c.prefs.TargetLanguage)
	return nil
}

// resolveConversation loads the resume target or creates a fresh
// conversation. Persistence failure degrades to a session without durable
// backing rather than blocking the connect.
func (c *Controller) resolveConversation(ctx context.Context) (*repository.Conversation, []transcript.Entry, string) {
	if c.resumeID != "" {
		cw, err := c.repo.GetConversationWithTranscripts(ctx, c.resumeID)
		if err != nil {
			slog.Warn("failed to load conversation to resume; starting fresh",
				"error", err, "conversation_id", c.resumeID)
		} else {
			seeded := transcript.FromDurable(cw.Entries)
			return &cw.Conversation, seeded, transcript.FormatContext(seeded)
		}
	}
	created, err := c.repo.CreateConversation(ctx, repository.CreateConversationInput{
		UserID:   c.auth.Identity.UserID,
		Language: c.prefs.TargetLanguage,
		Level:    c.prefs.Level,
	})
	if err != nil {
		slog.Error("failed to create conversation; continuing without durable backing", "error", err)
		return nil, nil, ""
	}
	return created, nil, ""
}

func (c *Controller) participantName() string {
	if c.auth.Identity.Email != "" {
		return c.auth.Identity.Email
	}
	return c.auth.Identity.UserID
}

func (c *Controller) failConnect(err error) error {
	slog.Error("session connect failed", "error", err, "user_id", c.auth.Identity.UserID)
	c.mu.Lock()
	c.connecting = false
	c.phase = PhaseDisconnected
	c.lastError = err.Error()
	c.conversationID = ""
	c.titleSet = false
	c.startedAt = time.Time{}
	c.reconciler.Reset()
	c.mu.Unlock()
	c.notify()
	return err
}

func (c *Controller) dropSink(sink audio.PlaybackSink) {
	c.mu.Lock()
	if c.sink == sink {
		c.sink = nil
	}
	c.mu.Unlock()
	sink.Close()
}

// Disconnect tears the session down. Always safe to call, including while a
// connect is in flight or when never connected.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.epoch++
	if c.maxTimer != nil {
		c.maxTimer.Stop()
		c.maxTimer = nil
	}
	handle := c.handle
	sink := c.sink
	conversationID := c.conversationID
	startedAt := c.startedAt
	c.handle = nil
	c.sink = nil
	c.phase = PhaseDisconnected
	c.connecting = false
	c.micEnabled = false
	c.localSpeaking = false
	c.remoteSpeaking = false
	c.lastError = ""
	c.conversationID = ""
	c.titleSet = false
	c.startedAt = time.Time{}
	c.reconciler.Reset()
	c.mu.Unlock()

	c.speaking.Stop()

	if conversationID != "" && !startedAt.IsZero() {
		duration := int64(c.now().Sub(startedAt).Seconds())
		if err := c.repo.CompleteConversation(context.Background(), repository.CompleteConversationInput{
			ConversationID:  conversationID,
			DurationSeconds: duration,
			HasDuration:     true,
		}); err != nil {
			slog.Error("failed to complete conversation", "error", err, "conversation_id", conversationID)
		} else {
			slog.Info("conversation completed", "conversation_id", conversationID, "duration_seconds", duration)
		}
	}
	if handle != nil {
		handle.Disconnect()
	}
	if sink != nil {
		sink.Close()
	}
	c.notify()
}

// ToggleMicrophone flips local capture. No-op unless a transport handle
// exists.
func (c *Controller) ToggleMicrophone() {
	c.mu.Lock()
	if c.handle == nil {
		c.mu.Unlock()
		return
	}
	next := !c.micEnabled
	if err := c.handle.SetMicrophoneEnabled(next); err != nil {
		c.mu.Unlock()
		slog.Error("failed to toggle microphone", "error", err)
		return
	}
	c.micEnabled = next
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) handleConnectionState(state rtc.ConnectionState) {
	c.mu.Lock()
	if c.handle == nil && !c.connecting {
		c.mu.Unlock()
		return
	}
	switch state {
	case rtc.StateDisconnected:
		c.phase = PhaseDisconnected
	case rtc.StateReconnecting:
		c.phase = PhaseConnecting
	case rtc.StateConnected:
		if !c.connecting {
			c.phase = PhaseConnected
		}
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) handleTrackSubscribed(track rtc.RemoteTrack) {
	if track.Kind() != rtc.TrackKindAudio {
		return
	}
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink.Attach(track)
	}
}

func (c *Controller) handleTrackUnsubscribed(track rtc.RemoteTrack) {
	if track.Kind() != rtc.TrackKindAudio {
		return
	}
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink.Detach(track.ID())
	}
}

func (c *Controller) handleActiveSpeakers(identities []string) {
	local := false
	remote := false
	for _, id := range identities {
		if id == c.auth.Identity.UserID {
			local = true
		} else if id != "" {
			remote = true
		}
	}
	c.speaking.Update(local, remote)
}

func (c *Controller) onSpeakingChanged(local, remote bool) {
	c.mu.Lock()
	c.localSpeaking = local
	c.remoteSpeaking = remote
	c.mu.Unlock()
	c.notify()
}

// handleData feeds the reconciler and drives durable persistence for
// finalized fragments. Repository calls happen under the session mutex so
// writes are issued in finalization order; completion order is up to storage.
func (c *Controller) handleData(payload []byte) {
	frag, ok, err := parseTranscriptFragment(payload)
	if err != nil {
		slog.Warn("dropping malformed data message", "error", err)
		return
	}
	if !ok {
		return
	}

	c.mu.Lock()
	if c.handle == nil && !c.connecting {
		c.mu.Unlock()
		return
	}
	outcome := c.reconciler.Apply(frag)
	conversationID := c.conversationID
	persist := conversationID != "" && c.prefs.SaveTranscripts && (outcome.Finalized || outcome.Amended)
	var title string
	if outcome.Finalized && frag.Role == repository.RoleUser && !c.titleSet && conversationID != "" {
		if t := transcript.DeriveTitle(outcome.Entry.Text); t != "" {
			title = t
			c.titleSet = true
		}
	}
	if persist {
		if _, err := c.repo.AppendTranscriptEntry(context.Background(), repository.AppendTranscriptEntryInput{
			ConversationID: conversationID,
			Role:           outcome.Entry.Role,
			Content:        outcome.Entry.Text,
		}); err != nil {
			slog.Error("failed to append transcript entry", "error", err, "conversation_id", conversationID)
		}
	}
	if title != "" {
		if err := c.repo.UpdateConversationTitle(context.Background(), conversationID, title); err != nil {
			slog.Error("failed to update conversation title", "error", err, "conversation_id", conversationID)
		}
	}
	c.mu.Unlock()
	c.notify()
}
