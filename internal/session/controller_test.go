package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lingora-app/lingora/internal/audio"
	"github.com/lingora-app/lingora/internal/config"
	"github.com/lingora-app/lingora/internal/identity"
	"github.com/lingora-app/lingora/internal/repository"
	"github.com/lingora-app/lingora/internal/rtc"
	"github.com/lingora-app/lingora/internal/token"
)

type mockRepo struct {
	mu        sync.Mutex
	createErr error
	getResult *repository.ConversationWithTranscripts
	getErr    error
	appendErr error

	created   []repository.CreateConversationInput
	appended  []repository.AppendTranscriptEntryInput
	completed []repository.CompleteConversationInput
	titles    []string
}

func (m *mockRepo) CreateConversation(_ context.Context, input repository.CreateConversationInput) (*repository.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = append(m.created, input)
	return &repository.Conversation{
		ID:       "conv-1",
		UserID:   input.UserID,
		Language: input.Language,
		Level:    input.Level,
		Status:   repository.ConversationStatusActive,
	}, nil
}

func (m *mockRepo) GetConversationWithTranscripts(_ context.Context, conversationID string) (*repository.ConversationWithTranscripts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getResult == nil {
		return nil, repository.ErrNotFound
	}
	return m.getResult, nil
}

func (m *mockRepo) ListConversationsByUser(_ context.Context, userID string, limit int) ([]repository.Conversation, error) {
	return nil, nil
}

func (m *mockRepo) CompleteConversation(_ context.Context, input repository.CompleteConversationInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, input)
	return nil
}

func (m *mockRepo) UpdateConversationTitle(_ context.Context, conversationID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles = append(m.titles, title)
	return nil
}

func (m *mockRepo) AppendTranscriptEntry(_ context.Context, input repository.AppendTranscriptEntryInput) (*repository.TranscriptEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	m.appended = append(m.appended, input)
	return &repository.TranscriptEntry{ID: fmt.Sprintf("entry-%d", len(m.appended)), ConversationID: input.ConversationID, Role: input.Role, Content: input.Content}, nil
}

func (m *mockRepo) SaveSignupConsent(_ context.Context, input repository.SaveSignupConsentInput) error {
	return nil
}

type mockIssuer struct {
	err      error
	requests []token.Request
	tokens   []string
}

func (m *mockIssuer) Issue(_ context.Context, identityToken string, req token.Request) (token.Credential, error) {
	if m.err != nil {
		return token.Credential{}, m.err
	}
	m.requests = append(m.requests, req)
	m.tokens = append(m.tokens, identityToken)
	return token.Credential{Token: "session-token", RoomName: req.RoomName}, nil
}

type mockCapture struct {
	available bool
	closed    bool
}

func (m *mockCapture) Available() bool { return m.available }

func (m *mockCapture) ReadFrame() ([]byte, error) { return nil, io.EOF }

func (m *mockCapture) Close() { m.closed = true }

type mockSink struct {
	attached []string
	detached []string
	closed   bool
}

func (m *mockSink) Attach(track audio.Track) { m.attached = append(m.attached, track.ID()) }

func (m *mockSink) Detach(trackID string) { m.detached = append(m.detached, trackID) }

func (m *mockSink) Close() { m.closed = true }

type mockHandle struct {
	micCalls    []bool
	micErr      error
	disconnects int
}

func (m *mockHandle) SetMicrophoneEnabled(enabled bool) error {
	if m.micErr != nil {
		return m.micErr
	}
	m.micCalls = append(m.micCalls, enabled)
	return nil
}

func (m *mockHandle) Disconnect() { m.disconnects++ }

type mockConnector struct {
	err    error
	handle *mockHandle
	cb     rtc.Callbacks
	urls   []string
}

func (m *mockConnector) Connect(_ context.Context, url, authToken string, capture audio.CaptureSource, cb rtc.Callbacks) (rtc.Handle, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.cb = cb
	m.urls = append(m.urls, url)
	return m.handle, nil
}

type mockTrack struct {
	id   string
	kind rtc.TrackKind
}

func (m *mockTrack) ID() string { return m.id }

func (m *mockTrack) Kind() rtc.TrackKind { return m.kind }

func (m *mockTrack) ReadPayload() ([]byte, error) { return nil, io.EOF }

type fixture struct {
	repo    *mockRepo
	issuer  *mockIssuer
	conn    *mockConnector
	capture *mockCapture
	sink    *mockSink
	factory *Factory
}

func newFixture() *fixture {
	f := &fixture{
		repo:    &mockRepo{},
		issuer:  &mockIssuer{},
		conn:    &mockConnector{handle: &mockHandle{}},
		capture: &mockCapture{available: true},
		sink:    &mockSink{},
	}
	cfg := &config.Config{
		LiveKitURL:            "wss://livekit.example",
		DefaultTargetLanguage: "es",
		DefaultNativeLanguage: "en",
		DefaultLevel:          "beginner",
		MaxSessionDurationMin: 30,
	}
	f.factory = NewFactory(cfg, f.repo, f.issuer, f.conn,
		func() audio.CaptureSource { return f.capture },
		func() audio.PlaybackSink { return f.sink })
	return f
}

func testAuth() Auth {
	return Auth{
		Identity:      identity.Identity{UserID: "user-1", Email: "user@example.com"},
		IdentityToken: "bearer-1",
	}
}

func transcriptPayload(id, role, text string, isFinal bool) []byte {
	return []byte(fmt.Sprintf(`{"type":"transcript","id":%q,"role":%q,"text":%q,"isFinal":%v}`, id, role, text, isFinal))
}

func mustConnect(t *testing.T, c *Controller) {
	t.Helper()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
}

func TestConnect_EstablishesSession(t *testing.T) {
	f := newFixture()
	c := f.factory.New(testAuth(), Preferences{SaveTranscripts: true}, "")
	mustConnect(t, c)

	state := c.Snapshot()
	if state.Phase != PhaseConnected || !state.Connected || state.Connecting {
		t.Fatalf("unexpected state: %+v", state)
	}
	if !state.MicEnabled {
		t.Fatal("expected microphone enabled after connect")
	}
	if state.ConversationID != "conv-1" {
		t.Fatalf("expected conversation conv-1, got %q", state.ConversationID)
	}
	if len(f.conn.handle.micCalls) != 1 || !f.conn.handle.micCalls[0] {
		t.Fatalf("expected a single mic-enable call, got %v", f.conn.handle.micCalls)
	}
	if len(f.issuer.requests) != 1 {
		t.Fatalf("expected one credential request, got %d", len(f.issuer.requests))
	}
	req := f.issuer.requests[0]
	if !strings.HasPrefix(req.RoomName, "learn-user-1-") {
		t.Fatalf("unexpected room name %q", req.RoomName)
	}
	if req.Metadata.TargetLanguage != "es" || req.Metadata.NativeLanguage != "en" || req.Metadata.Level != "beginner" {
		t.Fatalf("expected configured defaults in metadata, got %+v", req.Metadata)
	}
	if req.Metadata.SpeakingSpeed != 1.0 {
		t.Fatalf("expected default speaking speed 1.0, got %v", req.Metadata.SpeakingSpeed)
	}
	if req.Metadata.ConversationID != "conv-1" {
		t.Fatalf("expected conversation id in metadata, got %q", req.Metadata.ConversationID)
	}
	if f.issuer.tokens[0] != "bearer-1" {
		t.Fatalf("expected identity token forwarded to issuer, got %q", f.issuer.tokens[0])
	}
}

func TestConnect_IsNoOpWhileConnected(t *testing.T) {
	f := newFixture()
	c := f.factory.New(testAuth(), Preferences{}, "")
	mustConnect(t, c)
	mustConnect(t, c)

	if len(f.issuer.requests) != 1 {
		t.Fatalf("second connect must be a no-op, got %d credential requests", len(f.issuer.requests))
	}
}

func TestConnect_CaptureUnavailable(t *testing.T) {
	f := newFixture()
	f.capture.available = false
	c := f.factory.New(testAuth(), Preferences{}, "")

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrCaptureUnavailable) {
		t.Fatalf("expected ErrCaptureUnavailable, got %v", err)
	}
	if !f.capture.closed {
		t.Fatal("expected capture source closed on failure")
	}
	if len(f.repo.created) != 0 || len(f.issuer.requests) != 0 {
		t.Fatal("no collaborator may be contacted when capture is unavailable")
	}
	state := c.Snapshot()
	if state.Phase != PhaseDisconnected || state.Connecting || state.LastError == "" {
		t.Fatalf("unexpected failure state: %+v", state)
	}
}

func TestConnect_RequiresIdentity(t *testing.T) {
	f := newFixture()
	c := f.factory.New(Auth{}, Preferences{}, "")

	if err := c.Connect(context.Background()); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if len(f.issuer.requests) != 0 {
		t.Fatal("issuer must not be contacted without an identity")
	}
}

func TestConnect_IssuerFailureSurfacesMessage(t *testing.T) {
	f := newFixture()
	f.issuer.err = &token.IssueError{Message: "plan limit reached"}
	c := f.factory.New(testAuth(), Preferences{}, "")

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected connect to fail")
	}
	state := c.Snapshot()
	if !strings.Contains(state.LastError, "plan limit reached") {
		t.Fatalf("expected issuer message in last error, got %q", state.LastError)
	}
	if state.Phase != PhaseDisconnected || state.ConversationID != "" || len(state.Transcripts) != 0 {
		t.Fatalf("expected fully reset state after failure: %+v", state)
	}
	if !f.capture.closed {
		t.Fatal("expected capture source closed on failure")
	}
}

func TestConnect_TransportFailureClosesSink(t *testing.T) {
	f := newFixture()
	f.conn.err = errors.New("dial timeout")
	c := f.factory.New(testAuth(), Preferences{}, "")

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected connect to fail")
	}
	if !f.sink.closed || !f.capture.closed {
		t.Fatal("expected sink and capture cleaned up after transport failure")
	}
}

func TestConnect_PersistenceFailureDegrades(t *testing.T) {
	f := newFixture()
	f.repo.createErr = errors.New("database down")
	c := f.factory.New(testAuth(), Preferences{SaveTranscripts: true}, "")
	mustConnect(t, c)

	state := c.Snapshot()
	if !state.Connected {
		t.Fatal("session must connect even when conversation creation fails")
	}
	if state.ConversationID != "" {
		t.Fatalf("expected no conversation id in degraded mode, got %q", state.ConversationID)
	}

	// Transcripts still accumulate in memory, but nothing is persisted.
	f.conn.cb.OnDataReceived(transcriptPayload("t1", "user", "hola", true))
	if len(c.Snapshot().Transcripts) != 1 {
		t.Fatal("expected in-memory transcript in degraded mode")
	}
	if len(f.repo.appended) != 0 {
		t.Fatal("no transcript writes may happen without a conversation")
	}

	c.Disconnect()
	if len(f.repo.completed) != 0 {
		t.Fatal("no completion write may happen without a conversation")
	}
}

func TestConnect_ResumeSeedsHistory(t *testing.T) {
	f := newFixture()
	title := "Quick chat"
	f.repo.getResult = &repository.ConversationWithTranscripts{
		Conversation: repository.Conversation{ID: "conv-9", UserID: "user-1", Title: &title},
		Entries: []repository.TranscriptEntry{
			{ID: "e1", ConversationID: "conv-9", Role: repository.RoleUser, Content: "Hola"},
			{ID: "e2", ConversationID: "conv-9", Role: repository.RoleAssistant, Content: "Hi there"},
		},
	}
	c := f.factory.New(testAuth(), Preferences{SaveTranscripts: true}, "conv-9")
	mustConnect(t, c)

	state := c.Snapshot()
	if state.ConversationID != "conv-9" {
		t.Fatalf("expected resumed conversation, got %q", state.ConversationID)
	}
	if len(state.Transcripts) != 2 || !state.Transcripts[0].IsFinal {
		t.Fatalf("expected seeded final history, got %+v", state.Transcripts)
	}
	req := f.issuer.requests[0]
	if req.Metadata.PreviousContext != "User: Hola\nAssistant: Hi there" {
		t.Fatalf("unexpected previous context: %q", req.Metadata.PreviousContext)
	}
	if req.Metadata.ConversationID != "conv-9" {
		t.Fatalf("expected resumed id in metadata, got %q", req.Metadata.ConversationID)
	}

	// The resumed conversation already has a title; it must not be replaced.
	f.conn.cb.OnDataReceived(transcriptPayload("t1", "user", "another topic", true))
	if len(f.repo.titles) != 0 {
		t.Fatalf("resumed title must not be overwritten, got %v", f.repo.titles)
	}
}

func TestConnect_ResumeNotFoundStartsFresh(t *testing.T) {
	f := newFixture()
	f.repo.getErr = repository.ErrNotFound
	c := f.factory.New(testAuth(), Preferences{}, "conv-gone")
	mustConnect(t, c)

	if len(f.repo.created) != 1 {
		t.Fatal("expected a fresh conversation when the resume target is missing")
	}
	if got := c.Snapshot().ConversationID; got != "conv-1" {
		t.Fatalf("expected fresh conversation id, got %q", got)
	}
}

func TestTranscripts_PersistOnFinalizationOnly(t *testing.T) {
	f := newFixture()
	c := f.factory.New(testAuth(), Preferences{SaveTranscripts: true}, "")
	mustConnect(t, c)
	cb := f.conn.cb

	cb.OnDataReceived(transcriptPayload("t1", "assistant", "ho", false))
	if len(f.repo.appended) != 0 {
		t.Fatal("interim fragments must not be persisted")
	}

	cb.OnDataReceived(transcriptPayload("t1", "assistant", "hola", true))
	if len(f.repo.appended) != 1 {
		t.Fatalf("expected one write after finalization, got %d", len(f.repo.appended))
	}
	if f.repo.appended[0].Content != "hola" || f.repo.appended[0].ConversationID != "conv-1" {
		t.Fatalf("unexpected write: %+v", f.repo.appended[0])
	}

	// Identical redelivery of the final fragment is not written again.
	cb.OnDataReceived(transcriptPayload("t1", "assistant", "hola", true))
	if len(f.repo.appended) != 1 {
		t.Fatalf("redelivery must not duplicate the write, got %d", len(f.repo.appended))
	}

	// A changed final text is an amendment and is written.
	cb.OnDataReceived(transcriptPayload("t1", "assistant", "hola amigo", true))
	if len(f.repo.appended) != 2 {
		t.Fatalf("expected amendment write, got %d", len(f.repo.appended))
	}

	if entries := c.Snapshot().Transcripts; len(entries) != 1 || entries[0].Text != "hola amigo" {
		t.Fatalf("expected single reconciled entry, got %+v", entries)
	}
}

func TestTranscripts_NotPersistedWhenSavingDisabled(t *testing.T) {
	f := newFixture()
	c := f.factory.New(testAuth(), Preferences{SaveTranscripts: false}, "")
	mustConnect(t, c)

	f.conn.cb.OnDataReceived(transcriptPayload("t1", "user", "hola", true))
	if len(f.repo.appended) != 0 {
		t.Fatal("transcript saving is disabled for this session")
	}
	if len(c.Snapshot().Transcripts) != 1 {
		t.Fatal("in-memory transcript must still accumulate")
	}
}

func TestTranscripts_IgnoredAfterDisconnect(t *testing.T) {
	f := newFixture()
	c := f.factory.New(testAuth(), Preferences{SaveTranscripts: true}, "")
	mustConnect(t, c)
	cb := f.conn.cb
	c.Disconnect()

	cb.OnDataReceived(transcriptPayload("t1", "user", "late", true))
	if len(f.repo.appended) != 0 {
		t.Fatal("data after disconnect must be dropped")
	}
	if len(c.Snapshot().Transcripts) != 0 {
		t.Fatal("transcripts must stay empty after disconnect")
	}
}

func TestTitle_SetOnceFromFirstUserUtterance(t *testing.T) {
	f := newFixture()
	c := f.factory.New(testAuth(), Preferences{SaveTranscripts: true}, "")
	mustConnect(t, c)
	cb := f.conn.cb

	cb.OnDataReceived(transcriptPayload("a1", "assistant", "Welcome!", true))
	if len(f.repo.titles) != 0 {
		t.Fatal("assistant utterances must not set the title")
	}

	long := strings.Repeat("x", 80)
	cb.OnDataReceived(transcriptPayload("u1", "user", long, true))
	if len(f.repo.titles) != 1 {
		t.Fatalf("expected one title write, got %d", len(f.repo.titles))
	}
	if want := strings.Repeat("x", 50) + "..."; f.repo.titles[0] != want {
		t.Fatalf("expected truncated title %q, got %q", want, f.repo.titles[0])
	}

	cb.OnDataReceived(transcriptPayload("u2", "user", "second utterance", true))
	if len(f.repo.titles) != 1 {
		t.Fatalf("title must be set exactly once, got %v", f.repo.titles)
	}
}

func TestToggleMicrophone(t *testing.T) {
	f := newFixture()
	c := f.factory.New(testAuth(), Preferences{}, "")

	// No-op without a transport handle.
	c.ToggleMicrophone()
	if len(f.conn.handle.micCalls) != 0 {
		t.Fatal("toggle before connect must be a no-op")
	}

	mustConnect(t, c)
	c.ToggleMicrophone()
	state := c.Snapshot()
	if state.MicEnabled {
		t.Fatal("expected microphone disabled after toggle")
	}
	c.ToggleMicrophone()
	if !c.Snapshot().MicEnabled {
		t.Fatal("expected microphone re-enabled after second toggle")
	}
	want := []bool{true, false, true}
	if len(f.conn.handle.micCalls) != len(want) {
		t.Fatalf("unexpected mic calls: %v", f.conn.handle.micCalls)
	}
	for i, v := range want {
		if f.conn.handle.micCalls[i] != v {
			t.Fatalf("unexpected mic calls: %v", f.conn.handle.micCalls)
		}
	}
}

func TestDisconnect_CompletesConversationAndResets(t *testing.T) {
	f := newFixture()
	c := f.factory.New(testAuth(), Preferences{SaveTranscripts: true}, "")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	c.now = func() time.Time { return current }

	mustConnect(t, c)
	f.conn.cb.OnDataReceived(transcriptPayload("t1", "user", "hola", true))

	current = base.Add(90 * time.Second)
	c.Disconnect()

	if len(f.repo.completed) != 1 {
		t.Fatalf("expected one completion write, got %d", len(f.repo.completed))
	}
	done := f.repo.completed[0]
	if done.ConversationID != "conv-1" || !done.HasDuration || done.DurationSeconds != 90 {
		t.Fatalf("unexpected completion: %+v", done)
	}
	if f.conn.handle.disconnects != 1 {
		t.Fatalf("expected one transport disconnect, got %d", f.conn.handle.disconnects)
	}
	if !f.sink.closed {
		t.Fatal("expected playback sink closed")
	}

	state := c.Snapshot()
	if state.Phase != PhaseDisconnected || state.MicEnabled || state.ConversationID != "" || len(state.Transcripts) != 0 {
		t.Fatalf("expected fully reset state, got %+v", state)
	}

	// Idempotent: a second disconnect does nothing further.
	c.Disconnect()
	if len(f.repo.completed) != 1 || f.conn.handle.disconnects != 1 {
		t.Fatal("second disconnect must be a no-op")
	}
}

func TestDisconnect_BeforeConnectIsSafe(t *testing.T) {
	f := newFixture()
	c := f.factory.New(testAuth(), Preferences{}, "")
	c.Disconnect()
	if len(f.repo.completed) != 0 {
		t.Fatal("disconnect without a session must not write anything")
	}
}

func TestSpeakerEvents_UpdateFlags(t *testing.T) {
	f := newFixture()
	c := f.factory.New(testAuth(), Preferences{}, "")
	mustConnect(t, c)

	f.conn.cb.OnActiveSpeakersChanged([]string{"user-1", "agent-7"})
	state := c.Snapshot()
	if !state.LocalSpeaking || !state.RemoteSpeaking {
		t.Fatalf("expected both flags raised, got %+v", state)
	}

	f.conn.cb.OnActiveSpeakersChanged([]string{"agent-7"})
	state = c.Snapshot()
	if state.LocalSpeaking {
		t.Fatal("expected local flag to drop immediately")
	}
	if !state.RemoteSpeaking {
		t.Fatal("remote flag must hold while the agent speaks")
	}
}

func TestAudioTracks_RoutedToSink(t *testing.T) {
	f := newFixture()
	c := f.factory.New(testAuth(), Preferences{}, "")
	mustConnect(t, c)

	f.conn.cb.OnTrackSubscribed(&mockTrack{id: "tr-audio", kind: rtc.TrackKindAudio})
	f.conn.cb.OnTrackSubscribed(&mockTrack{id: "tr-video", kind: rtc.TrackKindVideo})
	if len(f.sink.attached) != 1 || f.sink.attached[0] != "tr-audio" {
		t.Fatalf("expected only the audio track attached, got %v", f.sink.attached)
	}

	f.conn.cb.OnTrackUnsubscribed(&mockTrack{id: "tr-audio", kind: rtc.TrackKindAudio})
	if len(f.sink.detached) != 1 || f.sink.detached[0] != "tr-audio" {
		t.Fatalf("expected audio track detached, got %v", f.sink.detached)
	}
}

func TestStateListener_ObservesTransitions(t *testing.T) {
	f := newFixture()
	c := f.factory.New(testAuth(), Preferences{}, "")

	var mu sync.Mutex
	var phases []Phase
	c.SetStateListener(func(s State) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	})

	mustConnect(t, c)
	c.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	if len(phases) == 0 {
		t.Fatal("expected state notifications")
	}
	if phases[0] != PhaseConnecting {
		t.Fatalf("expected connecting first, got %v", phases)
	}
	sawConnected := false
	for _, p := range phases {
		if p == PhaseConnected {
			sawConnected = true
		}
	}
	if !sawConnected {
		t.Fatalf("expected a connected notification, got %v", phases)
	}
	if phases[len(phases)-1] != PhaseDisconnected {
		t.Fatalf("expected disconnected last, got %v", phases)
	}
}
