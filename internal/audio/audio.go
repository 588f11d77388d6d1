package audio

// CaptureSource produces encoded microphone frames for publishing.
type CaptureSource interface {
	// Available reports whether local audio capture can be used at all.
	Available() bool
	// ReadFrame returns the next 20ms opus frame.
	ReadFrame() ([]byte, error)
	Close()
}

type CaptureFactory func() CaptureSource

// Track is the subset of a subscribed remote track a sink consumes.
type Track interface {
	ID() string
	ReadPayload() ([]byte, error)
}

// PlaybackSink plays remote audio tracks. One sink exists per session and is
// closed before the session's teardown completes.
type PlaybackSink interface {
	Attach(track Track)
	Detach(trackID string)
	Close()
}

type SinkFactory func() PlaybackSink
