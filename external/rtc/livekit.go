package rtc

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/lingora-app/lingora/internal/audio"
	rtcpkg "github.com/lingora-app/lingora/internal/rtc"
)

const micFrameDuration = 20 * time.Millisecond

type LiveKitConnector struct{}

func NewLiveKitConnector() rtcpkg.Connector {
	return &LiveKitConnector{}
}

func (c *LiveKitConnector) Connect(ctx context.Context, url, authToken string, capture audio.CaptureSource, cb rtcpkg.Callbacks) (rtcpkg.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	roomCB := &lksdk.RoomCallback{
		OnDisconnected: func() {
			if cb.OnConnectionStateChanged != nil {
				cb.OnConnectionStateChanged(rtcpkg.StateDisconnected)
			}
		},
		OnReconnecting: func() {
			if cb.OnConnectionStateChanged != nil {
				cb.OnConnectionStateChanged(rtcpkg.StateReconnecting)
			}
		},
		OnReconnected: func() {
			if cb.OnConnectionStateChanged != nil {
				cb.OnConnectionStateChanged(rtcpkg.StateConnected)
			}
		},
		OnActiveSpeakersChanged: func(speakers []lksdk.Participant) {
			if cb.OnActiveSpeakersChanged == nil {
				return
			}
			identities := make([]string, 0, len(speakers))
			for _, p := range speakers {
				identities = append(identities, p.Identity())
			}
			cb.OnActiveSpeakersChanged(identities)
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, _ *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				slog.Info("remote track subscribed", "track_id", track.ID(), "participant", rp.Identity())
				if cb.OnTrackSubscribed != nil {
					cb.OnTrackSubscribed(&remoteTrack{track: track})
				}
			},
			OnTrackUnsubscribed: func(track *webrtc.TrackRemote, _ *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				slog.Info("remote track unsubscribed", "track_id", track.ID(), "participant", rp.Identity())
				if cb.OnTrackUnsubscribed != nil {
					cb.OnTrackUnsubscribed(&remoteTrack{track: track})
				}
			},
			OnDataPacket: func(data lksdk.DataPacket, _ lksdk.DataReceiveParams) {
				if cb.OnDataReceived == nil {
					return
				}
				if user, ok := data.(*lksdk.UserDataPacket); ok {
					cb.OnDataReceived(user.Payload)
				}
			},
		},
	}

	room, err := lksdk.ConnectToRoomWithToken(url, authToken, roomCB, lksdk.WithAutoSubscribe(true))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		room.Disconnect()
		return nil, err
	}

	h := &liveKitHandle{
		room:    room,
		capture: capture,
		done:    make(chan struct{}),
	}
	if err := h.publishMicrophone(); err != nil {
		room.Disconnect()
		return nil, err
	}
	if cb.OnConnectionStateChanged != nil {
		cb.OnConnectionStateChanged(rtcpkg.StateConnected)
	}
	return h, nil
}

type liveKitHandle struct {
	room    *lksdk.Room
	capture audio.CaptureSource
	micPub  *lksdk.LocalTrackPublication

	micEnabled atomic.Bool
	closeOnce  sync.Once
	done       chan struct{}
}

func (h *liveKitHandle) publishMicrophone() error {
	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  1,
	})
	if err != nil {
		return err
	}
	pub, err := h.room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "microphone",
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		return err
	}
	h.micPub = pub
	h.micEnabled.Store(true)

	go func() {
		for {
			select {
			case <-h.done:
				return
			default:
			}
			frame, err := h.capture.ReadFrame()
			if err != nil {
				slog.Warn("microphone capture ended", "error", err)
				return
			}
			if !h.micEnabled.Load() {
				continue
			}
			if err := track.WriteSample(media.Sample{Data: frame, Duration: micFrameDuration}, nil); err != nil {
				slog.Warn("failed to write microphone sample", "error", err)
				return
			}
		}
	}()
	return nil
}

func (h *liveKitHandle) SetMicrophoneEnabled(enabled bool) error {
	h.micEnabled.Store(enabled)
	if h.micPub != nil {
		h.micPub.SetMuted(!enabled)
	}
	return nil
}

func (h *liveKitHandle) Disconnect() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.room.Disconnect()
		h.capture.Close()
	})
}

type remoteTrack struct {
	track *webrtc.TrackRemote
}

func (t *remoteTrack) ID() string {
	return t.track.ID()
}

func (t *remoteTrack) Kind() rtcpkg.TrackKind {
	if t.track.Kind() == webrtc.RTPCodecTypeAudio {
		return rtcpkg.TrackKindAudio
	}
	return rtcpkg.TrackKindVideo
}

func (t *remoteTrack) ReadPayload() ([]byte, error) {
	pkt, _, err := t.track.ReadRTP()
	if err != nil {
		return nil, err
	}
	return clonePayload(pkt), nil
}

// clonePayload copies the payload out of the packet since the reader may
// reuse its buffer on the next read.
func clonePayload(pkt *rtp.Packet) []byte {
	out := make([]byte, len(pkt.Payload))
	copy(out, pkt.Payload)
	return out
}
