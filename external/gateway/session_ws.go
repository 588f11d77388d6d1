package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/lingora-app/lingora/internal/identity"
	"github.com/lingora-app/lingora/internal/session"
)

const (
	actionConnect          = "connect"
	actionDisconnect       = "disconnect"
	actionToggleMicrophone = "toggle_microphone"
)

// clientAction is a command sent by the UI over the session websocket.
type clientAction struct {
	Action          string  `json:"action"`
	TargetLanguage  string  `json:"target_language"`
	NativeLanguage  string  `json:"native_language"`
	Level           string  `json:"level"`
	SpeakingSpeed   float64 `json:"speaking_speed"`
	VoicePreference string  `json:"voice_preference"`
	SaveTranscripts *bool   `json:"save_transcripts"`
	ConversationID  string  `json:"conversation_id"`
}

// handleSessionWS owns exactly one session controller per socket. Closing the
// socket tears the session down.
func (s *Server) handleSessionWS(conn *websocket.Conn) {
	id := conn.Locals(localIdentity).(identity.Identity)
	auth := session.Auth{
		Identity:      id,
		IdentityToken: conn.Locals(localIdentityToken).(string),
	}

	var writeMu sync.Mutex
	push := func(st session.State) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(toStateMessage(st)); err != nil {
			slog.Debug("failed to push session state", "error", err)
		}
	}
	pushError := func(message string) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(map[string]string{"type": "error", "error": message}); err != nil {
			slog.Debug("failed to push error", "error", err)
		}
	}

	var ctrl *session.Controller
	defer func() {
		if ctrl != nil {
			ctrl.Disconnect()
		}
	}()

	slog.Info("session socket opened", "user_id", id.UserID)
	for {
		var action clientAction
		if err := conn.ReadJSON(&action); err != nil {
			slog.Info("session socket closed", "user_id", id.UserID)
			return
		}

		switch action.Action {
		case actionConnect:
			if ctrl != nil {
				snap := ctrl.Snapshot()
				if snap.Connecting || snap.Connected {
					continue
				}
				ctrl.Disconnect()
			}
			save := true
			if action.SaveTranscripts != nil {
				save = *action.SaveTranscripts
			}
			ctrl = s.sessions.New(auth, session.Preferences{
				TargetLanguage:  action.TargetLanguage,
				NativeLanguage:  action.NativeLanguage,
				Level:           action.Level,
				SpeakingSpeed:   action.SpeakingSpeed,
				VoicePreference: action.VoicePreference,
				SaveTranscripts: save,
			}, action.ConversationID)
			ctrl.SetStateListener(push)
			// Connect blocks on collaborators; keep the read loop responsive
			// so a disconnect can interrupt it.
			go func(c *session.Controller) {
				if err := c.Connect(context.Background()); err != nil {
					slog.Warn("session connect failed", "error", err, "user_id", id.UserID)
				}
			}(ctrl)
		case actionDisconnect:
			if ctrl != nil {
				ctrl.Disconnect()
			}
		case actionToggleMicrophone:
			if ctrl != nil {
				ctrl.ToggleMicrophone()
			}
		default:
			pushError("unknown action")
		}
	}
}
