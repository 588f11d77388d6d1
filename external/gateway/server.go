package gateway

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/lingora-app/lingora/internal/config"
	"github.com/lingora-app/lingora/internal/identity"
	"github.com/lingora-app/lingora/internal/repository"
	"github.com/lingora-app/lingora/internal/session"
)

const (
	localIdentity      = "identity"
	localIdentityToken = "identityToken"

	defaultConversationLimit = 50
	maxConversationLimit     = 200
)

// Server is the UI-facing surface: a small REST API for durable data plus one
// websocket per live session.
type Server struct {
	cfg      *config.Config
	app      *fiber.App
	verifier identity.Verifier
	repo     repository.Repository
	sessions *session.Factory
}

func NewServer(cfg *config.Config, verifier identity.Verifier, repo repository.Repository, sessions *session.Factory) *Server {
	s := &Server{
		cfg:      cfg,
		verifier: verifier,
		repo:     repo,
		sessions: sessions,
	}

	app := fiber.New(fiber.Config{
		AppName:               "lingora",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", s.requireIdentity)
	api.Get("/conversations", s.handleListConversations)
	api.Get("/conversations/:id", s.handleGetConversation)
	api.Post("/account/consent", s.handleSaveConsent)

	app.Use("/ws", s.requireIdentity, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/session", websocket.New(s.handleSessionWS))

	s.app = app
	return s
}

func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.HTTPListenAddr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// requireIdentity verifies the caller's bearer token. Websocket clients can
// not set headers during the upgrade, so a token query parameter is accepted
// as a fallback.
func (s *Server) requireIdentity(c *fiber.Ctx) error {
	raw := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if raw == "" {
		raw = c.Query("token")
	}
	id, err := s.verifier.Verify(c.UserContext(), raw)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	c.Locals(localIdentity, id)
	c.Locals(localIdentityToken, raw)
	return c.Next()
}

func (s *Server) handleListConversations(c *fiber.Ctx) error {
	id := c.Locals(localIdentity).(identity.Identity)
	limit := c.QueryInt("limit", defaultConversationLimit)
	if limit <= 0 || limit > maxConversationLimit {
		limit = defaultConversationLimit
	}

	conversations, err := s.repo.ListConversationsByUser(c.UserContext(), id.UserID, limit)
	if err != nil {
		slog.Error("failed to list conversations", "error", err, "user_id", id.UserID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list conversations"})
	}

	out := make([]conversationDTO, 0, len(conversations))
	for i := range conversations {
		out = append(out, toConversationDTO(&conversations[i]))
	}
	return c.JSON(fiber.Map{"conversations": out})
}

func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	id := c.Locals(localIdentity).(identity.Identity)

	cw, err := s.repo.GetConversationWithTranscripts(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
		}
		slog.Error("failed to load conversation", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load conversation"})
	}
	// Conversations are private to their owner.
	if cw.UserID != id.UserID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
	}

	detail := conversationDetailDTO{
		conversationDTO: toConversationDTO(&cw.Conversation),
		Transcripts:     make([]transcriptEntryDTO, 0, len(cw.Entries)),
	}
	for _, e := range cw.Entries {
		detail.Transcripts = append(detail.Transcripts, transcriptEntryDTO{
			ID:        e.ID,
			Role:      string(e.Role),
			Text:      e.Content,
			CreatedAt: e.CreatedAt,
		})
	}
	return c.JSON(detail)
}

type consentRequest struct {
	GDPRConsent      bool `json:"gdpr_consent"`
	MarketingConsent bool `json:"marketing_consent"`
}

func (s *Server) handleSaveConsent(c *fiber.Ctx) error {
	id := c.Locals(localIdentity).(identity.Identity)

	var req consentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if !req.GDPRConsent {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "gdpr consent is required"})
	}

	if err := s.repo.SaveSignupConsent(c.UserContext(), repository.SaveSignupConsentInput{
		UserID:           id.UserID,
		GDPRConsent:      req.GDPRConsent,
		MarketingConsent: req.MarketingConsent,
	}); err != nil {
		slog.Error("failed to save signup consent", "error", err, "user_id", id.UserID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save consent"})
	}
	return c.Status(fiber.StatusNoContent).Send(nil)
}
