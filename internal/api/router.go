package api

import (
	"context"
	"net/http"
	"time"

	"github.com/fadedpez/stemverse/internal/auth"
	"github.com/fadedpez/stemverse/internal/logging"
	"github.com/fadedpez/stemverse/internal/ratelimit"
	"github.com/fadedpez/stemverse/pkg/entities"
	"github.com/fadedpez/stemverse/pkg/services/rewards"
	"github.com/fadedpez/stemverse/pkg/services/tutor"
	walletService "github.com/fadedpez/stemverse/pkg/services/wallet"
	"github.com/gin-gonic/gin"
)

// Rewards grants game rewards
type Rewards interface {
	HeadsUpCorrect(ctx context.Context, userID, term string) (*rewards.Grant, error)
	TreasureHuntComplete(ctx context.Context, userID, caseID, caseTitle string) (*rewards.Grant, error)
}

// Profiles manages user profiles and preferences
type Profiles interface {
	EnsureProfile(ctx context.Context, userID, nickname, grade string) (*entities.Profile, error)
	GetProfile(ctx context.Context, userID string) (*entities.Profile, error)
	UpdateProfile(ctx context.Context, userID, nickname, grade string) (*entities.Profile, error)
	UpdatePreferences(ctx context.Context, userID string, prefs entities.Preferences) (*entities.Profile, error)
}

// Tutor answers STEM questions
type Tutor interface {
	Ask(ctx context.Context, question string) (*tutor.Answer, error)
}

// Buddy runs buddy rooms
type Buddy interface {
	JoinRoom(ctx context.Context, code string) (*entities.Room, bool, error)
	GetRoom(ctx context.Context, code string) (*entities.Room, error)
	SetRole(ctx context.Context, code, userID, role string) ([]*entities.RoomMember, error)
	ListMembers(ctx context.Context, code string) ([]*entities.RoomMember, error)
	PostMessage(ctx context.Context, code, userID, text string) (*entities.ChatMessage, error)
	MentorPing(ctx context.Context, code string) (*entities.ChatMessage, error)
	Messages(ctx context.Context, code string, since int64, limit int) ([]*entities.ChatMessage, error)
}

// Sessions issues and verifies session tokens
type Sessions interface {
	Issue(userID string) (string, time.Time, error)
	Parse(token string) (*auth.Claims, error)
}

// Dependencies are the services the HTTP API is built on
type Dependencies struct {
	Wallet   walletService.WalletService
	Rewards  Rewards
	Profiles Profiles
	Tutor    Tutor
	Buddy    Buddy
	Hub      *RoomHub // Optional; the buddy service should publish to it
	Sessions Sessions
	Limiter  ratelimit.Limiter // Optional
	Logger   *logging.Logger
}

// Handler serves the JSON API
type Handler struct {
	wallet   walletService.WalletService
	rewards  Rewards
	profiles Profiles
	tutor    Tutor
	buddy    Buddy
	hub      *RoomHub
	sessions Sessions
	limiter  ratelimit.Limiter
	logger   *logging.Logger
	newID    func() string
}

// NewHandler creates a handler from its dependencies
func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default
	}
	hub := deps.Hub
	if hub == nil {
		hub = NewRoomHub(logger)
	}
	return &Handler{
		wallet:   deps.Wallet,
		rewards:  deps.Rewards,
		profiles: deps.Profiles,
		tutor:    deps.Tutor,
		buddy:    deps.Buddy,
		hub:      hub,
		sessions: deps.Sessions,
		limiter:  deps.Limiter,
		logger:   logger,
		newID:    newUserID,
	}
}

// NewRouter builds the gin engine with every route registered
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.POST("/session", h.CreateSession)

	authed := api.Group("")
	authed.Use(h.requireSession())
	authed.GET("/wallet", h.GetWallet)
	authed.POST("/rewards/heads-up", h.rateLimit("heads_up"), h.HeadsUpCorrect)
	authed.POST("/rewards/treasure-hunt", h.rateLimit("treasure_hunt"), h.TreasureHuntComplete)
	authed.GET("/profile", h.GetProfile)
	authed.PUT("/profile", h.UpdateProfile)
	authed.PUT("/profile/preferences", h.UpdatePreferences)
	authed.POST("/tutor/ask", h.AskTutor)

	authed.POST("/rooms", h.JoinRoom)
	authed.GET("/rooms/:code", h.GetRoom)
	authed.GET("/rooms/:code/members", h.ListMembers)
	authed.PUT("/rooms/:code/role", h.SetRole)
	authed.GET("/rooms/:code/messages", h.GetMessages)
	authed.POST("/rooms/:code/messages", h.rateLimit("chat"), h.PostMessage)
	authed.POST("/rooms/:code/ping", h.rateLimit("mentor_ping"), h.MentorPing)
	authed.GET("/rooms/:code/ws", h.RoomSocket)

	return r
}
