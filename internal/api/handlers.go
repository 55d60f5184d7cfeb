package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fadedpez/stemverse/pkg/entities"
	walletService "github.com/fadedpez/stemverse/pkg/services/wallet"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
)

func newUserID() string {
	return uuid.New().String()
}

// bindJSON decodes the request body into obj, rejecting unknown fields, and
// runs gin's struct validation on the result.
func bindJSON(c *gin.Context, obj any) error {
	decoder := json.NewDecoder(c.Request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(obj); err != nil {
		return err
	}
	return binding.Validator.ValidateStruct(obj)
}

// SessionRequest optionally seeds the new profile
type SessionRequest struct {
	Nickname string `json:"nickname"`
	Grade    string `json:"grade"`
}

// SessionResponse carries the anonymous identity for a new browser session
type SessionResponse struct {
	UserID    string           `json:"user_id"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Profile   *ProfileResponse `json:"profile"`
}

// TransactionResponse is one history entry
type TransactionResponse struct {
	ID           string    `json:"id"`
	Amount       int64     `json:"amount"`
	Reason       string    `json:"reason"`
	DedupeKey    string    `json:"dedupe_key,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	BalanceAfter int64     `json:"balance_after"`
}

// WalletResponse is the sidebar wallet panel
type WalletResponse struct {
	UserID       string                `json:"user_id"`
	Balance      int64                 `json:"balance"`
	Transactions []TransactionResponse `json:"transactions"`
}

// ProfileResponse is a profile as the client sees it
type ProfileResponse struct {
	UserID      string               `json:"user_id"`
	Nickname    string               `json:"nickname"`
	Grade       string               `json:"grade"`
	Preferences entities.Preferences `json:"preferences"`
	CreatedAt   time.Time            `json:"created_at"`
}

// HeadsUpRequest reports a correctly guessed term
type HeadsUpRequest struct {
	Term string `json:"term" binding:"required"`
}

// TreasureHuntRequest reports a solved case
type TreasureHuntRequest struct {
	CaseID    string `json:"case_id" binding:"required"`
	CaseTitle string `json:"case_title"`
}

// ProfileRequest updates nickname and grade
type ProfileRequest struct {
	Nickname string `json:"nickname"`
	Grade    string `json:"grade"`
}

// TutorRequest asks the tutor a question
type TutorRequest struct {
	Question string `json:"question" binding:"required"`
}

// CreateSession starts an anonymous session with a fresh user, profile and wallet
func (h *Handler) CreateSession(c *gin.Context) {
	var req SessionRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			h.badRequest(c, "invalid session request: "+err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	userID := h.newID()

	profile, err := h.profiles.EnsureProfile(ctx, userID, req.Nickname, req.Grade)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.wallet.EnsureWallet(ctx, userID); err != nil {
		h.writeError(c, err)
		return
	}

	token, expiresAt, err := h.sessions.Issue(userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SessionResponse{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		Profile:   newProfileResponse(profile),
	})
}

// GetWallet returns the balance and recent history
func (h *Handler) GetWallet(c *gin.Context) {
	limit := walletService.DefaultRecentTransactions
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.badRequest(c, "limit must be an integer")
			return
		}
		limit = n
	}

	summary, err := h.wallet.Summary(c.Request.Context(), c.GetString(userIDKey), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newWalletResponse(summary))
}

// HeadsUpCorrect rewards a correct Heads Up guess
func (h *Handler) HeadsUpCorrect(c *gin.Context) {
	var req HeadsUpRequest
	if err := bindJSON(c, &req); err != nil {
		h.badRequest(c, "invalid heads up request: "+err.Error())
		return
	}

	grant, err := h.rewards.HeadsUpCorrect(c.Request.Context(), c.GetString(userIDKey), req.Term)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, grant)
}

// TreasureHuntComplete rewards finishing a Treasure Hunt case
func (h *Handler) TreasureHuntComplete(c *gin.Context) {
	var req TreasureHuntRequest
	if err := bindJSON(c, &req); err != nil {
		h.badRequest(c, "invalid treasure hunt request: "+err.Error())
		return
	}

	grant, err := h.rewards.TreasureHuntComplete(c.Request.Context(), c.GetString(userIDKey), req.CaseID, req.CaseTitle)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, grant)
}

// GetProfile returns the caller's profile
func (h *Handler) GetProfile(c *gin.Context) {
	profile, err := h.profiles.GetProfile(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newProfileResponse(profile))
}

// UpdateProfile changes nickname and grade
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req ProfileRequest
	if err := bindJSON(c, &req); err != nil {
		h.badRequest(c, "invalid profile request: "+err.Error())
		return
	}

	profile, err := h.profiles.UpdateProfile(c.Request.Context(), c.GetString(userIDKey), req.Nickname, req.Grade)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newProfileResponse(profile))
}

// UpdatePreferences replaces the caller's preferences
func (h *Handler) UpdatePreferences(c *gin.Context) {
	var prefs entities.Preferences
	if err := bindJSON(c, &prefs); err != nil {
		h.badRequest(c, "invalid preferences: "+err.Error())
		return
	}

	profile, err := h.profiles.UpdatePreferences(c.Request.Context(), c.GetString(userIDKey), prefs)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newProfileResponse(profile))
}

// AskTutor answers a STEM question
func (h *Handler) AskTutor(c *gin.Context) {
	var req TutorRequest
	if err := bindJSON(c, &req); err != nil {
		h.badRequest(c, "invalid tutor request: "+err.Error())
		return
	}

	answer, err := h.tutor.Ask(c.Request.Context(), req.Question)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

func newWalletResponse(summary *entities.WalletSummary) WalletResponse {
	txs := make([]TransactionResponse, 0, len(summary.Transactions))
	for _, tx := range summary.Transactions {
		txs = append(txs, TransactionResponse{
			ID:           tx.ID,
			Amount:       tx.Amount,
			Reason:       tx.Reason,
			DedupeKey:    tx.DedupeKey,
			Timestamp:    tx.Timestamp,
			BalanceAfter: tx.BalanceAfter,
		})
	}

	return WalletResponse{
		UserID:       summary.UserID,
		Balance:      summary.Balance,
		Transactions: txs,
	}
}

func newProfileResponse(profile *entities.Profile) *ProfileResponse {
	return &ProfileResponse{
		UserID:      profile.ID,
		Nickname:    profile.Nickname,
		Grade:       profile.Grade,
		Preferences: profile.Preferences,
		CreatedAt:   profile.CreatedAt,
	}
}
