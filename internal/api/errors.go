package api

import (
	"net/http"

	"github.com/fadedpez/stemverse/internal/types"
	"github.com/gin-gonic/gin"
)

const (
	ledgerBusyMessage = "The coin ledger is busy right now. Please try again."
	internalMessage   = "Something went wrong. Please try again."
)

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    types.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

// statusFor maps an error code to its HTTP status
func statusFor(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidArgument:
		return http.StatusBadRequest
	case types.ErrUnauthorized:
		return http.StatusUnauthorized
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	case types.ErrLedgerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a response. Server-side failures get a generic
// message and are logged with their cause.
func (h *Handler) writeError(c *gin.Context, err error) {
	code := types.CodeOf(err)
	status := statusFor(code)

	message := internalMessage
	switch {
	case code == types.ErrLedgerUnavailable:
		message = ledgerBusyMessage
	case status < http.StatusInternalServerError:
		var appErr *types.AppError
		if types.As(err, &appErr) {
			message = appErr.Message
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.LogError(err, requestFields(c))
	}

	c.AbortWithStatusJSON(status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func (h *Handler) badRequest(c *gin.Context, message string) {
	h.writeError(c, types.NewAppError(types.ErrInvalidArgument, message))
}
