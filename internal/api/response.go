package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abhisek/microtutor/internal/curriculum"
	"github.com/abhisek/microtutor/internal/session"
	"github.com/abhisek/microtutor/internal/store"
)

// statusClientClosed is nginx's code for a client that went away.
const statusClientClosed = 499

// APIError is the body of every error response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps APIError as {"error": {...}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// respondServiceError maps domain errors to HTTP statuses. Unexpected
// errors are logged and hidden behind a generic message.
func (s *Server) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, curriculum.ErrIncompleteProfile):
		respondError(c, http.StatusUnprocessableEntity, "incomplete_profile", err)
	case errors.Is(err, session.ErrNoGoals):
		respondError(c, http.StatusConflict, "no_goals", err)
	case errors.Is(err, context.DeadlineExceeded):
		respondError(c, http.StatusGatewayTimeout, "timeout", errors.New("request timed out"))
	case errors.Is(err, context.Canceled):
		respondError(c, statusClientClosed, "canceled", errors.New("request canceled"))
	default:
		s.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		respondError(c, http.StatusInternalServerError, "internal", errors.New("internal error"))
	}
}
