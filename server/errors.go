package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tailored-agentic-units/relay/core/fault"
)

// StatusFor maps an error to the HTTP status reported for it.
func StatusFor(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}

	switch fault.KindOf(err) {
	case fault.KindValidation:
		return http.StatusBadRequest
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindTimeout:
		return http.StatusGatewayTimeout
	case fault.KindUpstream, fault.KindIntegrity, fault.KindStreamFrame:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", c.Request.URL.Path),
			slog.String("kind", fault.KindOf(err).String()),
			slog.Any("error", err))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:      http.StatusText(status),
		StatusCode: status,
		Kind:       fault.KindOf(err).String(),
		Message:    err.Error(),
		Timestamp:  timestamp(time.Now()),
	})
}

// bindError classifies a gin binding failure.
func bindError(op string, err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return fault.Validation(op, err)
}
