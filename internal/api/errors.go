package api

import (
	"io"
	"net/http"

	"github.com/cockroachdb/errors"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/rm-hull/hideaway/internal/catalog"
	"github.com/rm-hull/hideaway/internal/nanomdm"
	"github.com/rm-hull/hideaway/internal/profiles"
)

// statusFor maps a composition or delivery error onto an HTTP status.
func statusFor(err error) int {
	var statusErr *nanomdm.StatusError
	switch {
	case errors.Is(err, catalog.ErrUnknownApp),
		errors.Is(err, catalog.ErrUnknownPreset),
		errors.Is(err, profiles.ErrNoApps),
		errors.Is(err, profiles.ErrNothingAllowed),
		errors.Is(err, catalog.ErrDuplicateApp):
		return http.StatusBadRequest
	case errors.As(err, &statusErr):
		return http.StatusBadGateway
	case errors.Is(err, profiles.ErrOffline):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError replies with a JSON error. Server-side failures are also
// reported to Sentry when the request carries a hub.
func abortWithError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func readBody(c *gin.Context) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read request body")
	}
	if len(data) == 0 {
		return nil, errors.New("empty request body")
	}
	return data, nil
}
