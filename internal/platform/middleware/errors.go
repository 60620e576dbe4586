package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusOf resolves the response status for err without writing anything.
func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperr.HTTPStatus(apperr.KindOf(err))
}

// HTTPErrorHandler renders apperr kinds and echo.HTTPError values as
// {"error": kind, "message": text}. Persistence detail is logged, not returned.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var body ErrorBody
		status := statusOf(err)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			body.Error = httpErrorKind(he.Code)
			body.Message = fmt.Sprint(he.Message)
		} else {
			kind := apperr.KindOf(err)
			body.Error = string(kind)
			body.Message = apperr.MessageOf(err)
			if kind == apperr.Persistence {
				logger.Error().Err(err).
					Str("request_id", fmt.Sprintf("%v", c.Get("request_id"))).
					Msg("internal error")
			}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func httpErrorKind(code int) string {
	switch code {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return string(apperr.Forbidden)
	case http.StatusNotFound:
		return string(apperr.NotFound)
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusGatewayTimeout:
		return "timeout"
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return string(apperr.Validation)
	}
	if code >= 500 {
		return string(apperr.Persistence)
	}
	return "error"
}
