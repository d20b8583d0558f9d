package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Veraticus/the-model-must-learn/internal/common"
)

// ErrorMessage is the body of every error response.
type ErrorMessage struct {
	Reason string `json:"reason"`
	Advice string `json:"advice,omitempty"`
}

func newError(code int, reason string, cause error) *echo.HTTPError {
	httpErr := echo.NewHTTPError(code, ErrorMessage{Reason: reason})
	if cause != nil {
		httpErr = httpErr.SetInternal(cause)
	}
	return httpErr
}

func badRequest(reason string, cause error) *echo.HTTPError {
	return newError(http.StatusBadRequest, reason, cause)
}

// fromError maps domain errors onto HTTP status codes.
func fromError(err error) *echo.HTTPError {
	var userErr *common.UserError
	switch {
	case errors.As(err, &userErr):
		return newError(http.StatusBadRequest, userErr.UserMessage, err)
	case errors.Is(err, common.ErrNotFound):
		return newError(http.StatusNotFound, "not found", err)
	case errors.Is(err, common.ErrInvalidTransition):
		return newError(http.StatusConflict, err.Error(), err)
	case errors.Is(err, common.ErrDuplicateEntry):
		return newError(http.StatusConflict, err.Error(), err)
	}
	return newError(http.StatusInternalServerError, "internal error", err)
}
