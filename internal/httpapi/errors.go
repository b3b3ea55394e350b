package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/physical-mcp/engine/internal/core"
)

// errorBody is the JSON error shape spec.md §4.11/§7 requires:
// {code, message, camera_id?}.
type errorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	CameraID string `json:"camera_id,omitempty"`
}

// statusFor maps the error taxonomy to an HTTP status code.
func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindCameraNotFound, core.KindRuleNotFound:
		return http.StatusNotFound
	case core.KindInvalidRequest:
		return http.StatusBadRequest
	case core.KindUnauthorized:
		return http.StatusUnauthorized
	case core.KindRateLimited, core.KindBudgetExceeded:
		return http.StatusTooManyRequests
	case core.KindCameraNotAvailable, core.KindCameraOpenTimeout, core.KindCameraDisconnected:
		return http.StatusServiceUnavailable
	case core.KindProviderError, core.KindProviderBadJSON, core.KindNotificationDeliveryFailed:
		return http.StatusBadGateway
	case core.KindConfigInvalid:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as the standard JSON error body, pulling a
// Kind/CameraID from it if it's a *core.Error and falling back to
// internal_error/500 otherwise.
func writeError(c *gin.Context, err error) {
	kind, ok := core.KindOf(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, errorBody{Code: "internal_error", Message: err.Error()})
		return
	}

	body := errorBody{Code: string(kind), Message: err.Error()}
	var coreErr *core.Error
	if e, ok := err.(*core.Error); ok {
		coreErr = e
	}
	if coreErr != nil {
		body.CameraID = coreErr.CameraID
		body.Message = coreErr.Message
	}
	c.JSON(statusFor(kind), body)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorBody{Code: string(core.KindInvalidRequest), Message: message})
}
