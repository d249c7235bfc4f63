package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-provisioning/core"
)

const (
	TextCodeUnauthorized = "PROVISIONING_UNAUTHORIZED"
	TextCodeForbidden    = "PROVISIONING_FORBIDDEN"
)

func unauthorizedError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(TextCodeUnauthorized)
}

func forbiddenError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(TextCodeForbidden)
}

func badRequestError(source error, message string) *goerrors.Error {
	if source == nil {
		return goerrors.New(message, goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ProvisioningErrorBadInput)
	}
	return goerrors.Wrap(source, goerrors.CategoryBadInput, message).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ProvisioningErrorBadInput)
}

type errorBody struct {
	Error errorPayload   `json:"error"`
	Lease *leaseResponse `json:"lease,omitempty"`
}

type errorPayload struct {
	Category   string              `json:"category"`
	Code       int                 `json:"code"`
	TextCode   string              `json:"text_code"`
	Message    string              `json:"message"`
	Validation []validationPayload `json:"validation,omitempty"`
}

type validationPayload struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// writeError renders err as {"error": {...}} with the envelope's HTTP status.
func writeError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	c.AbortWithStatusJSON(status, body)
}

func errorResponse(err error) (int, errorBody) {
	rich := core.MapError(err)
	if rich == nil {
		rich = core.MapError(goerrors.New("unknown error", goerrors.CategoryInternal))
	}
	status := rich.Code
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusInternalServerError
	}
	payload := errorPayload{
		Category: rich.Category.String(),
		Code:     status,
		TextCode: rich.TextCode,
		Message:  rich.Message,
	}
	for _, field := range rich.AllValidationErrors() {
		payload.Validation = append(payload.Validation, validationPayload{Field: field.Field, Message: field.Message})
	}
	return status, errorBody{Error: payload}
}
