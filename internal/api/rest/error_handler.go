package rest

import (
	stderrors "errors"
	"net/http"

	"github.com/davidleathers/secops-incident-engine/internal/domain/errors"
)

// retryAfterSeconds is advertised on 503 responses for transient failures.
const retryAfterSeconds = "2"

// ValidationError is a malformed or invalid request body.
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string { return e.Message }

// errorMapping is the HTTP rendering of an error.
type errorMapping struct {
	status     int
	body       ErrorResponse
	retryAfter string
}

// mapError converts an error into the response the user sees. Policy denials are rendered
// exactly like permission rejections so no backend detail leaks.
func mapError(err error) errorMapping {
	var vErr *ValidationError
	if stderrors.As(err, &vErr) {
		return errorMapping{
			status: http.StatusBadRequest,
			body:   ErrorResponse{Code: "VALIDATION_ERROR", Message: vErr.Message, Fields: vErr.Fields},
		}
	}

	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		return errorMapping{
			status: http.StatusInternalServerError,
			body:   ErrorResponse{Code: "INTERNAL_ERROR", Message: errors.UserMessage(err)},
		}
	}

	msg := errors.UserMessage(err)
	switch appErr.Type {
	case errors.ErrorTypeNotPermitted, errors.ErrorTypeDenied:
		return errorMapping{
			status: http.StatusForbidden,
			body:   ErrorResponse{Code: "NO_ACCESS", Message: msg},
		}
	case errors.ErrorTypeNotFound:
		return errorMapping{
			status: http.StatusNotFound,
			body:   ErrorResponse{Code: appErr.Code, Message: msg},
		}
	case errors.ErrorTypeConcurrentModification:
		meta := map[string]interface{}{}
		for _, k := range []string{"current_status", "current_version"} {
			if v, ok := appErr.Details[k]; ok {
				meta[k] = v
			}
		}
		if len(meta) == 0 {
			meta = nil
		}
		return errorMapping{
			status: http.StatusConflict,
			body:   ErrorResponse{Code: appErr.Code, Message: msg, Refresh: true, Metadata: meta},
		}
	case errors.ErrorTypeNoRoleAssigned, errors.ErrorTypeUnauthorized:
		return errorMapping{
			status: http.StatusUnauthorized,
			body:   ErrorResponse{Code: appErr.Code, Message: msg, Reauthenticate: true},
		}
	case errors.ErrorTypeTransient:
		return errorMapping{
			status:     http.StatusServiceUnavailable,
			body:       ErrorResponse{Code: appErr.Code, Message: msg, Refresh: true},
			retryAfter: retryAfterSeconds,
		}
	case errors.ErrorTypeValidation:
		return errorMapping{
			status: http.StatusBadRequest,
			body:   ErrorResponse{Code: appErr.Code, Message: msg},
		}
	default:
		return errorMapping{
			status: http.StatusInternalServerError,
			body:   ErrorResponse{Code: "INTERNAL_ERROR", Message: msg},
		}
	}
}
