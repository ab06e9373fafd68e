package graph

import (
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/jds-integration/integration/pkg/authz"
)

// APIError is a failed Graph call. It always matches authz.ErrDirectoryUnavailable.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	cause      error
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("graph: %s", e.Message)
	case e.Code != "":
		return fmt.Sprintf("graph: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	default:
		return fmt.Sprintf("graph: status %d: %s", e.StatusCode, e.Message)
	}
}

// Is makes every APIError match authz.ErrDirectoryUnavailable
func (e *APIError) Is(target error) bool {
	return target == authz.ErrDirectoryUnavailable
}

func (e *APIError) Unwrap() error {
	return e.cause
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newAPIError(resp *resty.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode(),
		RequestID:  resp.Header().Get("request-id"),
	}

	var env errorEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err == nil && env.Error.Code != "" {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	} else {
		apiErr.Message = resp.Status()
	}
	return apiErr
}

func transportError(url string, err error) *APIError {
	return &APIError{
		Message: fmt.Sprintf("request %s: %v", url, err),
		cause:   err,
	}
}
