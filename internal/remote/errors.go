package remote

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kazz187/taskdesk/pkg/cerr"
)

// StatusError is a non-2xx response. Body holds the response text.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("remote returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// IsRetryable reports whether repeating the request may succeed. Client
// errors other than 408 and 429 are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout, statusErr.StatusCode == http.StatusTooManyRequests:
			return true
		case statusErr.StatusCode >= 400 && statusErr.StatusCode < 500:
			return false
		default:
			return true
		}
	}
	switch cerr.CodeOf(err) {
	case cerr.InvalidArgument, cerr.Canceled, cerr.DataLoss:
		return false
	default:
		return true
	}
}
