package lobby

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

// StatusError is a non-2xx answer from the service, carrying enough detail to
// show the operator what went wrong.
type StatusError struct {
	Op     string
	Code   int
	Reason string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d (%s): %s", e.Code, e.Reason, e.Body)
}

func newStatusError(op string, resp *resty.Response) *StatusError {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status(), strconv.Itoa(resp.StatusCode())))
	return &StatusError{
		Op:     op,
		Code:   resp.StatusCode(),
		Reason: reason,
		Body:   strings.TrimSpace(resp.String()),
	}
}
