package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// StatusError is a non-success HTTP response. Whether it is worth retrying
// depends on the status code.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	if RetryableStatus(e.Status) {
		return fmt.Sprintf("http %d from %s", e.Status, e.URL)
	}
	return fmt.Sprintf("unexpected status %d from %s", e.Status, e.URL)
}

// RetryableStatus reports whether a response with this status may succeed on
// a later attempt.
func RetryableStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		(status >= 500 && status != http.StatusNotImplemented && status != http.StatusHTTPVersionNotSupported)
}

// Messages of errors that only carry text, mostly from database drivers.
var transientMessages = []string{
	"connection reset by peer",
	"broken pipe",
	"i/o timeout",
	"tls handshake timeout",
	"temporary failure in name resolution",
	"the database system is starting up",
}

// IsTransient reports whether err is worth another attempt: a retryable
// StatusError, a network timeout, a refused or reset connection, or one of
// the known transient messages.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return RetryableStatus(se.Status)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
