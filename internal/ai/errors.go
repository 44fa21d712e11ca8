package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	ErrUnavailable  = errors.New("ai provider unavailable")
	ErrTimeout      = errors.New("ai request timeout")
	ErrRateLimited  = errors.New("ai rate limited")
	ErrServiceError = errors.New("ai service error")
	ErrFatal        = errors.New("ai request rejected")
)

// IsTransient reports whether a failed call may succeed when retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServiceError)
}

func classifyStatus(provider string, code int, status string, body []byte) error {
	detail := fmt.Sprintf("%s request failed: %s: %s", provider, status, strings.TrimSpace(string(body)))
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, detail)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", ErrTimeout, detail)
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", ErrServiceError, detail)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnavailable, detail)
	default:
		return fmt.Errorf("%w: %s", ErrFatal, detail)
	}
}

// classifyTransport maps transport level failures. A cancelled caller context
// is passed through untouched so the caller can tell it apart.
func classifyTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, provider, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrServiceError, provider, err)
}
