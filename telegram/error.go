package telegram

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Error is a Bot API-level failure. RetryAfterSeconds is non-zero when
// the API asked us to back off (flood control).
type Error struct {
	Code              int
	Description       string
	RetryAfterSeconds int
}

func (e *Error) Error() string {
	return fmt.Sprintf("telegram: %s (%d)", e.Description, e.Code)
}

// RateLimited reports whether this failure carries a flood-control wait.
func (e *Error) RateLimited() bool {
	return e.RetryAfterSeconds > 0
}

// RetryAfter returns how long the API asked us to wait before retrying.
func (e *Error) RetryAfter() time.Duration {
	return time.Duration(e.RetryAfterSeconds) * time.Second
}

// defaultRetryAfterSeconds is the wait assumed for a rate-limit
// response that carries no parseable hint.
const defaultRetryAfterSeconds = 5

var retryHintRe = regexp.MustCompile(`Retry in (\d+) seconds`)

// retryHintFromDescription recovers the wait from error texts like
// "Flood control exceeded. Retry in 7 seconds".
func retryHintFromDescription(desc string) int {
	m := retryHintRe.FindStringSubmatch(desc)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
