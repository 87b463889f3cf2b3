package derror

import "errors"

// Transport-level refusals. They never touch stored state.
var (
	ErrTurnInProgress = errors.New("a turn is already in progress for this user")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrEmptyUtterance = errors.New("empty utterance")
)
