package aiclient

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

var errEmptyCompletion = errors.New("aiclient: provider returned no choices")

// classifyOpenAIError, classifyAnthropicError, and classifyGoogleError all
// route through this: every SDK here surfaces rate limits/5xx/timeouts as
// errors whose message or status carries the distinguishing signal, so a
// single heuristic serves all three rather than one per SDK's specific
// error type.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.Wrap(types.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return types.Wrap(types.ErrTransientExternal, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"),
		strings.Contains(msg, "502"), strings.Contains(msg, "503"), strings.Contains(msg, "504"),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "connection reset"):
		return types.Wrap(types.ErrTransientExternal, err)
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"), strings.Contains(msg, "400"),
		strings.Contains(msg, "invalid api key"), strings.Contains(msg, "unauthorized"):
		return types.Wrap(types.ErrPermanentExternal, err)
	default:
		return types.Wrap(types.ErrTransientExternal, err)
	}
}

func classifyOpenAIError(err error) error    { return classifyProviderError(err) }
func classifyAnthropicError(err error) error { return classifyProviderError(err) }
func classifyGoogleError(err error) error    { return classifyProviderError(err) }
