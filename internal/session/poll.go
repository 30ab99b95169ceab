package session

import (
	"context"
	"fmt"
	"time"
)

// Getter fetches the current session state. Satisfied by the store and by the
// API client; kept minimal so polling is testable without either.
type Getter interface {
	GetSession(ctx context.Context, id string) (*Session, error)
}

// WaitForCompletion polls until the session is completed and carries a
// summary, checking at a fixed interval up to maxAttempts times. A session
// that is stopped or processing without a summary yet is a normal retryable
// state, not an error. There is no push notification; bounded polling is the
// contract.
func WaitForCompletion(ctx context.Context, g Getter, id string, interval time.Duration, maxAttempts int) (*Session, error) {
	if maxAttempts <= 0 {
		return nil, fmt.Errorf("%w: maxAttempts must be positive", ErrInvalidInput)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidInput)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		s, err := g.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.Status == StatusCompleted && s.Summary != nil {
			return s, nil
		}

		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return nil, fmt.Errorf("session %s not completed after %d attempts", id, maxAttempts)
}
