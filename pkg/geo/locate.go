package geo

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultLocateTimeout bounds a single position acquisition.
const DefaultLocateTimeout = 10 * time.Second

// LocateErrorCode classifies a geolocation failure.
type LocateErrorCode string

// Geolocation failure codes.
const (
	CodePermissionDenied    LocateErrorCode = "permission_denied"
	CodePositionUnavailable LocateErrorCode = "position_unavailable"
	CodeTimeout             LocateErrorCode = "timeout"
)

// Position is a single fix reported by a Locator.
type Position struct {
	Coordinate
	AccuracyMeters float64   `json:"accuracy_meters"`
	Timestamp      time.Time `json:"timestamp"`
}

// Locator acquires the device position. Implementations should honor ctx
// cancellation; Acquire bounds them either way.
type Locator interface {
	Locate(ctx context.Context) (Position, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ctx context.Context) (Position, error)

// Locate calls f(ctx).
func (f LocatorFunc) Locate(ctx context.Context) (Position, error) { return f(ctx) }

// LocateError is the typed error surfaced to players when a position
// cannot be acquired.
type LocateError struct {
	Code LocateErrorCode
	Err  error
}

// Error implements error.
func (e *LocateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geolocation %s: %v", e.Code, e.Err)
	}
	return "geolocation " + string(e.Code)
}

// Unwrap returns the underlying cause.
func (e *LocateError) Unwrap() error { return e.Err }

// Message returns an actionable, player-facing description.
func (e *LocateError) Message() string {
	switch e.Code {
	case CodePermissionDenied:
		return "Location access is blocked. Allow location for this site in your device settings, then try again."
	case CodeTimeout:
		return "Getting your location took too long. Move to open sky or check your signal, then try again."
	default:
		return "Your location is unavailable right now. Turn on location services and try again."
	}
}

// IsLocateError reports whether err carries the given code.
func IsLocateError(err error, code LocateErrorCode) bool {
	var le *LocateError
	return errors.As(err, &le) && le.Code == code
}

// Acquire asks the locator for a fresh fix, bounded by timeout. A
// non-positive timeout uses DefaultLocateTimeout. Cached readings are never
// reused and failures are never retried. Every failure comes back as a
// *LocateError the caller can show to the player; cancelling ctx returns
// the context's error instead.
func Acquire(ctx context.Context, l Locator, timeout time.Duration) (Position, error) {
	if l == nil {
		return Position{}, &LocateError{Code: CodePositionUnavailable, Err: errors.New("no locator configured")}
	}
	if timeout <= 0 {
		timeout = DefaultLocateTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		pos Position
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pos, err := l.Locate(ctx)
		ch <- result{pos: pos, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Position{}, &LocateError{Code: CodeTimeout, Err: ctx.Err()}
		}
		return Position{}, fmt.Errorf("locating: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return Position{}, classifyLocateError(r.err)
		}
		if err := ValidateCoordinate(r.pos.Coordinate); err != nil {
			return Position{}, &LocateError{Code: CodePositionUnavailable, Err: err}
		}
		return r.pos, nil
	}
}

func classifyLocateError(err error) *LocateError {
	var le *LocateError
	if errors.As(err, &le) {
		return le
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &LocateError{Code: CodeTimeout, Err: err}
	}
	return &LocateError{Code: CodePositionUnavailable, Err: err}
}
