package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dd0wney/cluso-epinet/pkg/snapshot"
)

// Multi fans every call out to all of its sinks. Errors are joined; one
// failing sink does not stop the others.
type Multi []Sink

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, s := range m {
		names[i] = NameOf(s)
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

func (m Multi) Emit(ctx context.Context, seed int64, t int, rec snapshot.Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, seed, t, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", NameOf(s), err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) FinishSeed(ctx context.Context, seed int64) error {
	var errs []error
	for _, s := range m {
		if err := FinishSeed(ctx, s, seed); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", NameOf(s), err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if err := Flush(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Incomplete(seed int64) bool {
	for _, s := range m {
		if Incomplete(s, seed) {
			return true
		}
	}
	return false
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", NameOf(s), err))
		}
	}
	return errors.Join(errs...)
}
