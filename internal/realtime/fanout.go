package realtime

import (
	"context"
	"errors"
	"fmt"

	"gold_ledger/internal/broadcast"
)

// Fanout publishes to every transport and joins their errors
type Fanout []broadcast.Publisher

// Publish implements broadcast.Publisher. Every transport is tried even when one fails.
func (f Fanout) Publish(ctx context.Context, topic string, payload any) error {
	var errs []error
	for i, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, fmt.Errorf("transport %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
