package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	numberPrefix   = "ORD"
	numberAttempts = 100
)

// generateOrderNumber produces a human-readable candidate number in the form
// ORD-YYYYMMDD-NNNN. The sequence starts at the current order count plus one
// and is probed for existence; on collision the sequence is incremented and
// probed again. After numberAttempts collisions a random suffix is appended
// to the original candidate and returned unchecked, trading strict
// uniqueness-by-construction for guaranteed termination. The unique index on
// orders.order_number catches the residual race at commit time.
func (s *Service) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return "", err
	}

	date := now.Format("20060102")
	seq := count + 1
	candidate := fmt.Sprintf("%s-%s-%04d", numberPrefix, date, seq)
	original := candidate

	for attempt := 0; attempt < numberAttempts; attempt++ {
		exists, err := s.store.ExistsByNumber(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		seq++
		candidate = fmt.Sprintf("%s-%s-%04d", numberPrefix, date, seq)
	}

	return fmt.Sprintf("%s-%s", original, uuid.NewString()[:8]), nil
}
