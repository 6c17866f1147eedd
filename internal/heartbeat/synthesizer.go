package heartbeat

import (
	"context"
	"fmt"

	"github.com/maslowhq/maslow/internal/store"
)

// ReviewSweeper is the default Synthesizer: review-column cards whose agent
// finished cleanly are moved to done. Cards that fail verification stay in
// review, so repeated sweeps converge without double-handling.
type ReviewSweeper struct {
	kanban store.Kanban

	// Verified reports whether the card's branch passed verification.
	// Defaults to trusting the completed agent status.
	Verified func(ctx context.Context, card *store.Card) (bool, error)
}

func NewReviewSweeper(kanban store.Kanban) *ReviewSweeper {
	s := &ReviewSweeper{kanban: kanban}
	s.Verified = func(_ context.Context, card *store.Card) (bool, error) {
		return card.AgentStatus == store.AgentCompleted, nil
	}
	return s
}

func (s *ReviewSweeper) Sweep(ctx context.Context) (int, error) {
	cards, err := s.kanban.ListReview()
	if err != nil {
		return 0, fmt.Errorf("list review cards: %w", err)
	}

	merged := 0
	for i := range cards {
		c := &cards[i]
		ok, err := s.Verified(ctx, c)
		if err != nil || !ok {
			continue
		}
		if err := s.kanban.MoveCard(c.ID, store.ColumnDone); err != nil {
			continue
		}
		merged++
	}
	return merged, nil
}
