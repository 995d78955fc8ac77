package executor

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type simIDs struct{ n atomic.Int64 }

func (s *simIDs) next() string { return fmt.Sprintf("sim_%d", s.n.Add(1)) }

// simVenue stands in for a real venue on dry runs. Every order succeeds
// immediately with a generated id.
type simVenue struct {
	name string
	ids  *simIDs
}

func (v *simVenue) Name() string { return v.name }

func (v *simVenue) SubmitMarketOrder(_ context.Context, _ domain.OrderRequest) (string, error) {
	return v.ids.next(), nil
}

func (v *simVenue) CancelOrder(_ context.Context, _, _ string) error { return nil }
