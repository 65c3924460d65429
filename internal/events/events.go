package events

import (
	"context"
	"errors"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Portfolio/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, event models.PortfolioEvent) error
}

// Fanout delivers every event to all publishers, even when some of them fail.
type Fanout []Publisher

func NewFanout(publishers ...Publisher) Fanout {
	out := make(Fanout, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (f Fanout) Publish(ctx context.Context, event models.PortfolioEvent) error {
	var errList []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// Discard is used when no publisher is configured.
type Discard struct{}

func (Discard) Publish(context.Context, models.PortfolioEvent) error { return nil }
