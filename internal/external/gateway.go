package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kjannette/optiontrack/internal/models"
)

// Provider retrieves one normalized chain from an upstream source.
type Provider interface {
	Name() string
	FetchChain(ctx context.Context, symbol string, kind models.ChainKind) (*models.ChainSnapshot, error)
}

// Gateway tries the primary provider and hands off to the secondary once on any
// failure. It never retries on its own.
type Gateway struct {
	primary   Provider
	secondary Provider
	log       *logrus.Entry
}

func NewGateway(primary, secondary Provider, log *logrus.Entry) *Gateway {
	if log == nil {
		log = logrus.WithField("component", "gateway")
	}
	return &Gateway{primary: primary, secondary: secondary, log: log}
}

func (g *Gateway) FetchChain(ctx context.Context, symbol string, kind models.ChainKind) (*models.ChainSnapshot, error) {
	start := time.Now()
	snap, primaryErr := g.attempt(ctx, g.primary, symbol, kind)
	if primaryErr == nil {
		g.log.WithFields(logrus.Fields{
			"source":    g.primary.Name(),
			"kind":      kind,
			"contracts": snap.ContractCount(),
			"elapsed":   time.Since(start).Round(time.Millisecond),
		}).Debug("chain fetched")
		return snap, nil
	}

	if g.secondary == nil {
		return nil, fmt.Errorf("fetch %s %s chain: %w", symbol, kind, primaryErr)
	}

	g.log.WithError(primaryErr).WithField("fallback", g.secondary.Name()).Warn("primary source failed")

	snap, secondaryErr := g.attempt(ctx, g.secondary, symbol, kind)
	if secondaryErr == nil {
		return snap, nil
	}
	return nil, fmt.Errorf("fetch %s %s chain: %w", symbol, kind, errors.Join(primaryErr, secondaryErr))
}

func (g *Gateway) attempt(ctx context.Context, p Provider, symbol string, kind models.ChainKind) (*models.ChainSnapshot, error) {
	snap, err := p.FetchChain(ctx, symbol, kind)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{Source: p.Name(), Err: err}
		}
		return nil, err
	}
	if snap.Empty() {
		return nil, fetchErr(p.Name(), ErrNoData, "%s returned no contracts", symbol)
	}
	return snap, nil
}
