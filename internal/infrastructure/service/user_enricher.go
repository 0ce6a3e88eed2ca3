package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/challenges-leaderboard/internal/domain/leaderboard"
	"github.com/alem-hub/challenges-leaderboard/internal/domain/shared"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/metrics"
	"github.com/alem-hub/challenges-leaderboard/pkg/logger"
)

// UserResolver turns one upstream row into a leaderboard entry.
type UserResolver interface {
	ResolveUser(ctx context.Context, raw leaderboard.RawEntry) (leaderboard.Entry, error)
}

// UserResolverFunc adapts a function to UserResolver.
type UserResolverFunc func(ctx context.Context, raw leaderboard.RawEntry) (leaderboard.Entry, error)

// ResolveUser calls f.
func (f UserResolverFunc) ResolveUser(ctx context.Context, raw leaderboard.RawEntry) (leaderboard.Entry, error) {
	return f(ctx, raw)
}

// PassThrough copies the upstream row as is.
var PassThrough UserResolver = UserResolverFunc(func(_ context.Context, raw leaderboard.RawEntry) (leaderboard.Entry, error) {
	return leaderboard.Entry{UserID: raw.UserID, XP: raw.XP, Rank: raw.Rank}, nil
})

// UserEnricher resolves a page of upstream rows concurrently.
type UserEnricher struct {
	resolver UserResolver
	log      *logger.Logger
}

// NewUserEnricher creates a UserEnricher. A nil resolver means PassThrough.
func NewUserEnricher(resolver UserResolver, log *logger.Logger) *UserEnricher {
	if resolver == nil {
		resolver = PassThrough
	}
	if log == nil {
		log = logger.Nop()
	}
	return &UserEnricher{
		resolver: resolver,
		log:      log.With(logger.Component("user_enricher")),
	}
}

// Resolve runs one resolution per row and keeps the input order. The batch
// fails as a whole if any row fails.
func (e *UserEnricher) Resolve(ctx context.Context, raw []leaderboard.RawEntry) ([]leaderboard.Entry, error) {
	out := make([]leaderboard.Entry, len(raw))

	g, gctx := errgroup.WithContext(ctx)
	for i, row := range raw {
		g.Go(func() error {
			entry, err := e.resolver.ResolveUser(gctx, row)
			if err != nil {
				return err
			}
			out[i] = entry
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		metrics.EnrichmentFailures.Inc()
		e.log.Warn("enrichment failed", logger.Int("entries", len(raw)), logger.Err(err))
		return nil, shared.WrapError("leaderboard", "Enrich", shared.ErrEnrichment, "user resolution failed", err)
	}
	return out, nil
}
