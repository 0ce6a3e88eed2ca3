package service

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/challenges-leaderboard/internal/domain/leaderboard"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/external/skills"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/metrics"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/persistence/cache"
)

// SkillsLeaderboard is the part of the skills service the global scope uses.
// *skills.Client implements it.
type SkillsLeaderboard interface {
	GetLeaderboard(ctx context.Context, limit, offset uint64, window *leaderboard.DateRange) (*skills.LeaderboardDTO, error)
	GetLeaderboardUser(ctx context.Context, userID uuid.UUID, window *leaderboard.DateRange) (*skills.RankDTO, error)
}

// GlobalScope serves the all-skills leaderboard owned by the skills service.
// Upstream answers are memoized under the "skills" namespace when memo is set;
// enrichment always runs on the way out.
type GlobalScope struct {
	client   SkillsLeaderboard
	enricher *UserEnricher
	memo     *cache.Memoizer
}

// NewGlobalScope creates a GlobalScope. memo may be nil.
func NewGlobalScope(client SkillsLeaderboard, enricher *UserEnricher, memo *cache.Memoizer) *GlobalScope {
	if enricher == nil {
		enricher = NewUserEnricher(nil, nil)
	}
	return &GlobalScope{client: client, enricher: enricher, memo: memo}
}

// Top fetches one page from the skills service and enriches it.
func (s *GlobalScope) Top(ctx context.Context, page leaderboard.Page, window *leaderboard.DateRange) (*leaderboard.Leaderboard, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	key := cache.NewKey("skills").Part("leaderboard").
		With("limit", strconv.FormatUint(page.Limit, 10)).
		With("offset", strconv.FormatUint(page.Offset, 10)).
		With("window", leaderboard.WindowLabel(window))

	dto, err := cache.Memoize(ctx, s.memo, key, func(ctx context.Context) (*skills.LeaderboardDTO, error) {
		defer observe(leaderboard.ScopeGlobal, "top", time.Now())
		return s.client.GetLeaderboard(ctx, page.Limit, page.Offset, window)
	})
	if err != nil {
		return nil, err
	}

	entries, err := s.enricher.Resolve(ctx, dto.RawEntries())
	if err != nil {
		return nil, err
	}
	return &leaderboard.Leaderboard{Entries: entries, Total: dto.Total}, nil
}

// UserRank fetches one user's global rank.
func (s *GlobalScope) UserRank(ctx context.Context, userID uuid.UUID, window *leaderboard.DateRange) (*leaderboard.Rank, error) {
	key := cache.NewKey("skills").Part("leaderboard").
		With("user", userID.String()).
		With("window", leaderboard.WindowLabel(window))

	dto, err := cache.Memoize(ctx, s.memo, key, func(ctx context.Context) (*skills.RankDTO, error) {
		defer observe(leaderboard.ScopeGlobal, "rank", time.Now())
		return s.client.GetLeaderboardUser(ctx, userID, window)
	})
	if err != nil {
		return nil, err
	}
	return dto.ToDomain(), nil
}

func observe(scope leaderboard.ScopeKind, kind string, start time.Time) {
	metrics.ComputeDuration.WithLabelValues(string(scope), kind).Observe(time.Since(start).Seconds())
}
