package service

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/challenges-leaderboard/internal/domain/leaderboard"
	"github.com/alem-hub/challenges-leaderboard/internal/domain/shared"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/persistence/cache"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/challenges-leaderboard/pkg/logger"
)

// RankStore ranks the population described by a scope query.
// *postgres.RankAggregator implements it.
type RankStore interface {
	Top(ctx context.Context, base postgres.ScopeQuery, page leaderboard.Page) (*leaderboard.Leaderboard, error)
	UserRank(ctx context.Context, base postgres.ScopeQuery, userID uuid.UUID) (*leaderboard.Rank, error)
}

// TaskChecker reports whether a task exists.
// *postgres.TaskRepository implements it.
type TaskChecker interface {
	Exists(ctx context.Context, taskID uuid.UUID) (bool, error)
}

// LocalScope computes a task or language leaderboard from the relational
// store. Every result goes through the memoizer.
type LocalScope struct {
	ref     leaderboard.ScopeRef
	builder postgres.QueryBuilder
	store   RankStore
	tasks   TaskChecker
	memo    *cache.Memoizer
	log     *logger.Logger
}

// NewLocalScope creates a LocalScope. tasks may be nil, in which case an
// unknown task looks like an empty ranking.
func NewLocalScope(
	ref leaderboard.ScopeRef,
	builder postgres.QueryBuilder,
	store RankStore,
	tasks TaskChecker,
	memo *cache.Memoizer,
	log *logger.Logger,
) *LocalScope {
	if log == nil {
		log = logger.Nop()
	}
	return &LocalScope{
		ref:     ref,
		builder: builder,
		store:   store,
		tasks:   tasks,
		memo:    memo,
		log:     log.With(logger.Scope(ref.String())),
	}
}

// Top returns one page of the scope's ranking.
func (s *LocalScope) Top(ctx context.Context, page leaderboard.Page, window *leaderboard.DateRange) (*leaderboard.Leaderboard, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	key := s.baseKey().
		With("limit", strconv.FormatUint(page.Limit, 10)).
		With("offset", strconv.FormatUint(page.Offset, 10)).
		With("window", leaderboard.WindowLabel(window))

	return cache.Memoize(ctx, s.memo, key, func(ctx context.Context) (*leaderboard.Leaderboard, error) {
		defer observe(s.ref.Kind, "top", time.Now())

		lb, err := s.store.Top(ctx, s.builder.Build(window), page)
		if err != nil {
			return nil, err
		}
		// an empty ranking may mean the task itself is unknown
		if lb.Total == 0 {
			if err := s.ensureTask(ctx); err != nil {
				return nil, err
			}
		}
		return lb, nil
	})
}

// UserRank returns the user's position in the scope's ranking.
func (s *LocalScope) UserRank(ctx context.Context, userID uuid.UUID, window *leaderboard.DateRange) (*leaderboard.Rank, error) {
	key := s.baseKey().
		With("user", userID.String()).
		With("window", leaderboard.WindowLabel(window))

	return cache.Memoize(ctx, s.memo, key, func(ctx context.Context) (*leaderboard.Rank, error) {
		defer observe(s.ref.Kind, "rank", time.Now())

		rank, err := s.store.UserRank(ctx, s.builder.Build(window), userID)
		if err != nil {
			if shared.IsNotFound(err) {
				if taskErr := s.ensureTask(ctx); taskErr != nil {
					return nil, taskErr
				}
			}
			return nil, err
		}
		return rank, nil
	})
}

func (s *LocalScope) baseKey() cache.Key {
	return cache.NewKey("leaderboard").Part(string(s.ref.Kind)).Part(s.ref.Param())
}

// ensureTask returns ErrTaskNotFound for task scopes whose task is missing.
func (s *LocalScope) ensureTask(ctx context.Context) error {
	if s.ref.Kind != leaderboard.ScopeTask || s.tasks == nil {
		return nil
	}
	exists, err := s.tasks.Exists(ctx, s.ref.TaskID)
	if err != nil {
		return err
	}
	if !exists {
		s.log.Debug("task not found", logger.TaskID(s.ref.TaskID))
		return shared.ErrTaskNotFound
	}
	return nil
}
