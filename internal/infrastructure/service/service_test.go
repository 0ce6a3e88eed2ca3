package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/challenges-leaderboard/internal/domain/leaderboard"
	"github.com/alem-hub/challenges-leaderboard/internal/domain/shared"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/external/skills"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/persistence/cache"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/challenges-leaderboard/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeRanks struct {
	mu       sync.Mutex
	top      *leaderboard.Leaderboard
	rank     *leaderboard.Rank
	err      error
	topCalls int
	rankArgs []uuid.UUID
	queries  []postgres.ScopeQuery
}

func (f *fakeRanks) Top(_ context.Context, base postgres.ScopeQuery, _ leaderboard.Page) (*leaderboard.Leaderboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topCalls++
	f.queries = append(f.queries, base)
	if f.err != nil {
		return nil, f.err
	}
	return f.top, nil
}

func (f *fakeRanks) UserRank(_ context.Context, base postgres.ScopeQuery, userID uuid.UUID) (*leaderboard.Rank, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rankArgs = append(f.rankArgs, userID)
	f.queries = append(f.queries, base)
	if f.err != nil {
		return nil, f.err
	}
	return f.rank, nil
}

type fakeTasks map[uuid.UUID]bool

func (f fakeTasks) Exists(_ context.Context, id uuid.UUID) (bool, error) { return f[id], nil }

type fakeSkills struct {
	mu    sync.Mutex
	board *skills.LeaderboardDTO
	rank  *skills.RankDTO
	err   error
	calls int
}

func (f *fakeSkills) GetLeaderboard(context.Context, uint64, uint64, *leaderboard.DateRange) (*skills.LeaderboardDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.board, f.err
}

func (f *fakeSkills) GetLeaderboardUser(context.Context, uuid.UUID, *leaderboard.DateRange) (*skills.RankDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.rank, f.err
}

func newTestMemoizer(t *testing.T) *cache.Memoizer {
	t.Helper()
	store, err := cache.OpenBadgerStore(cache.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return cache.NewMemoizer(store, 10*time.Second, logger.Nop())
}

func quarter() *leaderboard.DateRange {
	w := leaderboard.CurrentQuarter(time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC))
	return &w
}

// ══════════════════════════════════════════════════════════════════════════════
// LOCAL SCOPE
// ══════════════════════════════════════════════════════════════════════════════

func TestLocalScope_TopIsMemoizedPerWindow(t *testing.T) {
	ctx := context.Background()
	taskID := uuid.New()
	a, b := uuid.New(), uuid.New()
	ranks := &fakeRanks{top: &leaderboard.Leaderboard{
		Entries: []leaderboard.Entry{{UserID: a, XP: 50, Rank: 1}, {UserID: b, XP: 30, Rank: 2}},
		Total:   2,
	}}
	scope := NewLocalScope(leaderboard.TaskScope(taskID), postgres.TaskQuery{TaskID: taskID},
		ranks, fakeTasks{taskID: true}, newTestMemoizer(t), nil)
	page := leaderboard.Page{Limit: 10}

	first, err := scope.Top(ctx, page, nil)
	require.NoError(t, err)
	second, err := scope.Top(ctx, page, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, ranks.topCalls)

	_, err = scope.Top(ctx, page, quarter())
	require.NoError(t, err)
	assert.Equal(t, 2, ranks.topCalls, "quarter window must not share the all-time key")
	assert.Len(t, ranks.queries[1].Args, 3)
}

func TestLocalScope_TopRejectsLargeLimit(t *testing.T) {
	ranks := &fakeRanks{}
	scope := NewLocalScope(leaderboard.LanguageScope("go"), postgres.LanguageQuery{Language: "go"},
		ranks, nil, nil, nil)

	_, err := scope.Top(context.Background(), leaderboard.Page{Limit: 101}, nil)
	assert.True(t, shared.IsValidation(err))
	assert.Zero(t, ranks.topCalls)
}

func TestLocalScope_UnknownTask(t *testing.T) {
	ctx := context.Background()
	taskID := uuid.New()
	ranks := &fakeRanks{top: leaderboard.Empty(0), err: nil}
	scope := NewLocalScope(leaderboard.TaskScope(taskID), postgres.TaskQuery{TaskID: taskID},
		ranks, fakeTasks{}, nil, nil)

	_, err := scope.Top(ctx, leaderboard.Page{Limit: 10}, nil)
	assert.ErrorIs(t, err, shared.ErrTaskNotFound)

	ranks.err = shared.ErrRankNotFound
	_, err = scope.UserRank(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, shared.ErrTaskNotFound)
}

func TestLocalScope_EmptyPageOfKnownTask(t *testing.T) {
	taskID := uuid.New()
	ranks := &fakeRanks{top: leaderboard.Empty(2)}
	scope := NewLocalScope(leaderboard.TaskScope(taskID), postgres.TaskQuery{TaskID: taskID},
		ranks, fakeTasks{taskID: true}, nil, nil)

	lb, err := scope.Top(context.Background(), leaderboard.Page{Limit: 10, Offset: 50}, nil)
	require.NoError(t, err)
	assert.Empty(t, lb.Entries)
	assert.Equal(t, uint64(2), lb.Total)
}

func TestLocalScope_UserWithoutActivity(t *testing.T) {
	taskID := uuid.New()
	ranks := &fakeRanks{err: shared.ErrRankNotFound}
	scope := NewLocalScope(leaderboard.TaskScope(taskID), postgres.TaskQuery{TaskID: taskID},
		ranks, fakeTasks{taskID: true}, nil, nil)

	_, err := scope.UserRank(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, shared.ErrRankNotFound)
	assert.True(t, shared.IsNotFound(err))
}

func TestLocalScope_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	ranks := &fakeRanks{err: shared.WrapError("leaderboard", "UserRank", shared.ErrStore, "rank query failed", errors.New("boom"))}
	scope := NewLocalScope(leaderboard.LanguageScope("go"), postgres.LanguageQuery{Language: "go"},
		ranks, nil, newTestMemoizer(t), nil)

	_, err := scope.UserRank(ctx, userID, nil)
	assert.ErrorIs(t, err, shared.ErrStore)

	ranks.err = nil
	ranks.rank = &leaderboard.Rank{XP: 40, Rank: 2}
	rank, err := scope.UserRank(ctx, userID, nil)
	require.NoError(t, err)
	assert.Equal(t, &leaderboard.Rank{XP: 40, Rank: 2}, rank)
	assert.Len(t, ranks.rankArgs, 2)
}

// ══════════════════════════════════════════════════════════════════════════════
// GLOBAL SCOPE
// ══════════════════════════════════════════════════════════════════════════════

func TestGlobalScope_TopEnrichesInOrder(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	client := &fakeSkills{board: &skills.LeaderboardDTO{
		Leaderboard: []skills.LeaderboardUserDTO{
			{User: a, XP: 300, Rank: 1},
			{User: b, XP: 200, Rank: 2},
			{User: c, XP: 100, Rank: 3},
		},
		Total: 7,
	}}
	scope := NewGlobalScope(client, nil, nil)

	lb, err := scope.Top(context.Background(), leaderboard.Page{Limit: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), lb.Total)
	assert.Equal(t, []leaderboard.Entry{
		{UserID: a, XP: 300, Rank: 1},
		{UserID: b, XP: 200, Rank: 2},
		{UserID: c, XP: 100, Rank: 3},
	}, lb.Entries)
	assert.True(t, lb.IsOrdered())
}

func TestGlobalScope_UpstreamAnswersAreMemoized(t *testing.T) {
	ctx := context.Background()
	client := &fakeSkills{rank: &skills.RankDTO{XP: 10, Rank: 4}}
	scope := NewGlobalScope(client, nil, newTestMemoizer(t))
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		rank, err := scope.UserRank(ctx, userID, nil)
		require.NoError(t, err)
		assert.Equal(t, &leaderboard.Rank{XP: 10, Rank: 4}, rank)
	}
	assert.Equal(t, 1, client.calls)
}

func TestGlobalScope_UpstreamErrorsKeepTheirKind(t *testing.T) {
	client := &fakeSkills{err: &shared.UnexpectedStatusError{Service: "skills", StatusCode: 503}}
	scope := NewGlobalScope(client, nil, nil)

	_, err := scope.Top(context.Background(), leaderboard.Page{Limit: 5}, nil)
	assert.ErrorIs(t, err, shared.ErrUnexpectedStatus)

	client.err = shared.ErrSkillsNotFound
	_, err = scope.UserRank(context.Background(), uuid.New(), nil)
	assert.True(t, shared.IsNotFound(err))
}

func TestGlobalScope_EnrichmentFailureFailsTheBatch(t *testing.T) {
	client := &fakeSkills{board: &skills.LeaderboardDTO{
		Leaderboard: []skills.LeaderboardUserDTO{{User: uuid.New(), XP: 1, Rank: 1}},
		Total:       1,
	}}
	failing := UserResolverFunc(func(context.Context, leaderboard.RawEntry) (leaderboard.Entry, error) {
		return leaderboard.Entry{}, errors.New("profile lookup failed")
	})
	scope := NewGlobalScope(client, NewUserEnricher(failing, nil), nil)

	lb, err := scope.Top(context.Background(), leaderboard.Page{Limit: 5}, nil)
	assert.Nil(t, lb)
	assert.ErrorIs(t, err, shared.ErrEnrichment)
}

// ══════════════════════════════════════════════════════════════════════════════
// USER ENRICHER
// ══════════════════════════════════════════════════════════════════════════════

func TestUserEnricher_PreservesOrder(t *testing.T) {
	raw := make([]leaderboard.RawEntry, 50)
	for i := range raw {
		raw[i] = leaderboard.RawEntry{UserID: uuid.New(), XP: uint64(1000 - i), Rank: uint64(i + 1)}
	}
	// later rows finish first
	slow := UserResolverFunc(func(_ context.Context, r leaderboard.RawEntry) (leaderboard.Entry, error) {
		time.Sleep(time.Duration(50-r.Rank) * 100 * time.Microsecond)
		return leaderboard.Entry{UserID: r.UserID, XP: r.XP, Rank: r.Rank}, nil
	})

	entries, err := NewUserEnricher(slow, nil).Resolve(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, entries, len(raw))
	for i, e := range entries {
		assert.Equal(t, raw[i].UserID, e.UserID)
		assert.Equal(t, raw[i].Rank, e.Rank)
	}
}

func TestUserEnricher_Empty(t *testing.T) {
	entries, err := NewUserEnricher(nil, nil).Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUserEnricher_FirstErrorWins(t *testing.T) {
	bad := uuid.New()
	resolver := UserResolverFunc(func(ctx context.Context, r leaderboard.RawEntry) (leaderboard.Entry, error) {
		if r.UserID == bad {
			return leaderboard.Entry{}, shared.ErrSkillsNotFound
		}
		<-ctx.Done()
		return leaderboard.Entry{}, ctx.Err()
	})
	raw := []leaderboard.RawEntry{{UserID: uuid.New()}, {UserID: bad}, {UserID: uuid.New()}}

	_, err := NewUserEnricher(resolver, nil).Resolve(context.Background(), raw)
	assert.ErrorIs(t, err, shared.ErrEnrichment)
	assert.ErrorIs(t, err, shared.ErrSkillsNotFound)
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

func TestScopeRegistry_Resolve(t *testing.T) {
	ctx := context.Background()
	ranks := &fakeRanks{top: leaderboard.Empty(3)}
	registry := NewScopeRegistry(RegistryDeps{
		Skills: &fakeSkills{},
		Ranks:  ranks,
		Tasks:  fakeTasks{},
	})

	global, err := registry.Resolve(ctx, leaderboard.GlobalScope())
	require.NoError(t, err)
	assert.IsType(t, &GlobalScope{}, global)

	taskID := uuid.New()
	task, err := registry.Resolve(ctx, leaderboard.TaskScope(taskID))
	require.NoError(t, err)
	_, err = task.Top(ctx, leaderboard.Page{Limit: 1}, nil)
	require.NoError(t, err)
	assert.Contains(t, ranks.queries[0].SQL, "task_id")
	assert.Equal(t, taskID, ranks.queries[0].Args[0])

	lang, err := registry.Resolve(ctx, leaderboard.LanguageScope("python"))
	require.NoError(t, err)
	_, err = lang.Top(ctx, leaderboard.Page{Limit: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, "python", ranks.queries[1].Args[0])
}

func TestScopeRegistry_RejectsIncompleteRefs(t *testing.T) {
	registry := NewScopeRegistry(RegistryDeps{})

	_, err := registry.Resolve(context.Background(), leaderboard.TaskScope(uuid.Nil))
	assert.True(t, shared.IsValidation(err))

	_, err = registry.Resolve(context.Background(), leaderboard.ScopeRef{Kind: "team"})
	assert.ErrorIs(t, err, shared.ErrUnknownScope)
}
