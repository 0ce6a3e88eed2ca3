package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alem-hub/challenges-leaderboard/internal/application/query"
	"github.com/alem-hub/challenges-leaderboard/internal/domain/leaderboard"
	"github.com/alem-hub/challenges-leaderboard/internal/domain/shared"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/external/skills"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/persistence/cache"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/persistence/postgres"
	rediscache "github.com/alem-hub/challenges-leaderboard/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/service"
	"github.com/alem-hub/challenges-leaderboard/internal/interface/http/handlers"
	"github.com/alem-hub/challenges-leaderboard/pkg/logger"
	"github.com/alem-hub/challenges-leaderboard/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

// memoryRanks serves full rankings keyed by the scope parameter (the first
// query argument) and slices them like the SQL does.
type memoryRanks struct {
	mu       sync.Mutex
	rankings map[any][]leaderboard.Entry
	computed int
}

func (m *memoryRanks) Top(_ context.Context, base postgres.ScopeQuery, page leaderboard.Page) (*leaderboard.Leaderboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.computed++

	all := m.rankings[base.Args[0]]
	lb := leaderboard.Empty(uint64(len(all)))
	for i := page.Offset; i < uint64(len(all)) && i < page.Offset+page.Limit; i++ {
		lb.Entries = append(lb.Entries, all[i])
	}
	return lb, nil
}

func (m *memoryRanks) UserRank(_ context.Context, base postgres.ScopeQuery, userID uuid.UUID) (*leaderboard.Rank, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.computed++

	for _, e := range m.rankings[base.Args[0]] {
		if e.UserID == userID {
			return &leaderboard.Rank{XP: e.XP, Rank: e.Rank}, nil
		}
	}
	return nil, shared.ErrRankNotFound
}

type knownTasks map[uuid.UUID]bool

func (k knownTasks) Exists(_ context.Context, id uuid.UUID) (bool, error) { return k[id], nil }

type stubSkills struct {
	board *skills.LeaderboardDTO
	err   error
}

func (s *stubSkills) GetLeaderboard(context.Context, uint64, uint64, *leaderboard.DateRange) (*skills.LeaderboardDTO, error) {
	return s.board, s.err
}

func (s *stubSkills) GetLeaderboardUser(context.Context, uuid.UUID, *leaderboard.DateRange) (*skills.RankDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &skills.RankDTO{XP: 900, Rank: 1}, nil
}

type fixture struct {
	server *httptest.Server
	ranks  *memoryRanks
	skills *stubSkills
	taskID uuid.UUID
	userA  uuid.UUID
	userB  uuid.UUID
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	f := &fixture{taskID: uuid.New(), userA: uuid.New(), userB: uuid.New()}
	f.ranks = &memoryRanks{rankings: map[any][]leaderboard.Entry{
		f.taskID: {
			{UserID: f.userA, XP: 50, Rank: 1},
			{UserID: f.userB, XP: 30, Rank: 2},
		},
	}}
	f.skills = &stubSkills{board: &skills.LeaderboardDTO{
		Leaderboard: []skills.LeaderboardUserDTO{{User: f.userA, XP: 900, Rank: 1}},
		Total:       1,
	}}

	mr := miniredis.RunT(t)
	redisCfg := rediscache.DefaultConfig()
	redisCfg.URL = "redis://" + mr.Addr()
	store, err := rediscache.NewCache(context.Background(), redisCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	log := logger.Nop()
	registry := service.NewScopeRegistry(service.RegistryDeps{
		Skills: f.skills,
		Ranks:  f.ranks,
		Tasks:  knownTasks{f.taskID: true},
		Memo:   cache.NewMemoizer(store, 10*time.Second, log),
		Logger: log,
	})
	clock := timeutil.FixedClock(time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC))

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("cache", handlers.PingCheck(store))

	srv := NewServer(cfg, Dependencies{
		GetLeaderboardHandler: query.NewGetLeaderboardHandler(registry, clock, log),
		GetUserRankHandler:    query.NewGetUserRankHandler(registry, clock, log),
		HealthChecker:         checker,
		Logger:                log,
	})
	f.server = httptest.NewServer(srv.Handler())
	t.Cleanup(f.server.Close)
	return f
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	Meta      *ResponseMeta   `json:"meta"`
	RequestID string          `json:"request_id"`
}

func (f *fixture) get(t *testing.T, path string, header ...string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.server.URL+path, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

func TestTaskLeaderboard(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.get(t, "/leaderboard/by-task/"+f.taskID.String()+"?limit=10&offset=0")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.RequestID)

	lb := decode[leaderboard.Leaderboard](t, body.Data)
	assert.Equal(t, uint64(2), lb.Total)
	assert.Equal(t, []leaderboard.Entry{
		{UserID: f.userA, XP: 50, Rank: 1},
		{UserID: f.userB, XP: 30, Rank: 2},
	}, lb.Entries)
	assert.Equal(t, "task:"+f.taskID.String(), body.Meta.Scope)
	assert.False(t, body.Meta.HasMore)
}

func TestTaskLeaderboard_OffsetPastTheEnd(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.get(t, "/leaderboard/by-task/"+f.taskID.String()+"?limit=10&offset=10")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"entries": [], "total": 2}`, string(body.Data))
}

func TestTaskLeaderboard_DefaultLimit(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.get(t, "/leaderboard/by-task/"+f.taskID.String())
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint64(20), body.Meta.Limit)
}

func TestTaskRank(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.get(t, "/leaderboard/by-task/"+f.taskID.String()+"/"+f.userB.String())
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"xp": 30, "rank": 2}`, string(body.Data))
}

func TestTaskRank_UserWithoutActivity(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.get(t, "/leaderboard/by-task/"+f.taskID.String()+"/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, body.Success)
	assert.Equal(t, "not_found", body.Error.Code)
}

func TestTaskLeaderboard_UnknownTask(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.get(t, "/leaderboard/by-task/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "task not found", body.Error.Message)
}

func TestLanguageLeaderboard_Empty(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.get(t, "/leaderboard/by-language/rust?limit=5")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"entries": [], "total": 0}`, string(body.Data))
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t, nil)
	task := "/leaderboard/by-task/" + f.taskID.String()

	for name, path := range map[string]string{
		"limit over 100":        task + "?limit=101",
		"negative limit":        task + "?limit=-1",
		"non-numeric offset":    task + "?offset=abc",
		"bad quarter flag":      task + "?current_quarter=maybe",
		"bad task id":           "/leaderboard/by-task/not-a-uuid",
		"bad user id":           task + "/42",
		"bad global user id":    "/leaderboard/nobody",
		"global limit over 100": "/leaderboard?limit=500",
	} {
		t.Run(name, func(t *testing.T) {
			status, body := f.get(t, path)
			assert.Equal(t, http.StatusBadRequest, status)
			require.NotNil(t, body.Error)
			assert.Equal(t, "invalid_request", body.Error.Code)
		})
	}
	assert.Zero(t, f.ranks.computed)
}

func TestCurrentQuarterHasItsOwnCacheEntry(t *testing.T) {
	f := newFixture(t, nil)
	path := "/leaderboard/by-task/" + f.taskID.String() + "?limit=10"

	for i := 0; i < 3; i++ {
		status, _ := f.get(t, path)
		require.Equal(t, http.StatusOK, status)
	}
	assert.Equal(t, 1, f.ranks.computed)

	status, body := f.get(t, path+"&current_quarter=true")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "current_quarter", body.Meta.Window)
	assert.Equal(t, 2, f.ranks.computed)

	f.get(t, path+"&current_quarter=true")
	assert.Equal(t, 2, f.ranks.computed)
}

func TestGlobalLeaderboard(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.get(t, "/leaderboard?limit=1")
	require.Equal(t, http.StatusOK, status)
	lb := decode[leaderboard.Leaderboard](t, body.Data)
	assert.Equal(t, []leaderboard.Entry{{UserID: f.userA, XP: 900, Rank: 1}}, lb.Entries)

	status, body = f.get(t, "/leaderboard/"+f.userA.String()+"?current_quarter=1")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"xp": 900, "rank": 1}`, string(body.Data))
}

func TestGlobalLeaderboard_UpstreamFailures(t *testing.T) {
	f := newFixture(t, nil)

	f.skills.err = &shared.UnexpectedStatusError{Service: "skills", StatusCode: http.StatusInternalServerError}
	status, body := f.get(t, "/leaderboard")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "upstream_error", body.Error.Code)

	f.skills.err = shared.ErrSkillsUnavailable
	status, body = f.get(t, "/leaderboard/"+uuid.NewString())
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "upstream_unavailable", body.Error.Code)

	f.skills.err = shared.ErrSkillsNotFound
	status, _ = f.get(t, "/leaderboard/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// AMBIENT
// ══════════════════════════════════════════════════════════════════════════════

func TestAPIKeyGuard(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	f := newFixture(t, func(c *Config) { c.APIKeyHashes = []string{string(hash)} })
	path := "/leaderboard/by-task/" + f.taskID.String()

	status, body := f.get(t, path)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "missing_api_key", body.Error.Code)

	status, _ = f.get(t, path, handlers.APIKeyHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.get(t, path, handlers.APIKeyHeader, "s3cret")
	assert.Equal(t, http.StatusOK, status)

	// probes stay open
	status, _ = f.get(t, "/live")
	assert.Equal(t, http.StatusOK, status)
}

func TestCacheControl(t *testing.T) {
	f := newFixture(t, nil)

	cacheControl := func(path string, header ...string) string {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, f.server.URL+path, nil)
		require.NoError(t, err)
		for i := 0; i+1 < len(header); i += 2 {
			req.Header.Set(header[i], header[i+1])
		}
		resp, err := f.server.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.Header.Get("Cache-Control")
	}

	assert.Equal(t, "public, max-age=10", cacheControl("/leaderboard/by-task/"+f.taskID.String()))
	assert.Equal(t, "no-store", cacheControl("/leaderboard/by-task/"+uuid.NewString()))
	assert.Equal(t, "no-store", cacheControl("/leaderboard/by-task/"+f.taskID.String()+"?limit=101"))

	f.skills.err = shared.ErrSkillsUnavailable
	assert.Equal(t, "no-store", cacheControl("/leaderboard?limit=10"))

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	f = newFixture(t, func(c *Config) { c.APIKeyHashes = []string{string(hash)} })
	assert.Equal(t, "private, max-age=10", cacheControl("/leaderboard/by-task/"+f.taskID.String(), handlers.APIKeyHeader, "s3cret"))
	assert.Equal(t, "no-store", cacheControl("/leaderboard/by-task/"+f.taskID.String()))
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 2
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		status, _ := f.get(t, "/live")
		codes = append(codes, status)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestProbes(t *testing.T) {
	f := newFixture(t, nil)

	status, _ := f.get(t, "/ready")
	assert.Equal(t, http.StatusOK, status)

	status, body := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, status)
	health := decode[handlers.HealthStatus](t, body.Data)
	assert.True(t, health.Checks["cache"].Healthy)

	status, body = f.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "route_not_found", body.Error.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.get(t, "/live")

	resp, err := f.server.Client().Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClassify(t *testing.T) {
	enrichNotFound := shared.WrapError("leaderboard", "Enrich", shared.ErrEnrichment, "user resolution failed", shared.ErrSkillsNotFound)

	tests := []struct {
		err    error
		status int
	}{
		{shared.ErrRankNotFound, http.StatusNotFound},
		{shared.ErrLimitTooLarge, http.StatusBadRequest},
		{enrichNotFound, http.StatusInternalServerError},
		{shared.WrapError("leaderboard", "Top", shared.ErrStore, "ranking query failed", context.Canceled), http.StatusInternalServerError},
		{&shared.UnexpectedStatusError{Service: "skills", StatusCode: 418}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		status, _, _ := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
