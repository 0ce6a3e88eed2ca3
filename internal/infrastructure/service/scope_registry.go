package service

import (
	"context"

	"github.com/alem-hub/challenges-leaderboard/internal/domain/leaderboard"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/persistence/cache"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/challenges-leaderboard/pkg/logger"
)

// RegistryDeps lists what the registry needs to build scopes.
type RegistryDeps struct {
	Skills   SkillsLeaderboard
	Enricher *UserEnricher
	Ranks    RankStore
	Tasks    TaskChecker

	// Memo caches local results. SkillsMemo caches upstream answers and may be nil.
	Memo       *cache.Memoizer
	SkillsMemo *cache.Memoizer

	Logger *logger.Logger
}

// ScopeRegistry maps a scope reference to its implementation.
type ScopeRegistry struct {
	deps   RegistryDeps
	global *GlobalScope
}

var _ leaderboard.ScopeResolver = (*ScopeRegistry)(nil)

// NewScopeRegistry creates a ScopeRegistry.
func NewScopeRegistry(deps RegistryDeps) *ScopeRegistry {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &ScopeRegistry{
		deps:   deps,
		global: NewGlobalScope(deps.Skills, deps.Enricher, deps.SkillsMemo),
	}
}

// Resolve returns the scope for ref.
func (r *ScopeRegistry) Resolve(_ context.Context, ref leaderboard.ScopeRef) (leaderboard.Scope, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	switch ref.Kind {
	case leaderboard.ScopeTask:
		return NewLocalScope(ref, postgres.TaskQuery{TaskID: ref.TaskID},
			r.deps.Ranks, r.deps.Tasks, r.deps.Memo, r.deps.Logger), nil
	case leaderboard.ScopeLanguage:
		return NewLocalScope(ref, postgres.LanguageQuery{Language: ref.Language},
			r.deps.Ranks, nil, r.deps.Memo, r.deps.Logger), nil
	default:
		return r.global, nil
	}
}
