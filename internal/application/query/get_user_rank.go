package query

import (
	"context"

	"github.com/google/uuid"

	"github.com/alem-hub/challenges-leaderboard/internal/domain/leaderboard"
	"github.com/alem-hub/challenges-leaderboard/internal/domain/shared"
	"github.com/alem-hub/challenges-leaderboard/pkg/logger"
	"github.com/alem-hub/challenges-leaderboard/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER RANK QUERY
// Возвращает XP и позицию одного пользователя в области.
// ══════════════════════════════════════════════════════════════════════════════

// GetUserRankQuery содержит параметры запроса позиции пользователя.
type GetUserRankQuery struct {
	// Scope - область рейтинга.
	Scope leaderboard.ScopeRef

	// UserID - пользователь, чью позицию запрашивают.
	UserID uuid.UUID

	// CurrentQuarter - ограничить рейтинг текущим кварталом.
	CurrentQuarter bool
}

// Validate проверяет корректность параметров запроса.
func (q *GetUserRankQuery) Validate() error {
	if q.UserID == uuid.Nil {
		return shared.NewDomainError("query", "GetUserRank", shared.ErrInvalidID, "user id is required")
	}
	return q.Scope.Validate()
}

// GetUserRankHandler обрабатывает запросы позиции пользователя.
type GetUserRankHandler struct {
	scopes leaderboard.ScopeResolver
	clock  timeutil.Clock
	log    *logger.Logger
}

// NewGetUserRankHandler создаёт новый обработчик.
func NewGetUserRankHandler(scopes leaderboard.ScopeResolver, clock timeutil.Clock, log *logger.Logger) *GetUserRankHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetUserRankHandler{scopes: scopes, clock: clock, log: log}
}

// Handle выполняет запрос. Пользователь без активности в области даёт ошибку
// с видом shared.ErrNotFound.
func (h *GetUserRankHandler) Handle(ctx context.Context, query GetUserRankQuery) (*leaderboard.Rank, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	scope, err := h.scopes.Resolve(ctx, query.Scope)
	if err != nil {
		return nil, err
	}

	rank, err := scope.UserRank(ctx, query.UserID, resolveWindow(h.clock, query.CurrentQuarter))
	if err != nil {
		if shared.IsNotFound(err) {
			h.log.Debug("rank not found",
				logger.Scope(query.Scope.String()),
				logger.UserID(query.UserID),
			)
		}
		return nil, err
	}
	return rank, nil
}
