// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alem-hub/challenges-leaderboard/internal/domain/leaderboard"
	"github.com/alem-hub/challenges-leaderboard/internal/domain/shared"
	"github.com/alem-hub/challenges-leaderboard/pkg/logger"
	"github.com/alem-hub/challenges-leaderboard/pkg/timeutil"
)

// validate - общий валидатор запросов.
var validate = validator.New()

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Возвращает страницу рейтинга в выбранной области.
// При CurrentQuarter учитывается только активность текущего квартала.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery содержит параметры запроса рейтинга.
type GetLeaderboardQuery struct {
	// Scope - область рейтинга (глобальная, задача или язык).
	Scope leaderboard.ScopeRef

	// Limit - размер страницы, не больше 100.
	Limit uint64 `validate:"max=100"`

	// Offset - смещение от начала рейтинга.
	Offset uint64

	// CurrentQuarter - ограничить рейтинг текущим кварталом.
	CurrentQuarter bool
}

// Validate проверяет корректность параметров запроса.
func (q *GetLeaderboardQuery) Validate() error {
	if err := validate.Struct(q); err != nil {
		return validationError("GetLeaderboard", err)
	}
	return q.Scope.Validate()
}

// Page возвращает параметры пагинации.
func (q *GetLeaderboardQuery) Page() leaderboard.Page {
	return leaderboard.Page{Limit: q.Limit, Offset: q.Offset}
}

// GetLeaderboardHandler обрабатывает запросы рейтинга.
type GetLeaderboardHandler struct {
	scopes leaderboard.ScopeResolver
	clock  timeutil.Clock
	log    *logger.Logger
}

// NewGetLeaderboardHandler создаёт новый обработчик запроса рейтинга.
func NewGetLeaderboardHandler(scopes leaderboard.ScopeResolver, clock timeutil.Clock, log *logger.Logger) *GetLeaderboardHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetLeaderboardHandler{scopes: scopes, clock: clock, log: log}
}

// Handle выполняет запрос рейтинга.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, query GetLeaderboardQuery) (*leaderboard.Leaderboard, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	scope, err := h.scopes.Resolve(ctx, query.Scope)
	if err != nil {
		return nil, err
	}

	window := resolveWindow(h.clock, query.CurrentQuarter)
	lb, err := scope.Top(ctx, query.Page(), window)
	if err != nil {
		return nil, err
	}

	h.log.Debug("leaderboard served",
		logger.Scope(query.Scope.String()),
		logger.Uint64("limit", query.Limit),
		logger.Uint64("offset", query.Offset),
		logger.String("window", leaderboard.WindowLabel(window)),
		logger.Int("entries", len(lb.Entries)),
	)
	return lb, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ВСПОМОГАТЕЛЬНЫЕ ФУНКЦИИ
// ══════════════════════════════════════════════════════════════════════════════

// resolveWindow вычисляет окно квартала один раз на запрос.
func resolveWindow(clock timeutil.Clock, currentQuarter bool) *leaderboard.DateRange {
	if !currentQuarter {
		return nil
	}
	window := leaderboard.CurrentQuarter(clock.Now())
	return &window
}

// validationError переводит ошибки валидатора в доменную ошибку.
func validationError(op string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return shared.WrapError("query", op, shared.ErrValidation, err.Error(), err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "max" {
			msgs = append(msgs, fmt.Sprintf("%s must not exceed %s", strings.ToLower(fe.Field()), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return shared.WrapError("query", op, shared.ErrValueOutOfRange, strings.Join(msgs, "; "), err)
}
