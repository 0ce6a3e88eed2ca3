package leaderboard

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/alem-hub/challenges-leaderboard/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCOPES
// ══════════════════════════════════════════════════════════════════════════════

// ScopeKind определяет, среди кого строится рейтинг.
type ScopeKind string

const (
	// ScopeGlobal - рейтинг по всем навыкам, владеет им сервис навыков.
	ScopeGlobal ScopeKind = "global"
	// ScopeTask - рейтинг по решённым подзадачам одной задачи.
	ScopeTask ScopeKind = "task"
	// ScopeLanguage - рейтинг по принятым решениям на одном языке.
	ScopeLanguage ScopeKind = "language"
)

// ScopeRef идентифицирует конкретную область.
type ScopeRef struct {
	Kind     ScopeKind
	TaskID   uuid.UUID
	Language string
}

// GlobalScope возвращает ссылку на глобальную область.
func GlobalScope() ScopeRef { return ScopeRef{Kind: ScopeGlobal} }

// TaskScope возвращает ссылку на область задачи.
func TaskScope(taskID uuid.UUID) ScopeRef { return ScopeRef{Kind: ScopeTask, TaskID: taskID} }

// LanguageScope возвращает ссылку на область языка.
func LanguageScope(language string) ScopeRef {
	return ScopeRef{Kind: ScopeLanguage, Language: language}
}

// Validate проверяет, что параметры области заполнены.
func (r ScopeRef) Validate() error {
	switch r.Kind {
	case ScopeGlobal:
		return nil
	case ScopeTask:
		if r.TaskID == uuid.Nil {
			return shared.NewDomainError("leaderboard", "Validate", shared.ErrInvalidID, "task id is required")
		}
		return nil
	case ScopeLanguage:
		if r.Language == "" {
			return shared.NewDomainError("leaderboard", "Validate", shared.ErrInvalidInput, "language is required")
		}
		return nil
	default:
		return shared.ErrUnknownScope
	}
}

// Param возвращает параметр области для ключей кеша и логов.
func (r ScopeRef) Param() string {
	switch r.Kind {
	case ScopeTask:
		return r.TaskID.String()
	case ScopeLanguage:
		return r.Language
	default:
		return "-"
	}
}

// String возвращает "kind:param".
func (r ScopeRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.Param())
}

// Scope - единый контракт для всех областей. Вызывающему коду не нужно
// знать, считается рейтинг локально или запрашивается у сервиса навыков.
type Scope interface {
	// Top возвращает страницу рейтинга. window == nil означает "за всё время".
	Top(ctx context.Context, page Page, window *DateRange) (*Leaderboard, error)

	// UserRank возвращает позицию пользователя или ошибку с видом ErrNotFound.
	UserRank(ctx context.Context, userID uuid.UUID, window *DateRange) (*Rank, error)
}

// ScopeResolver выбирает реализацию Scope по ссылке.
type ScopeResolver interface {
	Resolve(ctx context.Context, ref ScopeRef) (Scope, error)
}
