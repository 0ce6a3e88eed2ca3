// Package leaderboard содержит доменную модель рейтингов платформы задач.
// Рейтинг строится в одной из трёх областей (глобально, по задаче, по языку)
// и может быть ограничен текущим календарным кварталом.
package leaderboard

import (
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/challenges-leaderboard/internal/domain/shared"
	"github.com/alem-hub/challenges-leaderboard/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MaxLimit - максимальный размер страницы.
	MaxLimit = 100

	// DefaultLimit - размер страницы, если клиент его не указал.
	DefaultLimit = 20
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// DateRange - полуоткрытый интервал [Start, End).
// Создаётся через CurrentQuarter и не изменяется.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// CurrentQuarter возвращает границы квартала, в который попадает now.
func CurrentQuarter(now time.Time) DateRange {
	start, end := timeutil.QuarterRange(now)
	return DateRange{Start: start, End: end}
}

// WindowLabel - часть ключа кеша, различающая окна.
// Без окна - "all", с окном - "q" + дата начала квартала.
func WindowLabel(window *DateRange) string {
	if window == nil {
		return "all"
	}
	return "q" + window.Start.Format("2006-01-02")
}

// Page - параметры пагинации.
type Page struct {
	Limit  uint64
	Offset uint64
}

// Validate проверяет лимит страницы.
func (p Page) Validate() error {
	if p.Limit > MaxLimit {
		return shared.ErrLimitTooLarge
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Entry - строка рейтинга. Rank начинается с 1 и не имеет пропусков.
type Entry struct {
	UserID uuid.UUID `json:"user_id"`
	XP     uint64    `json:"xp"`
	Rank   uint64    `json:"rank"`
}

// Leaderboard - страница рейтинга.
// Total - число всех участников области, а не только попавших в страницу.
type Leaderboard struct {
	Entries []Entry `json:"entries"`
	Total   uint64  `json:"total"`
}

// Empty возвращает пустую страницу с известным Total.
func Empty(total uint64) *Leaderboard {
	return &Leaderboard{Entries: []Entry{}, Total: total}
}

// IsOrdered проверяет порядок страницы: XP не возрастает, ранг строго растёт.
func (lb *Leaderboard) IsOrdered() bool {
	for i := 1; i < len(lb.Entries); i++ {
		prev, cur := lb.Entries[i-1], lb.Entries[i]
		if cur.XP > prev.XP || cur.Rank <= prev.Rank {
			return false
		}
	}
	return true
}

// Rank - позиция одного пользователя в области.
type Rank struct {
	XP   uint64 `json:"xp"`
	Rank uint64 `json:"rank"`
}

// RawEntry - строка рейтинга, полученная от внешнего сервиса до обогащения.
type RawEntry struct {
	UserID uuid.UUID
	XP     uint64
	Rank   uint64
}
