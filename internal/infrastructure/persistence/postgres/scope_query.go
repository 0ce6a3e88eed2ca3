package postgres

import (
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/alem-hub/challenges-leaderboard/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCOPE QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// ScopeQuery is a parameterized SELECT producing one row per participant with
// the columns (user_id uuid, xp int8, last_update timestamp). It carries no
// ordering or pagination; the aggregator wraps it for that.
type ScopeQuery struct {
	SQL  string
	Args []any
}

// QueryBuilder produces the base query of a local scope.
// The same builder and window always produce the same SQL text.
type QueryBuilder interface {
	Build(window *leaderboard.DateRange) ScopeQuery
}

// placeholders hands out $N positions in argument order.
type placeholders struct {
	args []any
}

func (p *placeholders) next(v any) string {
	p.args = append(p.args, v)
	return "$" + strconv.Itoa(len(p.args))
}

// windowPredicate renders "col >= $a AND col < $b" for a half-open window.
func (p *placeholders) windowPredicate(column string, window *leaderboard.DateRange) string {
	return column + " >= " + p.next(window.Start) + " AND " + column + " < " + p.next(window.End)
}

// ─────────────────────────────────────────────────────────────────────────────
// TASK SCOPE
// ─────────────────────────────────────────────────────────────────────────────

// TaskQuery ranks users by the XP of solved subtasks of one task.
type TaskQuery struct {
	TaskID uuid.UUID
}

// Build implements QueryBuilder.
func (q TaskQuery) Build(window *leaderboard.DateRange) ScopeQuery {
	var p placeholders
	var b strings.Builder

	b.WriteString(`SELECT us.user_id AS user_id,
       SUM(s.xp)::int8 AS xp,
       MAX(us.solved_timestamp) AS last_update
FROM challenges_user_subtasks us
JOIN challenges_subtasks s ON s.id = us.subtask_id
WHERE us.solved_timestamp IS NOT NULL
  AND s.task_id = `)
	b.WriteString(p.next(q.TaskID))

	if window != nil {
		b.WriteString("\n  AND ")
		b.WriteString(p.windowPredicate("us.solved_timestamp", window))
	}

	b.WriteString("\nGROUP BY us.user_id")

	return ScopeQuery{SQL: b.String(), Args: p.args}
}

// ─────────────────────────────────────────────────────────────────────────────
// LANGUAGE SCOPE
// ─────────────────────────────────────────────────────────────────────────────

// verdictOK is the accepted verdict of a coding challenge result.
const verdictOK = "OK"

// LanguageQuery ranks users by the XP of subtasks they solved with an accepted
// submission in one environment. A subtask counts once per user no matter
// how many accepted submissions exist.
type LanguageQuery struct {
	Language string
}

// Build implements QueryBuilder.
func (q LanguageQuery) Build(window *leaderboard.DateRange) ScopeQuery {
	var p placeholders
	var b strings.Builder

	b.WriteString(`SELECT x.user_id AS user_id,
       SUM(s.xp)::int8 AS xp,
       MAX(x.last_update) AS last_update
FROM (
    SELECT sub.creator AS user_id,
           sub.subtask_id AS subtask_id,
           MAX(sub.creation_timestamp) AS last_update
    FROM challenges_coding_challenge_result r
    JOIN challenges_coding_challenge_submissions sub ON sub.id = r.submission_id
    JOIN challenges_subtasks st ON st.id = sub.subtask_id
    WHERE sub.environment = `)
	b.WriteString(p.next(q.Language))
	b.WriteString("\n      AND r.verdict::text = ")
	b.WriteString(p.next(verdictOK))

	if window != nil {
		b.WriteString("\n      AND ")
		b.WriteString(p.windowPredicate("sub.creation_timestamp", window))
	}

	b.WriteString(`
    GROUP BY sub.creator, sub.subtask_id
) x
JOIN challenges_subtasks s ON s.id = x.subtask_id
GROUP BY x.user_id`)

	return ScopeQuery{SQL: b.String(), Args: p.args}
}

// ─────────────────────────────────────────────────────────────────────────────
// RANKING WRAPPERS
// ─────────────────────────────────────────────────────────────────────────────

// rankOrder is the single ordering policy of every local leaderboard.
const rankOrder = "ORDER BY xp DESC, last_update ASC, user_id ASC"

// topSQL wraps base with ranking and pagination. Ranks are computed over the
// whole base population before LIMIT/OFFSET apply.
func topSQL(base ScopeQuery, page leaderboard.Page) ScopeQuery {
	p := placeholders{args: append([]any(nil), base.Args...)}
	limit := p.next(clampInt64(page.Limit))
	offset := p.next(clampInt64(page.Offset))

	sql := "WITH base AS (\n" + base.SQL + "\n)\n" +
		"SELECT user_id, xp, ROW_NUMBER() OVER (" + rankOrder + ") AS rank\n" +
		"FROM base\n" +
		rankOrder + "\n" +
		"LIMIT " + limit + " OFFSET " + offset

	return ScopeQuery{SQL: sql, Args: p.args}
}

// clampInt64 keeps huge offsets positive: BIGINT is the widest OFFSET accepted.
func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// countSQL counts the participants of base.
func countSQL(base ScopeQuery) ScopeQuery {
	return ScopeQuery{
		SQL:  "SELECT COUNT(*) FROM (\n" + base.SQL + "\n) base",
		Args: base.Args,
	}
}

// userRankSQL selects one participant's xp and rank from the full ranking.
func userRankSQL(base ScopeQuery, userID uuid.UUID) ScopeQuery {
	p := placeholders{args: append([]any(nil), base.Args...)}
	user := p.next(userID)

	sql := "WITH base AS (\n" + base.SQL + "\n),\n" +
		"ranked AS (\n" +
		"    SELECT user_id, xp, ROW_NUMBER() OVER (" + rankOrder + ") AS rank\n" +
		"    FROM base\n" +
		")\n" +
		"SELECT xp, rank FROM ranked WHERE user_id = " + user

	return ScopeQuery{SQL: sql, Args: p.args}
}
