package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/challenges-leaderboard/internal/domain/leaderboard"
	"github.com/alem-hub/challenges-leaderboard/internal/domain/shared"
)

var tracer = otel.Tracer("challenges-leaderboard.postgres")

// ══════════════════════════════════════════════════════════════════════════════
// RANK AGGREGATOR
// ══════════════════════════════════════════════════════════════════════════════

// TxRunner runs fn inside a transaction with the given options.
// *Connection implements it.
type TxRunner interface {
	WithTx(ctx context.Context, opts TxOptions, fn func(Querier) error) error
}

// RankAggregator turns a scope query into ranked pages and single-user ranks.
type RankAggregator struct {
	db TxRunner
}

// NewRankAggregator creates a new RankAggregator.
func NewRankAggregator(db TxRunner) *RankAggregator {
	return &RankAggregator{db: db}
}

// Top returns the page [offset, offset+limit) of the full ranking and the size
// of the population. Both statements read the same snapshot.
func (a *RankAggregator) Top(ctx context.Context, base ScopeQuery, page leaderboard.Page) (*leaderboard.Leaderboard, error) {
	ctx, span := tracer.Start(ctx, "RankAggregator.Top",
		trace.WithAttributes(
			attribute.Int64("page.limit", int64(page.Limit)),
			attribute.Int64("page.offset", int64(page.Offset)),
		),
	)
	defer span.End()

	result := &leaderboard.Leaderboard{Entries: make([]leaderboard.Entry, 0, page.Limit)}

	err := a.db.WithTx(ctx, SnapshotTxOptions(), func(q Querier) error {
		entries, err := queryEntries(ctx, q, topSQL(base, page))
		if err != nil {
			return err
		}
		result.Entries = append(result.Entries, entries...)

		count := countSQL(base)
		var total int64
		if err := q.QueryRow(ctx, count.SQL, count.Args...).Scan(&total); err != nil {
			return fmt.Errorf("failed to count participants: %w", err)
		}
		result.Total = nonNegative(total)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, shared.WrapError("leaderboard", "Top", shared.ErrStore, "rank query failed", err)
	}

	span.SetAttributes(
		attribute.Int("result.entries", len(result.Entries)),
		attribute.Int64("result.total", int64(result.Total)),
	)
	return result, nil
}

// UserRank returns the xp and rank of userID in the full ranking.
// A user with no qualifying activity yields shared.ErrRankNotFound.
func (a *RankAggregator) UserRank(ctx context.Context, base ScopeQuery, userID uuid.UUID) (*leaderboard.Rank, error) {
	ctx, span := tracer.Start(ctx, "RankAggregator.UserRank",
		trace.WithAttributes(attribute.String("user.id", userID.String())),
	)
	defer span.End()

	var rank *leaderboard.Rank
	err := a.db.WithTx(ctx, SnapshotTxOptions(), func(q Querier) error {
		stmt := userRankSQL(base, userID)

		var xp, position int64
		if err := q.QueryRow(ctx, stmt.SQL, stmt.Args...).Scan(&xp, &position); err != nil {
			return err
		}
		rank = &leaderboard.Rank{XP: nonNegative(xp), Rank: nonNegative(position)}
		return nil
	})
	switch {
	case err == nil:
		return rank, nil
	case IsNoRows(err):
		return nil, shared.ErrRankNotFound
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, shared.WrapError("leaderboard", "UserRank", shared.ErrStore, "rank query failed", err)
	}
}

func queryEntries(ctx context.Context, q Querier, stmt ScopeQuery) ([]leaderboard.Entry, error) {
	rows, err := q.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ranking: %w", err)
	}
	defer rows.Close()

	entries := []leaderboard.Entry{}
	for rows.Next() {
		var (
			userID   uuid.UUID
			xp, rank int64
		)
		if err := rows.Scan(&userID, &xp, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan ranking row: %w", err)
		}
		entries = append(entries, leaderboard.Entry{
			UserID: userID,
			XP:     nonNegative(xp),
			Rank:   nonNegative(rank),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ranking: %w", err)
	}

	return entries, nil
}

func nonNegative(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
