package skills

import (
	"github.com/google/uuid"

	"github.com/alem-hub/challenges-leaderboard/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD DTOs
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardDTO is the body of GET /leaderboard.
type LeaderboardDTO struct {
	Leaderboard []LeaderboardUserDTO `json:"leaderboard"`
	Total       uint64               `json:"total"`
}

// LeaderboardUserDTO is one row of the skills leaderboard.
type LeaderboardUserDTO struct {
	User uuid.UUID `json:"user"`
	XP   uint64    `json:"xp"`
	Rank uint64    `json:"rank"`
}

// RankDTO is the body of GET /leaderboard/{user}.
type RankDTO struct {
	XP   uint64 `json:"xp"`
	Rank uint64 `json:"rank"`
}

// APIErrorDTO is the error body some skills endpoints return.
type APIErrorDTO struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// RawEntries converts the upstream rows, preserving their order.
func (d *LeaderboardDTO) RawEntries() []leaderboard.RawEntry {
	out := make([]leaderboard.RawEntry, len(d.Leaderboard))
	for i, row := range d.Leaderboard {
		out[i] = leaderboard.RawEntry{UserID: row.User, XP: row.XP, Rank: row.Rank}
	}
	return out
}

// ToDomain converts the rank body.
func (d *RankDTO) ToDomain() *leaderboard.Rank {
	return &leaderboard.Rank{XP: d.XP, Rank: d.Rank}
}
