package polls

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/livepoll/backend/internal/models"
)

// OptionResult is one option annotated with its share of the vote.
type OptionResult struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Votes      int    `json:"votes"`
	Percentage int    `json:"percentage"`
}

// RankedResults is the results view of a poll.
type RankedResults struct {
	PollID     string         `json:"poll_id"`
	Question   string         `json:"question"`
	TotalVotes int            `json:"total_votes"`
	VotesLabel string         `json:"votes_label"`
	IsActive   bool           `json:"is_active"`
	EndTime    time.Time      `json:"end_time"`
	Options    []OptionResult `json:"options"` // declaration order
	Ranking    []OptionResult `json:"ranking"` // most votes first, ties in declaration order
}

// ComputeResults derives percentages and ranking from a snapshot. With no votes every
// option gets 0%.
func ComputeResults(snap models.PollSnapshot) RankedResults {
	options := make([]OptionResult, len(snap.Options))
	for i, o := range snap.Options {
		options[i] = OptionResult{
			ID:         o.ID,
			Text:       o.Text,
			Votes:      o.Votes,
			Percentage: percentage(o.Votes, snap.TotalVotes),
		}
	}

	ranking := make([]OptionResult, len(options))
	copy(ranking, options)
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Votes > ranking[j].Votes
	})

	return RankedResults{
		PollID:     snap.ID,
		Question:   snap.Question,
		TotalVotes: snap.TotalVotes,
		VotesLabel: VotesLabel(snap.TotalVotes),
		IsActive:   snap.IsActive,
		EndTime:    snap.EndTime,
		Options:    options,
		Ranking:    ranking,
	}
}

func percentage(votes, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(votes) / float64(total) * 100))
}

// VotesLabel renders a vote count as "1 vote" or "N votes".
func VotesLabel(n int) string {
	if n == 1 {
		return "1 vote"
	}
	return strconv.Itoa(n) + " votes"
}
