package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnknownOption is returned when an option ID does not belong to the poll.
	ErrUnknownOption = errors.New("unknown option")
	// ErrInvalidPoll is returned by NewPoll for malformed definitions.
	ErrInvalidPoll = errors.New("invalid poll definition")
)

// PollOption is one choice of a poll. Votes only ever grows.
type PollOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

// Poll is the in-memory aggregate for one poll. It is not safe for concurrent use;
// the voting engine serializes access to it.
type Poll struct {
	ID         string
	Question   string
	Options    []PollOption // display order
	TotalVotes int
	IsActive   bool
	EndTime    time.Time
	CreatedAt  time.Time
}

// NewPoll builds an open poll. Option IDs are assigned opt1..optN in the given order.
func NewPoll(id, question string, optionTexts []string, createdAt, endTime time.Time) (*Poll, error) {
	id = strings.TrimSpace(id)
	question = strings.TrimSpace(question)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidPoll)
	}
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", ErrInvalidPoll)
	}
	if len(optionTexts) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 options, got %d", ErrInvalidPoll, len(optionTexts))
	}
	if !endTime.After(createdAt) {
		return nil, fmt.Errorf("%w: end time must be after creation", ErrInvalidPoll)
	}

	options := make([]PollOption, 0, len(optionTexts))
	for i, text := range optionTexts {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, fmt.Errorf("%w: option %d has no text", ErrInvalidPoll, i+1)
		}
		options = append(options, PollOption{ID: fmt.Sprintf("opt%d", i+1), Text: text})
	}

	return &Poll{
		ID:        id,
		Question:  question,
		Options:   options,
		IsActive:  true,
		EndTime:   endTime,
		CreatedAt: createdAt,
	}, nil
}

// HasOption reports whether optionID belongs to the poll.
func (p *Poll) HasOption(optionID string) bool {
	return p.optionIndex(optionID) >= 0
}

// RecordVote adds one vote to optionID and to the total. It performs no idempotence
// or activation checks.
func (p *Poll) RecordVote(optionID string) error {
	i := p.optionIndex(optionID)
	if i < 0 {
		return ErrUnknownOption
	}
	p.Options[i].Votes++
	p.TotalVotes++
	return nil
}

// Close marks the poll inactive. It reports whether this call performed the transition.
func (p *Poll) Close() bool {
	if !p.IsActive {
		return false
	}
	p.IsActive = false
	return true
}

// Snapshot copies the poll into a value that is safe to hand out.
func (p *Poll) Snapshot() PollSnapshot {
	options := make([]PollOption, len(p.Options))
	copy(options, p.Options)
	return PollSnapshot{
		ID:         p.ID,
		Question:   p.Question,
		Options:    options,
		TotalVotes: p.TotalVotes,
		IsActive:   p.IsActive,
		EndTime:    p.EndTime,
	}
}

func (p *Poll) optionIndex(optionID string) int {
	for i := range p.Options {
		if p.Options[i].ID == optionID {
			return i
		}
	}
	return -1
}

// PollSnapshot is a read-only view of a poll.
type PollSnapshot struct {
	ID         string       `json:"id"`
	Question   string       `json:"question"`
	Options    []PollOption `json:"options"`
	TotalVotes int          `json:"total_votes"`
	IsActive   bool         `json:"is_active"`
	EndTime    time.Time    `json:"end_time"`
}

// VoteRecord is what the ledger stores for one (identity, poll) pair.
type VoteRecord struct {
	PollID   string    `json:"poll_id"`
	OptionID string    `json:"option_id"`
	VotedAt  time.Time `json:"voted_at"`
}

// VotingSession is a visitor's view of their own participation in a poll.
type VotingSession struct {
	Identity string `json:"identity"`
	PollID   string `json:"poll_id"`
	HasVoted bool   `json:"has_voted"`
	OptionID string `json:"option_id,omitempty"`
}
