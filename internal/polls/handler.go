package polls

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/livepoll/backend/internal/clock"
	"github.com/livepoll/backend/internal/middleware"
	"github.com/livepoll/backend/internal/models"
	"github.com/livepoll/backend/pkg/response"
)

// VoteRequest is the body for POST /polls/:id/votes.
type VoteRequest struct {
	OptionID string `json:"option_id" binding:"required"`
}

// PollView is the response for GET /poll.
type PollView struct {
	Poll          RankedResults        `json:"poll"`
	Session       models.VotingSession `json:"session"`
	TimeRemaining string               `json:"time_remaining"`
	ShareURL      string               `json:"share_url,omitempty"`
}

// VoteResponse is the response for an accepted vote.
type VoteResponse struct {
	Results RankedResults        `json:"results"`
	Session models.VotingSession `json:"session"`
}

// Handler handles poll HTTP endpoints.
type Handler struct {
	engine   *Engine
	clock    clock.Clock
	shareURL string
	logger   *zap.Logger
}

// NewHandler creates a polls handler.
func NewHandler(engine *Engine, c clock.Clock, shareURL string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, clock: c, shareURL: shareURL, logger: logger}
}

// Get handles GET /poll: current results plus the caller's session.
func (h *Handler) Get(c *gin.Context) {
	session, err := h.engine.LoadSession(c.Request.Context(), middleware.VoterID(c), h.engine.PollID())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, PollView{
		Poll:          h.engine.Results(),
		Session:       session,
		TimeRemaining: h.timeRemaining(),
		ShareURL:      h.shareURL,
	})
}

// Results handles GET /polls/:id/results.
func (h *Handler) Results(c *gin.Context) {
	if c.Param("id") != h.engine.PollID() {
		h.fail(c, ErrPollNotFound)
		return
	}
	response.OK(c, h.engine.Results())
}

// Vote handles POST /polls/:id/votes.
func (h *Handler) Vote(c *gin.Context) {
	pollID := c.Param("id")
	if pollID != h.engine.PollID() {
		h.fail(c, ErrPollNotFound)
		return
	}

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	session, err := h.engine.LoadSession(c.Request.Context(), middleware.VoterID(c), pollID)
	if err != nil {
		h.fail(c, err)
		return
	}
	snap, err := h.engine.SubmitVote(c.Request.Context(), &session, pollID, req.OptionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, VoteResponse{Results: ComputeResults(snap), Session: session})
}

// Close handles POST /polls/:id/close (administrator).
func (h *Handler) Close(c *gin.Context) {
	if c.Param("id") != h.engine.PollID() {
		h.fail(c, ErrPollNotFound)
		return
	}
	justClosed := h.engine.Close()
	response.OK(c, gin.H{"id": h.engine.PollID(), "closed": true, "just_closed": justClosed})
}

// State returns the realtime event and payload describing the poll right now.
func (h *Handler) State() (string, interface{}) {
	results := h.engine.Results()
	if !results.IsActive {
		return EventClosed, results
	}
	return EventResults, results
}

func (h *Handler) timeRemaining() string {
	if !h.engine.IsActive() {
		return EndedLabel
	}
	return FormatRemaining(h.engine.Remaining(h.clock.Now()))
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := ErrorCode(err)
	switch {
	case errors.Is(err, ErrAlreadyVoted):
		response.Fail(c, http.StatusConflict, code, "you have already voted in this poll")
	case errors.Is(err, ErrPollClosed):
		response.Fail(c, http.StatusConflict, code, "this poll is closed")
	case errors.Is(err, ErrUnknownOption):
		response.Fail(c, http.StatusBadRequest, code, "your vote could not be recorded")
	case errors.Is(err, ErrPollNotFound):
		response.Fail(c, http.StatusNotFound, code, "poll not found")
	case errors.Is(err, ErrNoIdentity):
		response.Fail(c, http.StatusUnauthorized, code, "missing voter identity")
	case errors.Is(err, ErrPersistence):
		c.Header("Retry-After", "1")
		response.Fail(c, http.StatusServiceUnavailable, code, "vote storage unavailable, try again")
	default:
		h.logger.Error("unexpected poll error", zap.Error(err))
		response.Internal(c, "internal error")
	}
}
