package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/NethermindEth/eternalgov/chain"
	"github.com/NethermindEth/eternalgov/config"
	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/ingest"
	"github.com/NethermindEth/eternalgov/memory"
	"github.com/NethermindEth/eternalgov/orchestrator"
	"github.com/NethermindEth/eternalgov/report"
)

// SourceFactory builds the ingestion sources for a set of DAOs
type SourceFactory func(daos []string) ([]ingest.Source, error)

// LedgerReader reads the delegate registry and votes recorded on chain
type LedgerReader interface {
	Votes(ctx context.Context, dao string) ([]chain.VoteEntry, error)
	Delegate(ctx context.Context, agentID string) (chain.Delegate, error)
}

// Handler serves the delegate's REST API
type Handler struct {
	orch     *orchestrator.Orchestrator
	layers   *memory.Layers
	registry *config.Registry
	sources  SourceFactory
	ledger   LedgerReader
	logger   *zap.Logger
}

func New(orch *orchestrator.Orchestrator, layers *memory.Layers, registry *config.Registry, sources SourceFactory, ledger LedgerReader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = config.DefaultRegistry()
	}
	return &Handler{orch: orch, layers: layers, registry: registry, sources: sources, ledger: ledger, logger: logger}
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	var (
		ext       *core.ExternalServiceError
		reasoning *core.ReasoningInputError
	)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case core.IsValidation(err):
		return http.StatusBadRequest
	case errors.As(err, &reasoning):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrVotingDisabled):
		return http.StatusForbidden
	case errors.Is(err, orchestrator.ErrBelowThreshold),
		errors.Is(err, orchestrator.ErrInvalidState),
		errors.Is(err, orchestrator.ErrIdentityRequired),
		errors.Is(err, chain.ErrAlreadyVoted):
		return http.StatusConflict
	case errors.As(err, &ext):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// GetStatus - Current orchestrator snapshot
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Status())
}

// RegisterIdentity - Registers the delegate identity on chain
func (h *Handler) RegisterIdentity(c *gin.Context) {
	agent, err := h.orch.RegisterIdentity(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// GetIdentity - Delegate identity with its on-chain registration record
func (h *Handler) GetIdentity(c *gin.Context) {
	agent, ok := h.orch.Identity()
	if !ok {
		h.fail(c, orchestrator.ErrIdentityRequired)
		return
	}
	resp := gin.H{"agent": agent}
	if h.ledger != nil {
		d, err := h.ledger.Delegate(c.Request.Context(), agent.ID)
		if err != nil {
			h.fail(c, err)
			return
		}
		resp["registration"] = d
	}
	c.JSON(http.StatusOK, resp)
}

type ingestRequest struct {
	DAOs []string `json:"daos"`
}

// Ingest - Runs one ingestion pass over the configured sources
func (h *Handler) Ingest(c *gin.Context) {
	var req ingestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ingest request"})
			return
		}
	}
	daos := req.DAOs
	if len(daos) == 0 {
		daos = h.registry.Names()
	}
	for _, dao := range daos {
		if _, ok := h.registry.Get(dao); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown DAO " + dao})
			return
		}
	}
	sources, err := h.sources(daos)
	if err != nil {
		h.fail(c, err)
		return
	}
	rep, err := h.orch.Ingest(c.Request.Context(), sources)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ListDAOs - Supported DAOs
func (h *Handler) ListDAOs(c *gin.Context) {
	daos := make([]config.DAO, 0, len(h.registry.DAOs))
	for _, name := range h.registry.Names() {
		dao, _ := h.registry.Get(name)
		daos = append(daos, dao)
	}
	c.JSON(http.StatusOK, daos)
}

// ListProposals - Proposals in memory, filtered by dao, status and category
func (h *Handler) ListProposals(c *gin.Context) {
	seq, err := h.layers.Proposals.Query(c.Request.Context(), memory.ProposalFilter{
		DAO:      c.Query("dao"),
		Status:   core.ProposalStatus(c.Query("status")),
		Category: c.Query("category"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	proposals := []core.Proposal{}
	for p := range seq {
		proposals = append(proposals, p)
	}
	c.JSON(http.StatusOK, proposals)
}

// SearchProposals - Full text search over proposal memory
func (h *Handler) SearchProposals(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter q is required"})
		return
	}
	k, err := strconv.Atoi(c.DefaultQuery("k", "5"))
	if err != nil || k < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid k"})
		return
	}
	proposals, err := h.layers.Proposals.Search(c.Request.Context(), q, k)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, proposals)
}

// GetProposal - Proposal with its sentiment consensus and topics
func (h *Handler) GetProposal(c *gin.Context) {
	ctx := c.Request.Context()
	dao, id := c.Param("dao"), c.Param("id")

	p, err := h.layers.Proposals.Get(ctx, dao, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	consensus, err := h.layers.Sentiment.Consensus(ctx, dao, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	topics, err := h.layers.Sentiment.TopTopics(ctx, dao, id, 5)
	if err != nil {
		h.fail(c, err)
		return
	}
	trend, err := h.layers.Sentiment.Trend(ctx, dao, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if trend == nil {
		trend = []float64{}
	}
	c.JSON(http.StatusOK, gin.H{
		"proposal":  p,
		"sentiment": consensus,
		"label":     consensus.Label(),
		"topics":    topics,
		"trend":     trend,
	})
}

// Analyze - Produces a recommendation and report for a proposal
func (h *Handler) Analyze(c *gin.Context) {
	a, err := h.orch.Analyze(c.Request.Context(), c.Param("dao"), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// GetReport - Latest justification report, as JSON or markdown
func (h *Handler) GetReport(c *gin.Context) {
	a, err := h.orch.Recommendation(c.Request.Context(), c.Param("dao"), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if c.Query("format") == "markdown" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.RenderMarkdown(a.Report)))
		return
	}
	c.JSON(http.StatusOK, a.Report)
}

// CastVote - Casts the recommended vote when autonomous voting is enabled
func (h *Handler) CastVote(c *gin.Context) {
	receipt, err := h.orch.CastVote(c.Request.Context(), c.Param("dao"), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

type outcomeRequest struct {
	ActualChoice      string  `json:"actual_choice" binding:"required"`
	Passed            bool    `json:"passed"`
	ParticipationRate float64 `json:"participation_rate" binding:"gte=0,lte=1"`
}

// RecordOutcome - Records the real result of a proposal
func (h *Handler) RecordOutcome(c *gin.Context) {
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid outcome data"})
		return
	}
	out, err := h.orch.RecordOutcome(c.Request.Context(), c.Param("dao"), c.Param("id"), orchestrator.Outcome{
		ActualChoice:      req.ActualChoice,
		Passed:            req.Passed,
		ParticipationRate: req.ParticipationRate,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetPreferences - Learned community values of a DAO
func (h *Handler) GetPreferences(c *gin.Context) {
	profiles, err := h.layers.Preferences.Profiles(c.Request.Context(), c.Param("dao"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if profiles == nil {
		profiles = []core.PreferenceProfile{}
	}
	c.JSON(http.StatusOK, profiles)
}

// GetAccuracy - Prediction accuracy and pass rate of a DAO
func (h *Handler) GetAccuracy(c *gin.Context) {
	ctx := c.Request.Context()
	dao := c.Param("dao")
	window, err := strconv.Atoi(c.DefaultQuery("window", "20"))
	if err != nil || window < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid window"})
		return
	}
	acc, err := h.layers.Outcomes.Accuracy(ctx, dao, window)
	if err != nil {
		h.fail(c, err)
		return
	}
	rate, n, err := h.layers.Outcomes.PassRate(ctx, dao)
	if err != nil {
		h.fail(c, err)
		return
	}
	participation, err := h.layers.Outcomes.ParticipationAverage(ctx, dao)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accuracy": acc, "pass_rate": rate, "participation": participation, "outcomes": n})
}

// GetPatterns - Decision patterns of the recommendations produced so far
func (h *Handler) GetPatterns(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Patterns())
}

// ListVotes - Votes recorded on chain
func (h *Handler) ListVotes(c *gin.Context) {
	if h.ledger == nil {
		c.JSON(http.StatusOK, []chain.VoteEntry{})
		return
	}
	votes, err := h.ledger.Votes(c.Request.Context(), c.Query("dao"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if votes == nil {
		votes = []chain.VoteEntry{}
	}
	c.JSON(http.StatusOK, votes)
}

// ListReceipts - Votes cast by this delegate, newest first
func (h *Handler) ListReceipts(c *gin.Context) {
	receipts, err := h.orch.Receipts(c.Query("dao"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipts)
}
