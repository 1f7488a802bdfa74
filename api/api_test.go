package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NethermindEth/eternalgov/api/handlers"
	"github.com/NethermindEth/eternalgov/chain"
	"github.com/NethermindEth/eternalgov/communication"
	"github.com/NethermindEth/eternalgov/config"
	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/ingest"
	"github.com/NethermindEth/eternalgov/membase"
	"github.com/NethermindEth/eternalgov/memory"
	"github.com/NethermindEth/eternalgov/metrics"
	"github.com/NethermindEth/eternalgov/orchestrator"
	"github.com/NethermindEth/eternalgov/reasoning"
)

func newTestRouter(t *testing.T, voting orchestrator.VotingConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ledger, err := chain.OpenLedger("file::memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	hub := communication.NewHub(zap.NewNop())
	t.Cleanup(hub.Close)

	m := metrics.New()
	store := membase.NewMemoryStore()
	layers := memory.New(store, memory.DefaultBlendAlpha)
	orch := orchestrator.New(store, layers,
		ingest.NewAggregator(time.Second, 4, zap.NewNop()),
		reasoning.NewEngine(reasoning.DefaultConfig(), nil, zap.NewNop()),
		ledger,
		orchestrator.Options{Voting: voting, Broadcaster: hub, Metrics: m})

	sources := func(daos []string) ([]ingest.Source, error) {
		return ingest.SampleSources(daos, time.Now().UTC()), nil
	}
	h := handlers.New(orch, layers, config.DefaultRegistry(), sources, ledger, zap.NewNop())
	return NewRouter(h, hub, m, zap.NewNop())
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func setup(t *testing.T, r http.Handler) {
	t.Helper()
	require.Equal(t, http.StatusOK, do(t, r, "POST", "/api/identity", nil).Code)
	rec := do(t, r, "POST", "/api/ingest", map[string][]string{"daos": {"uniswap", "aave"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rep orchestrator.IngestReport
	decode(t, rec, &rep)
	require.Equal(t, 4, rep.Proposals)
}

func TestStatusAndIdentity(t *testing.T) {
	r := newTestRouter(t, orchestrator.VotingConfig{})

	var st orchestrator.Status
	decode(t, do(t, r, "GET", "/api/status", nil), &st)
	assert.Equal(t, orchestrator.StateUninitialized, st.State)

	rec := do(t, r, "POST", "/api/ingest", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, http.StatusConflict, do(t, r, "GET", "/api/identity", nil).Code)

	rec = do(t, r, "POST", "/api/identity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var agent core.Agent
	decode(t, rec, &agent)
	assert.NotEmpty(t, agent.TxHash)

	var identity struct {
		Agent        core.Agent     `json:"agent"`
		Registration chain.Delegate `json:"registration"`
	}
	rec = do(t, r, "GET", "/api/identity", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &identity)
	assert.Equal(t, agent.ID, identity.Registration.AgentID)
	assert.Equal(t, agent.TxHash, identity.Registration.TxHash)

	decode(t, do(t, r, "GET", "/api/status", nil), &st)
	assert.Equal(t, orchestrator.StateIdentityRegistered, st.State)
}

func TestProposalEndpoints(t *testing.T) {
	r := newTestRouter(t, orchestrator.VotingConfig{})
	setup(t, r)

	var proposals []core.Proposal
	decode(t, do(t, r, "GET", "/api/proposals?dao=uniswap", nil), &proposals)
	assert.Len(t, proposals, 2)

	decode(t, do(t, r, "GET", "/api/proposals/search?q=liquidity+incentives", nil), &proposals)
	require.NotEmpty(t, proposals)
	assert.Equal(t, "UNI-1", proposals[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(t, r, "GET", "/api/proposals/search", nil).Code)

	var detail struct {
		Proposal core.Proposal `json:"proposal"`
		Label    string        `json:"label"`
		Trend    []float64     `json:"trend"`
	}
	rec := do(t, r, "GET", "/api/proposals/uniswap/UNI-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &detail)
	assert.Equal(t, "UNI-1", detail.Proposal.ID)
	assert.Len(t, detail.Trend, 2)

	assert.Equal(t, http.StatusNotFound, do(t, r, "GET", "/api/proposals/uniswap/UNI-404", nil).Code)

	var daos []config.DAO
	decode(t, do(t, r, "GET", "/api/daos", nil), &daos)
	assert.Len(t, daos, 4)

	rec = do(t, r, "POST", "/api/ingest", map[string][]string{"daos": {"nouns"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeReportVoteOutcome(t *testing.T) {
	r := newTestRouter(t, orchestrator.VotingConfig{})
	setup(t, r)

	assert.Equal(t, http.StatusNotFound, do(t, r, "GET", "/api/proposals/uniswap/UNI-1/report", nil).Code)

	rec := do(t, r, "POST", "/api/proposals/uniswap/UNI-1/analyze", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var a orchestrator.Analysis
	decode(t, rec, &a)
	assert.Equal(t, "For", a.Recommendation.RecommendedChoice)

	var patterns reasoning.Patterns
	decode(t, do(t, r, "GET", "/api/patterns", nil), &patterns)
	assert.Equal(t, 1, patterns.Decisions)
	assert.Equal(t, "For", patterns.MostCommonChoice)

	rec = do(t, r, "GET", "/api/proposals/uniswap/UNI-1/report?format=markdown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "## Proposal UNI-1 (uniswap)")

	rec = do(t, r, "POST", "/api/proposals/uniswap/UNI-1/vote", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, r, "POST", "/api/proposals/uniswap/UNI-1/outcome", map[string]interface{}{"actual_choice": "Maybe", "passed": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, "POST", "/api/proposals/uniswap/UNI-1/outcome", map[string]interface{}{"actual_choice": "For", "passed": true, "participation_rate": 0.42})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out core.OutcomeRecord
	decode(t, rec, &out)
	assert.True(t, out.Correct)

	rec = do(t, r, "POST", "/api/proposals/uniswap/UNI-1/outcome", map[string]interface{}{"actual_choice": "For", "passed": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusBadRequest, do(t, r, "POST", "/api/proposals/uniswap/UNI-2/outcome", map[string]interface{}{}).Code)

	var profiles []core.PreferenceProfile
	decode(t, do(t, r, "GET", "/api/daos/uniswap/preferences", nil), &profiles)
	assert.Len(t, profiles, 1)

	var acc struct {
		Accuracy      core.Accuracy `json:"accuracy"`
		PassRate      float64       `json:"pass_rate"`
		Participation float64       `json:"participation"`
	}
	decode(t, do(t, r, "GET", "/api/daos/uniswap/accuracy", nil), &acc)
	assert.Equal(t, 1, acc.Accuracy.Samples)
	assert.Equal(t, 1.0, acc.PassRate)
	assert.InDelta(t, 0.42, acc.Participation, 1e-9)
}

func TestAutonomousVote(t *testing.T) {
	r := newTestRouter(t, orchestrator.VotingConfig{Autonomous: true, ConfidenceThreshold: 0.4})
	setup(t, r)

	require.Equal(t, http.StatusOK, do(t, r, "POST", "/api/proposals/aave/AAVE-1/analyze", nil).Code)

	rec := do(t, r, "POST", "/api/proposals/aave/AAVE-1/vote", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var receipt core.VoteReceipt
	decode(t, rec, &receipt)

	var votes []chain.VoteEntry
	decode(t, do(t, r, "GET", "/api/votes?dao=aave", nil), &votes)
	require.Len(t, votes, 1)
	assert.Equal(t, receipt.TxHash, votes[0].TxHash)

	var receipts []core.VoteReceipt
	decode(t, do(t, r, "GET", "/api/receipts", nil), &receipts)
	require.Len(t, receipts, 1)
	assert.Equal(t, receipt.TxHash, receipts[0].TxHash)

	decode(t, do(t, r, "GET", "/api/receipts?dao=uniswap", nil), &receipts)
	assert.Empty(t, receipts)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, orchestrator.VotingConfig{})
	setup(t, r)

	rec := do(t, r, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "eternalgov_ingest_runs_total")
}
