package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/NethermindEth/eternalgov/ai"
	"github.com/NethermindEth/eternalgov/api"
	"github.com/NethermindEth/eternalgov/api/handlers"
	"github.com/NethermindEth/eternalgov/chain"
	"github.com/NethermindEth/eternalgov/communication"
	"github.com/NethermindEth/eternalgov/config"
	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/crypto"
	"github.com/NethermindEth/eternalgov/ingest"
	"github.com/NethermindEth/eternalgov/membase"
	"github.com/NethermindEth/eternalgov/memory"
	"github.com/NethermindEth/eternalgov/metrics"
	"github.com/NethermindEth/eternalgov/orchestrator"
	"github.com/NethermindEth/eternalgov/reasoning"
	"github.com/NethermindEth/eternalgov/storage"
)

// Node wires every component of the delegate from a configuration
type Node struct {
	cfg    *config.Config
	logger *zap.Logger

	db     *storage.DBStorage
	broker *core.NATSBroker

	Store        membase.Store
	Layers       *memory.Layers
	Ledger       *chain.LedgerClient
	Engine       *reasoning.Engine
	Orchestrator *orchestrator.Orchestrator
	Hub          *communication.Hub
	Metrics      *metrics.Metrics
}

func NewNode(cfg *config.Config, logger *zap.Logger) (_ *Node, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Node{cfg: cfg, logger: logger, Metrics: metrics.New()}
	defer func() {
		if err != nil {
			n.Stop()
		}
	}()

	persistent := cfg.Storage.Backend == "badger"
	if persistent {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	var publisher core.Publisher
	if cfg.NATS.URL != "" {
		n.broker, err = core.NewNATSBroker(cfg.NATS.URL, logger)
		if err != nil {
			return nil, err
		}
		publisher = n.broker
	}

	var store membase.Store
	if persistent {
		n.db, err = storage.Open(storage.DefaultConfig(cfg.DataDir), "membase", logger)
		if err != nil {
			return nil, err
		}
		if err = n.Metrics.WatchStorage("membase", n.db); err != nil {
			return nil, err
		}
		store = membase.NewBadgerStore(n.db)
	} else {
		store = membase.NewMemoryStore()
	}
	store = membase.WithRetry(store, cfg.Storage.Retries, cfg.Storage.RetryDelay, logger)
	if publisher != nil {
		store = membase.WithNotifications(store, publisher, logger)
	}
	n.Store = store
	n.Layers = memory.New(store, cfg.Reasoning.BlendAlpha)

	n.Ledger, err = chain.OpenLedger(cfg.LedgerDSN(), logger)
	if err != nil {
		return nil, err
	}

	var advisor reasoning.Advisor
	if cfg.LLM.Enabled {
		client, err := ai.NewClient(cfg.LLM.APIKey, ai.LLMConfig{
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			BaseURL:     cfg.LLM.BaseURL,
			JSONMode:    true,
		}, logger)
		if err != nil {
			return nil, err
		}
		advisor = reasoning.NewLLMAdvisor(client, logger)
	}
	n.Engine = reasoning.NewEngine(cfg.EngineConfig(), advisor, logger)

	agent, key, err := n.identity()
	if err != nil {
		return nil, err
	}

	var receipts orchestrator.ReceiptStore
	if n.db != nil {
		receipts = storage.NewVoteRepository(n.db)
	}

	n.Hub = communication.NewHub(logger)
	n.Orchestrator = orchestrator.New(store, n.Layers,
		ingest.NewAggregator(cfg.Ingest.Timeout, cfg.Ingest.Concurrency, logger),
		n.Engine,
		n.Ledger,
		orchestrator.Options{
			Agent:          agent,
			PrivateKey:     key,
			Voting:         cfg.Voting,
			AccuracyWindow: cfg.Reasoning.AccuracyWindow,
			Publisher:      publisher,
			Broadcaster:    n.Hub,
			Receipts:       receipts,
			Metrics:        n.Metrics,
			Logger:         logger,
		})
	return n, nil
}

type identityFile struct {
	ID         string `json:"id"`
	PrivateKey string `json:"private_key"`
}

// identity returns the configured agent identity. Without a configured key a
// persistent node loads or creates one in the data directory.
func (n *Node) identity() (core.Agent, string, error) {
	agent := core.Agent{ID: n.cfg.Agent.ID, Name: n.cfg.Agent.Name, MembaseID: n.cfg.Agent.MembaseID}
	key := n.cfg.Agent.PrivateKey
	if key != "" || n.cfg.Storage.Backend != "badger" {
		return agent, key, nil
	}

	path := filepath.Join(n.cfg.DataDir, "delegate_key.json")
	var id identityFile
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &id); err != nil {
			return agent, "", fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		_, priv := crypto.GenerateKeyPair()
		id = identityFile{ID: agent.ID, PrivateKey: priv}
		if id.ID == "" {
			id.ID = uuid.NewString()
		}
		data, err := json.MarshalIndent(id, "", "  ")
		if err != nil {
			return agent, "", err
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return agent, "", fmt.Errorf("failed to write %s: %w", path, err)
		}
		n.logger.Info("generated delegate key", zap.String("path", path))
	default:
		return agent, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if agent.ID == "" {
		agent.ID = id.ID
	}
	return agent, id.PrivateKey, nil
}

// Sources builds the ingestion sources for the given DAOs
func (n *Node) Sources(daos []string) ([]ingest.Source, error) {
	var sources []ingest.Source
	for _, path := range n.cfg.Ingest.Files {
		sources = append(sources, ingest.NewFileSource("", path))
	}
	if n.cfg.Ingest.Samples {
		sources = append(sources, ingest.SampleSources(daos, time.Now().UTC())...)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no ingestion sources configured")
	}
	return sources, nil
}

// Bootstrap registers the identity and runs a first ingestion over every DAO
func (n *Node) Bootstrap(ctx context.Context) error {
	if _, err := n.Orchestrator.RegisterIdentity(ctx); err != nil {
		return err
	}
	sources, err := n.Sources(n.cfg.DAOs.Names())
	if err != nil {
		return err
	}
	_, err = n.Orchestrator.Ingest(ctx, sources)
	return err
}

func (n *Node) Router() *gin.Engine {
	h := handlers.New(n.Orchestrator, n.Layers, n.cfg.DAOs, n.Sources, n.Ledger, n.logger)
	return api.NewRouter(h, n.Hub, n.Metrics, n.logger)
}

// Serve runs the API server until ctx is cancelled
func (n *Node) Serve(ctx context.Context) error {
	return api.NewServer(n.cfg.API.Addr, n.Router(), n.logger).Run(ctx)
}

// Stop releases every resource the node opened
func (n *Node) Stop() error {
	var result *multierror.Error
	if n.Hub != nil {
		n.Hub.Close()
	}
	if n.broker != nil {
		n.broker.Close()
	}
	if n.Ledger != nil {
		if err := n.Ledger.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
