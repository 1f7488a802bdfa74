package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/crypto"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Delegate is a registered agent identity
type Delegate struct {
	AgentID      string    `json:"agent_id" gorm:"primaryKey"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	PublicKey    string    `json:"public_key"`
	MembaseID    string    `json:"membase_id"`
	Capabilities string    `json:"capabilities"`
	TxHash       string    `json:"tx_hash"`
	RegisteredAt time.Time `json:"registered_at"`
}

// VoteEntry is a vote recorded on the ledger
type VoteEntry struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	AgentID    string    `json:"agent_id" gorm:"uniqueIndex:idx_vote"`
	DAO        string    `json:"dao" gorm:"uniqueIndex:idx_vote;index"`
	ProposalID string    `json:"proposal_id" gorm:"uniqueIndex:idx_vote"`
	Choice     string    `json:"choice"`
	Proof      string    `json:"proof"`
	TxHash     string    `json:"tx_hash" gorm:"index"`
	CastAt     time.Time `json:"cast_at"`
}

// LedgerClient is a local Client backed by sqlite, standing in for the governance contracts
type LedgerClient struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// OpenLedger opens (and migrates) the ledger database at dsn
func OpenLedger(dsn string, logger *zap.Logger) (*LedgerClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access ledger database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Delegate{}, &VoteEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger database: %w", err)
	}
	logger.Info("ledger connected", zap.String("dsn", dsn))
	return &LedgerClient{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (l *LedgerClient) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (l *LedgerClient) txHash(parts ...string) string {
	parts = append(parts, l.now().Format(time.RFC3339Nano))
	return crypto.Keccak256Hex([]byte(strings.Join(parts, "|")))
}

func dbError(op string, err error) error {
	return &core.ExternalServiceError{Service: "ledger", Op: op, Attempts: 1, Err: err}
}

// Register records the agent identity. Registering twice returns the original tx hash.
func (l *LedgerClient) Register(ctx context.Context, agent core.Agent) (string, error) {
	if agent.ID == "" {
		return "", core.NewValidationError("agent", "id", "is required")
	}

	var existing Delegate
	err := l.db.WithContext(ctx).Where("agent_id = ?", agent.ID).First(&existing).Error
	if err == nil {
		return existing.TxHash, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", dbError("register", err)
	}

	d := Delegate{
		AgentID:      agent.ID,
		Name:         agent.Name,
		Address:      agent.Address,
		PublicKey:    agent.PublicKey,
		MembaseID:    agent.MembaseID,
		Capabilities: strings.Join(agent.Capabilities, ","),
		RegisteredAt: l.now(),
	}
	d.TxHash = l.txHash("register", agent.ID, agent.Address)
	if err := l.db.WithContext(ctx).Create(&d).Error; err != nil {
		return "", dbError("register", err)
	}
	l.logger.Info("delegate registered", zap.String("agent", agent.ID), zap.String("tx", d.TxHash))
	return d.TxHash, nil
}

func (l *LedgerClient) IsRegistered(ctx context.Context, agentID string) (bool, error) {
	var count int64
	if err := l.db.WithContext(ctx).Model(&Delegate{}).Where("agent_id = ?", agentID).Count(&count).Error; err != nil {
		return false, dbError("is_registered", err)
	}
	return count > 0, nil
}

// CastVote records a ballot after checking registration and the signature proof
func (l *LedgerClient) CastVote(ctx context.Context, b Ballot) (string, error) {
	var d Delegate
	err := l.db.WithContext(ctx).Where("agent_id = ?", b.AgentID).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotRegistered
	}
	if err != nil {
		return "", dbError("cast_vote", err)
	}
	if d.PublicKey != "" && !crypto.VerifySignature(d.PublicKey, BallotMessage(b.DAO, b.ProposalID, b.Choice), b.Proof) {
		return "", ErrInvalidProof
	}

	dao := strings.ToLower(b.DAO)
	var count int64
	if err := l.db.WithContext(ctx).Model(&VoteEntry{}).
		Where("agent_id = ? AND dao = ? AND proposal_id = ?", b.AgentID, dao, b.ProposalID).
		Count(&count).Error; err != nil {
		return "", dbError("cast_vote", err)
	}
	if count > 0 {
		return "", ErrAlreadyVoted
	}

	entry := VoteEntry{
		AgentID:    b.AgentID,
		DAO:        dao,
		ProposalID: b.ProposalID,
		Choice:     b.Choice,
		Proof:      b.Proof,
		CastAt:     l.now(),
	}
	entry.TxHash = l.txHash("vote", b.AgentID, dao, b.ProposalID, b.Choice)
	if err := l.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return "", dbError("cast_vote", err)
	}
	l.logger.Info("vote recorded",
		zap.String("dao", dao), zap.String("proposal", b.ProposalID),
		zap.String("choice", b.Choice), zap.String("tx", entry.TxHash))
	return entry.TxHash, nil
}

// Votes lists recorded votes, newest first. An empty dao lists every DAO.
func (l *LedgerClient) Votes(ctx context.Context, dao string) ([]VoteEntry, error) {
	var votes []VoteEntry
	query := l.db.WithContext(ctx).Model(&VoteEntry{})
	if dao != "" {
		query = query.Where("dao = ?", strings.ToLower(dao))
	}
	if err := query.Order("cast_at DESC").Order("id DESC").Find(&votes).Error; err != nil {
		return nil, dbError("votes", err)
	}
	return votes, nil
}

// Delegate returns the registration record of an agent
func (l *LedgerClient) Delegate(ctx context.Context, agentID string) (Delegate, error) {
	var d Delegate
	err := l.db.WithContext(ctx).Where("agent_id = ?", agentID).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d, fmt.Errorf("delegate %s: %w", agentID, core.ErrNotFound)
	}
	if err != nil {
		return d, dbError("delegate", err)
	}
	return d, nil
}
