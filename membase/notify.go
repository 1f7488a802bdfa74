package membase

import (
	"context"

	"github.com/NethermindEth/eternalgov/core"
	"go.uber.org/zap"
)

// StoredEvent is published after every successful write
type StoredEvent struct {
	Collection string            `json:"collection"`
	ID         string            `json:"id"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// NotifyingStore publishes a membase.stored event for each write
type NotifyingStore struct {
	Store
	pub    core.Publisher
	logger *zap.Logger
}

func WithNotifications(s Store, pub core.Publisher, logger *zap.Logger) *NotifyingStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifyingStore{Store: s, pub: pub, logger: logger}
}

func (n *NotifyingStore) Write(ctx context.Context, collection string, rec Record) (string, error) {
	id, err := n.Store.Write(ctx, collection, rec)
	if err != nil {
		return "", err
	}
	// a lost notification never fails the write
	if err := core.PublishJSON(n.pub, core.SubjectStored, StoredEvent{Collection: collection, ID: id, Tags: rec.Tags}); err != nil {
		n.logger.Warn("failed to publish stored event", zap.String("collection", collection), zap.Error(err))
	}
	return id, nil
}
