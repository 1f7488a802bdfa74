package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// ErrKeyNotFound is returned by GetObject when the key is absent
var ErrKeyNotFound = errors.New("key not found")

// Storage is the key-value surface used by the repositories built on BadgerDB
type Storage interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error)
	GetByPrefix(prefix string) (map[string][]byte, error)
	Scan(prefix string, fn func(key string, value []byte) error) error
	PutObject(key string, obj interface{}) error
	GetObject(key string, obj interface{}) error
	NextSequence(name string) (uint64, error)
	Close() error
}

// DBMetrics counts operations since the database was opened
type DBMetrics struct {
	PutCount         int64
	GetCount         int64
	GetByPrefixCount int64
	Errors           int64
}

// DBStorage represents a persistent storage using BadgerDB
type DBStorage struct {
	db      *badger.DB
	mu      sync.Mutex
	seqs    map[string]*badger.Sequence
	config  BadgerDBConfig
	metrics DBMetrics
	logger  *zap.Logger
	stopGC  chan struct{}
}

// Open creates a BadgerDB storage for one namespace under the data directory
func Open(config BadgerDBConfig, namespace string, logger *zap.Logger) (*DBStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dbPath := ""
	if !config.InMemory {
		dbPath = filepath.Join(config.DataDir, "badgerdb", namespace)
	}
	opts := badger.DefaultOptions(dbPath).
		WithInMemory(config.InMemory).
		WithSyncWrites(config.SyncWrites)
	if config.DisableLogging {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	s := &DBStorage{
		db:     db,
		seqs:   make(map[string]*badger.Sequence),
		config: config,
		logger: logger.With(zap.String("namespace", namespace)),
		stopGC: make(chan struct{}),
	}
	if config.GCInterval > 0 && !config.InMemory {
		go s.startGCRoutine(time.Duration(config.GCInterval) * time.Second)
	}
	return s, nil
}

func (s *DBStorage) startGCRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.RunGC(); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("BadgerDB GC failed", zap.Error(err))
			}
		case <-s.stopGC:
			return
		}
	}
}

func (s *DBStorage) recordMetric(name string) {
	switch name {
	case "put":
		atomic.AddInt64(&s.metrics.PutCount, 1)
	case "get":
		atomic.AddInt64(&s.metrics.GetCount, 1)
	case "prefix":
		atomic.AddInt64(&s.metrics.GetByPrefixCount, 1)
	}
}

func (s *DBStorage) logOperation(op string, key string, err error) error {
	if err != nil {
		s.logger.Error("BadgerDB operation failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
		atomic.AddInt64(&s.metrics.Errors, 1)
	}
	return err
}

// Metrics returns a snapshot of operation counters
func (s *DBStorage) Metrics() DBMetrics {
	return DBMetrics{
		PutCount:         atomic.LoadInt64(&s.metrics.PutCount),
		GetCount:         atomic.LoadInt64(&s.metrics.GetCount),
		GetByPrefixCount: atomic.LoadInt64(&s.metrics.GetByPrefixCount),
		Errors:           atomic.LoadInt64(&s.metrics.Errors),
	}
}

// Close releases sequences and closes the BadgerDB database
func (s *DBStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	close(s.stopGC)
	for name, seq := range s.seqs {
		if err := seq.Release(); err != nil {
			s.logger.Warn("failed to release sequence", zap.String("sequence", name), zap.Error(err))
		}
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Put stores a key-value pair in the database
func (s *DBStorage) Put(key string, value []byte) error {
	s.recordMetric("put")
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	return s.logOperation("put", key, err)
}

// Get retrieves a value from the database by key. A missing key yields a nil value.
func (s *DBStorage) Get(key string) ([]byte, error) {
	s.recordMetric("get")

	var valCopy []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		valCopy, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, s.logOperation("get", key, fmt.Errorf("failed to get value: %w", err))
	}
	return valCopy, nil
}

// Scan visits every key with the given prefix in key order
func (s *DBStorage) Scan(prefix string, fn func(key string, value []byte) error) error {
	s.recordMetric("prefix")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.KeyCopy(nil)), val); err != nil {
				return err
			}
		}
		return nil
	})
	return s.logOperation("scan", prefix, err)
}

// GetByPrefix retrieves all key-value pairs with a given prefix
func (s *DBStorage) GetByPrefix(prefix string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	err := s.Scan(prefix, func(key string, value []byte) error {
		result[key] = value
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get values by prefix: %w", err)
	}
	return result, nil
}

// PutObject serializes and stores an object in the database
func (s *DBStorage) PutObject(key string, obj interface{}) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal object: %w", err)
	}
	return s.Put(key, data)
}

// GetObject retrieves and deserializes an object from the database
func (s *DBStorage) GetObject(key string, obj interface{}) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if err := json.Unmarshal(data, obj); err != nil {
		return fmt.Errorf("failed to unmarshal object: %w", err)
	}
	return nil
}

// NextSequence returns the next value of a named monotonic counter
func (s *DBStorage) NextSequence(name string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.seqs[name]
	if !ok {
		var err error
		seq, err = s.db.GetSequence([]byte("seq:"+name), 100)
		if err != nil {
			return 0, s.logOperation("sequence", name, fmt.Errorf("failed to lease sequence: %w", err))
		}
		s.seqs[name] = seq
	}
	n, err := seq.Next()
	if err != nil {
		return 0, s.logOperation("sequence", name, err)
	}
	return n, nil
}

// RunGC runs garbage collection on the database
func (s *DBStorage) RunGC() error {
	return s.db.RunValueLogGC(0.5)
}
