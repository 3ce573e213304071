// Package badgerstore keeps index snapshots in an embedded BadgerDB.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

const keyPrefix = "snapshot/"

// loggerAdapter routes badger's printf-style logging through slog.
type loggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*loggerAdapter)(nil)

func (l *loggerAdapter) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *loggerAdapter) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens (or creates) the database at path; an empty path keeps
// everything in memory. ttl > 0 expires snapshots that are not rewritten.
func Open(path string, ttl time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &loggerAdapter{logger: logger.With("component", "badger")}
	opts.Compression = options.ZSTD

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(_ context.Context, fingerprint string, data []byte) error {
	if fingerprint == "" {
		return domain.WrapError(domain.ErrInvalidInput, "save snapshot", errors.New("empty fingerprint"))
	}
	err := s.db.Update(func(tx *badger.Txn) error {
		entry := badger.NewEntry([]byte(keyPrefix+fingerprint), data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return tx.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", fingerprint, err)
	}
	return nil
}

func (s *Store) Load(_ context.Context, fingerprint string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(keyPrefix + fingerprint))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.WrapError(domain.ErrSnapshotNotFound, "load snapshot", err)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", fingerprint, err)
	}
	return data, nil
}

// Fingerprints lists stored snapshot keys.
func (s *Store) Fingerprints() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			out = append(out, string(iter.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	return out, err
}
