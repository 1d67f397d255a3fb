// Package checkpoint keeps a local ledger of persisted offsets in pebble.
//
// The ledger is written before the broker commit. After a restart, offsets at
// or below the ledger value are known to be in cold storage even when the
// broker commit did not happen, and the host skips them.
package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"

	apperrors "github.com/jittakal/kafcoldstore/internal/errors"
	"github.com/jittakal/kafcoldstore/pkg/event"
)

const keyPrefix = "cp/"

// Options configures the ledger.
type Options struct {
	Dir string
	// Sync forces an fsync on every Save.
	Sync bool
}

// Entry is one partition's persisted offset.
type Entry struct {
	Partition event.PartitionID
	Offset    int64
}

// Store is a pebble-backed checkpoint ledger. It is safe for concurrent use.
type Store struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
	logger    *slog.Logger
	mu        sync.Mutex
}

// Open opens or creates the ledger in opts.Dir.
func Open(opts Options, logger *slog.Logger) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("checkpoint: directory is required")
	}

	db, err := pebble.Open(opts.Dir, &pebble.Options{Logger: pebbleLogger{logger}})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint ledger %s: %w", opts.Dir, err)
	}

	writeOpts := pebble.NoSync
	if opts.Sync {
		writeOpts = pebble.Sync
	}

	logger.Info("checkpoint ledger opened", "dir", opts.Dir, "sync", opts.Sync)

	return &Store{db: db, writeOpts: writeOpts, logger: logger}, nil
}

// Save records offset for the partition. Offsets never move backwards: a
// value at or below the stored one is ignored.
func (s *Store) Save(partition event.PartitionID, offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok, err := s.load(partition)
	if err != nil {
		return err
	}
	if ok && current >= offset {
		return nil
	}

	var value [8]byte
	binary.BigEndian.PutUint64(value[:], uint64(offset))
	if err := s.db.Set(key(partition), value[:], s.writeOpts); err != nil {
		return fmt.Errorf("%w: failed to save checkpoint for %s: %w", apperrors.ErrTransientStorage, partition, err)
	}
	return nil
}

// Load returns the stored offset and whether one exists.
func (s *Store) Load(partition event.PartitionID) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(partition)
}

func (s *Store) load(partition event.PartitionID) (int64, bool, error) {
	value, closer, err := s.db.Get(key(partition))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: failed to load checkpoint for %s: %w", apperrors.ErrTransientStorage, partition, err)
	}
	defer closer.Close()

	if len(value) != 8 {
		return 0, false, fmt.Errorf("checkpoint for %s is corrupt: %d bytes", partition, len(value))
	}
	return int64(binary.BigEndian.Uint64(value)), true, nil
}

// List returns every stored checkpoint ordered by topic and partition.
func (s *Store) List() ([]Entry, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: prefixEnd([]byte(keyPrefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate checkpoints: %w", err)
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		partition, err := parseKey(string(iter.Key()))
		if err != nil {
			s.logger.Warn("skipping malformed checkpoint key", "key", string(iter.Key()), "error", err)
			continue
		}
		value := iter.Value()
		if len(value) != 8 {
			s.logger.Warn("skipping corrupt checkpoint", "partition", partition.String(), "bytes", len(value))
			continue
		}
		entries = append(entries, Entry{
			Partition: partition,
			Offset:    int64(binary.BigEndian.Uint64(value)),
		})
	}
	return entries, iter.Error()
}

// Close flushes and closes the ledger.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint ledger: %w", err)
	}
	return nil
}

// key encodes a partition as cp/<topic>/<partition>. Kafka topic names cannot
// contain '/', and the partition is zero padded so keys sort numerically.
func key(partition event.PartitionID) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d", keyPrefix, partition.Topic, partition.Partition))
}

func parseKey(k string) (event.PartitionID, error) {
	rest := strings.TrimPrefix(k, keyPrefix)
	i := strings.LastIndexByte(rest, '/')
	if i <= 0 {
		return event.PartitionID{}, fmt.Errorf("missing partition separator")
	}
	n, err := strconv.ParseInt(rest[i+1:], 10, 32)
	if err != nil {
		return event.PartitionID{}, fmt.Errorf("invalid partition: %w", err)
	}
	return event.PartitionID{Topic: rest[:i], Partition: int32(n)}, nil
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// pebbleLogger routes pebble's internal logging to slog.
type pebbleLogger struct {
	logger *slog.Logger
}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "pebble")
}

func (l pebbleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "pebble")
}

func (l pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "pebble")
	panic(fmt.Sprintf(format, args...))
}
