package blobstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrAlreadyCommitted is returned by CommitLog.Commit for a key that is
// already recorded.
var ErrAlreadyCommitted = errors.New("already committed")

// CommitLog records completed units of work by key.
type CommitLog interface {
	// Commit records key. It fails with ErrAlreadyCommitted if key exists.
	Commit(ctx context.Context, key string) error
	// Committed reports whether key was recorded.
	Committed(ctx context.Context, key string) (bool, error)
	// Keys returns all recorded keys in sorted order.
	Keys(ctx context.Context) ([]string, error)
}

var _ CommitLog = (*BlobCommitLog)(nil)

// BlobCommitLog stores one marker blob per key under a prefix.
type BlobCommitLog struct {
	store  BlobStore
	prefix string
}

// NewBlobCommitLog creates a commit log whose markers are named
// <prefix><key>.done.
func NewBlobCommitLog(store BlobStore, prefix string) *BlobCommitLog {
	return &BlobCommitLog{store: store, prefix: prefix}
}

func (l *BlobCommitLog) marker(key string) string {
	return l.prefix + key + ".done"
}

// Commit writes the marker of key.
func (l *BlobCommitLog) Commit(ctx context.Context, key string) error {
	ok, err := l.Committed(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyCommitted
	}
	return l.store.Put(ctx, l.marker(key), []byte(time.Now().UTC().Format(time.RFC3339Nano)))
}

// Committed reports whether the marker of key exists.
func (l *BlobCommitLog) Committed(ctx context.Context, key string) (bool, error) {
	return Exists(ctx, l.store, l.marker(key))
}

// Keys lists the committed keys.
func (l *BlobCommitLog) Keys(ctx context.Context) ([]string, error) {
	names, err := l.store.List(ctx, l.prefix)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, n := range names {
		if k, ok := strings.CutSuffix(strings.TrimPrefix(n, l.prefix), ".done"); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
