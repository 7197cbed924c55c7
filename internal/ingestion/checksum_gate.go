package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/database"
)

type Verdict int

const (
	Changed Verdict = iota
	Unchanged
)

func (v Verdict) String() string {
	if v == Unchanged {
		return "Unchanged"
	}
	return "Changed"
}

// ChecksumGate decides whether a record needs to reach the directory.
type ChecksumGate struct {
	store database.ChecksumStore
	now   func() time.Time
}

func NewChecksumGate(store database.ChecksumStore) *ChecksumGate {
	return &ChecksumGate{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Check compares digest with the stored one without writing anything.
func (g *ChecksumGate) Check(ctx context.Context, key, digest string) (Verdict, error) {
	record, err := g.store.GetChecksum(ctx, key)
	if err != nil {
		if errors.Is(err, database.ErrChecksumNotFound) {
			return Changed, nil
		}
		return Changed, err
	}
	if record.Digest == digest {
		return Unchanged, nil
	}
	return Changed, nil
}

// Commit stores digest as the current content for key.
func (g *ChecksumGate) Commit(ctx context.Context, key, digest string) error {
	return g.store.PutChecksum(ctx, key, digest, g.now())
}

// Seen marks key as present in the current file so retention keeps it.
func (g *ChecksumGate) Seen(ctx context.Context, key string) error {
	return g.store.TouchChecksum(ctx, key, g.now())
}

// CheckAndUpdate runs Check and commits when the content changed.
func (g *ChecksumGate) CheckAndUpdate(ctx context.Context, key, digest string) (Verdict, error) {
	verdict, err := g.Check(ctx, key, digest)
	if err != nil || verdict == Unchanged {
		return verdict, err
	}
	return Changed, g.Commit(ctx, key, digest)
}
