// CLAUDE:SUMMARY Three-tier mark persistence: SQLite cache, extension file store, hub remote, reconciling gateway.
// Package persist is the gateway between a session's mark set and durable
// storage. Three tiers sit behind one contract: a fast local SQLite cache
// (the always-on shadow copy), a size-capped JSON file store standing in for
// the in-extension storage area, and the authoritative hub reached over
// HTTP when the account is signed in.
//
// Nothing here blocks local operation on the network: remote failures are
// logged, queued on the outbox for bounded retry, and the cache serves every
// read in the meantime.
package persist

import (
	"context"
	"errors"

	"github.com/bakharlabs/blurshield/mark"
)

// ErrPersistenceFailed is wrapped by every tier error. Recoverable: the
// cache is the always-available fallback.
var ErrPersistenceFailed = errors.New("persist: persistence failed")

// ErrPayloadTooLarge is returned by the extension store when a mark set
// exceeds its per-identity quota.
var ErrPayloadTooLarge = errors.New("persist: payload exceeds store quota")

// Tier is the storage contract every tier offers: load and save a document
// identity's ordered mark set.
type Tier interface {
	Load(ctx context.Context, identity string) ([]*mark.Mark, error)
	Save(ctx context.Context, identity string, marks []*mark.Mark) error
}

// RemoteTier is the authoritative tier: a Tier that may be signed out, in
// which case the gateway skips it entirely.
type RemoteTier interface {
	Tier
	SignedIn() bool
}
