package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/aungmyo/thazin/internal/cache"
)

// How long a dislike stays rewindable.
const rewindTTL = 24 * time.Hour

// CandidateSource refills an empty queue with ranked candidate ids.
// ProfileRepository.RankedCandidates satisfies it.
type CandidateSource interface {
	CandidateIDs(ctx context.Context, viewerID uint64, limit int) ([]uint64, error)
}

// DiscoveryQueue is the per-viewer ordered list of not-yet-shown candidate
// ids, kept in Redis. It is a best-effort derived view: the relational store
// stays the source of truth, and a flushed cache simply triggers a refill on
// the next pop. Entries have no TTL and persist until popped or cleared.
type DiscoveryQueue struct {
	cache       *cache.RedisCache
	source      CandidateSource
	refillLimit int
}

// NewDiscoveryQueue wires the queue to its cache and refill source.
func NewDiscoveryQueue(c *cache.RedisCache, source CandidateSource, refillLimit int) *DiscoveryQueue {
	if refillLimit <= 0 {
		refillLimit = 80
	}
	return &DiscoveryQueue{cache: c, source: source, refillLimit: refillLimit}
}

// Next pops the head of the viewer's queue. On an empty queue it refills from
// the candidate source (bulk enqueue at the tail) and pops again; (0, false)
// means no candidates exist at all.
//
// No lock is held across the cache round trips. Two viewers may be offered the
// same candidate concurrently, and a candidate deleted after the pop is the
// caller's problem (it re-requests Next).
func (q *DiscoveryQueue) Next(ctx context.Context, viewerID uint64) (uint64, bool, error) {
	key := q.cache.KeyForQueue(viewerID)

	id, ok, err := q.cache.PopHead(ctx, key)
	if err != nil || ok {
		return id, ok, err
	}

	ids, err := q.source.CandidateIDs(ctx, viewerID, q.refillLimit)
	if err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	if err := q.cache.PushTail(ctx, key, ids...); err != nil {
		return 0, false, err
	}

	return q.cache.PopHead(ctx, key)
}

// PushFront inserts ids at the head, preserving input order as the new
// head-to-tail sequence. Used by rewind so the restored candidate shows next.
func (q *DiscoveryQueue) PushFront(ctx context.Context, viewerID uint64, ids ...uint64) error {
	return q.cache.PushHead(ctx, q.cache.KeyForQueue(viewerID), ids...)
}

// PushMany inserts candidateID at the head of every listed viewer's queue.
// The fan-out is pipelined but not atomic across viewers; partial delivery on
// failure is acceptable and not retried. Returns the delivered count.
func (q *DiscoveryQueue) PushMany(ctx context.Context, viewerIDs []uint64, candidateID uint64) (int, error) {
	keys := make([]string, 0, len(viewerIDs))
	for _, viewerID := range viewerIDs {
		keys = append(keys, q.cache.KeyForQueue(viewerID))
	}
	return q.cache.FanOutHead(ctx, keys, candidateID)
}

// Clear drops the viewer's entire queue. Called whenever ranking inputs change
// (profile edit, relocation, account deletion): stale entries could violate
// freshly changed eligibility.
func (q *DiscoveryQueue) Clear(ctx context.Context, viewerID uint64) error {
	return q.cache.Del(ctx, q.cache.KeyForQueue(viewerID))
}

// SetLastDisliked overwrites the viewer's rewind slot with a 24h expiry.
func (q *DiscoveryQueue) SetLastDisliked(ctx context.Context, userID, targetID uint64) error {
	return q.cache.Set(ctx, q.cache.KeyForRewind(userID), strconv.FormatUint(targetID, 10), rewindTTL)
}

// PopLastDisliked atomically reads and clears the rewind slot.
// Returns (0, false, nil) when the slot is absent or expired.
func (q *DiscoveryQueue) PopLastDisliked(ctx context.Context, userID uint64) (uint64, bool, error) {
	val, ok, err := q.cache.GetDel(ctx, q.cache.KeyForRewind(userID))
	if err != nil || !ok {
		return 0, false, err
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		// corrupt slot, treat as absent
		return 0, false, nil
	}
	return id, true, nil
}

// ClearRewind drops the rewind slot without reading it (account deletion).
func (q *DiscoveryQueue) ClearRewind(ctx context.Context, userID uint64) error {
	return q.cache.Del(ctx, q.cache.KeyForRewind(userID))
}
