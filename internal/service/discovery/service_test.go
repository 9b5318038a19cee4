package discovery_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aungmyo/thazin/internal/app"
	"github.com/aungmyo/thazin/internal/cache"
	"github.com/aungmyo/thazin/internal/config"
	"github.com/aungmyo/thazin/internal/db"
	svcErr "github.com/aungmyo/thazin/internal/errors"
	"github.com/aungmyo/thazin/internal/notify"
	"github.com/aungmyo/thazin/internal/service/discovery"
)

//
// Test helpers
//

// captureNotifier records every event instead of delivering it.
type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *captureNotifier) Notify(_ context.Context, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *captureNotifier) byKind(kind notify.Kind) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Event
	for _, e := range n.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// SeedDiscoveryTestData wipes the DB and inserts a minimal, deterministic
// dataset for repeatable service tests.
//
// Dataset:
//   - user1: male seeking female, Yangon, located downtown
//   - user2: female seeking male, Yangon, ~6 km from user1
//   - user3: female seeking both, Mandalay (far bucket)
//   - user4: female seeking male, no photo (incomplete, never surfaced)
func SeedDiscoveryTestData(t *testing.T, gdb *gorm.DB) {
	t.Helper()

	require.NoError(t, gdb.Exec("DELETE FROM actions").Error)
	require.NoError(t, gdb.Exec("DELETE FROM profiles").Error)

	profiles := []db.Profile{
		{UserID: 1, FullName: "Aung", Language: "my", Gender: db.GenderMale, Seeking: db.GenderFemale,
			Age: ptr(27), Bio: "hi", Region: "Yangon", Township: "Kyauktada", PhotoID: "p1",
			Latitude: ptr(16.77), Longitude: ptr(96.15)},
		{UserID: 2, FullName: "Thiri", Language: "my", Gender: db.GenderFemale, Seeking: db.GenderMale,
			Age: ptr(25), Bio: "hey", Region: "Yangon", Township: "Bahan", PhotoID: "p2",
			Latitude: ptr(16.82), Longitude: ptr(96.15)},
		{UserID: 3, FullName: "Su", Language: "my", Gender: db.GenderFemale, Seeking: db.SeekingBoth,
			Age: ptr(24), Bio: "hello", Region: "Mandalay", Township: "Chanayethazan", PhotoID: "p3",
			Latitude: ptr(21.97), Longitude: ptr(96.08)},
		{UserID: 4, FullName: "Moe", Language: "my", Gender: db.GenderFemale, Seeking: db.GenderMale,
			Age: ptr(26), Bio: "yo", Region: "Yangon", Township: "Sanchaung", PhotoID: ""},
	}
	require.NoError(t, gdb.Create(&profiles).Error)
}

// setupService spins up an in-memory SQLite DB, applies migrations, seeds test
// data, starts a miniredis, and wires everything into a discovery Service.
//
// Each test gets its own isolated DB + Redis. The returned miniredis handle is
// used to fast-forward past the per-user throttle between mutating calls.
func setupService(t *testing.T, svcCfg discovery.Config) (*discovery.Service, *captureNotifier, *miniredis.Miniredis, *gorm.DB) {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbase, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, dbase.AutoMigrate(&db.Profile{}, &db.Action{}))
	SeedDiscoveryTestData(t, dbase)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := app.New(dbase, cache.NewRedisCache(cfg), logger)

	notifier := &captureNotifier{}
	return discovery.NewService(appCtx, notifier, svcCfg), notifier, mr, dbase
}

// pastThrottle jumps miniredis clocks beyond the request-spacing window so the
// next mutating call from the same user is not rejected.
func pastThrottle(mr *miniredis.Miniredis) {
	mr.FastForward(2 * time.Second)
}

func grantPremium(t *testing.T, svc *discovery.Service, userID uint64) {
	t.Helper()
	_, err := svc.GrantPremiumDays(context.Background(), userID, 7)
	require.NoError(t, err)
}

//
// Tests
//

func TestNextCandidateRanking(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setupService(t, discovery.Config{})

	// nearby Yangon candidate ranks ahead of the Mandalay one
	c, err := svc.NextCandidate(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, uint64(2), c.UserID)

	c, err = svc.NextCandidate(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, uint64(3), c.UserID)

	// incomplete user4 is never surfaced; unreacted candidates cycle back on
	// the next refill instead of exhausting the pool
	c, err = svc.NextCandidate(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, uint64(2), c.UserID)
}

func TestNextCandidateExhaustedAfterReactions(t *testing.T) {
	ctx := context.Background()
	svc, _, mr, _ := setupService(t, discovery.Config{})

	_, err := svc.React(ctx, 1, 2, db.ActionDislike)
	require.NoError(t, err)
	pastThrottle(mr)
	_, err = svc.React(ctx, 1, 3, db.ActionDislike)
	require.NoError(t, err)

	c, err := svc.NextCandidate(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNextCandidateRequiresEligibleViewer(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setupService(t, discovery.Config{})

	// user4 has no photo
	_, err := svc.NextCandidate(ctx, 4)
	assert.ErrorIs(t, err, svcErr.ErrIneligible)

	_, err = svc.NextCandidate(ctx, 404)
	assert.ErrorIs(t, err, svcErr.ErrNotFound)
}

func TestNextCandidateSkipsDeletedCandidate(t *testing.T) {
	ctx := context.Background()
	svc, _, _, dbase := setupService(t, discovery.Config{})

	// first pop refills the queue with [2, 3]
	c, err := svc.NextCandidate(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), c.UserID)

	// user3 deletes their account while still queued
	require.NoError(t, dbase.Delete(&db.Profile{}, "user_id = ?", uint64(3)).Error)

	// stale entry is skipped; the refill serves user2 again
	c, err = svc.NextCandidate(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, uint64(2), c.UserID)
}

func TestReactMutualMatch(t *testing.T) {
	ctx := context.Background()
	svc, notifier, mr, _ := setupService(t, discovery.Config{})

	res, err := svc.React(ctx, 1, 2, db.ActionLike)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Empty(t, notifier.byKind(notify.KindMatch))

	pastThrottle(mr)

	res, err = svc.React(ctx, 2, 1, db.ActionLike)
	require.NoError(t, err)
	assert.True(t, res.Matched)

	matches := notifier.byKind(notify.KindMatch)
	require.Len(t, matches, 2)
	recipients := []uint64{matches[0].UserID, matches[1].UserID}
	assert.ElementsMatch(t, []uint64{1, 2}, recipients)
}

func TestDislikeNeverMatches(t *testing.T) {
	ctx := context.Background()
	svc, notifier, mr, _ := setupService(t, discovery.Config{})

	_, err := svc.React(ctx, 1, 2, db.ActionLike)
	require.NoError(t, err)
	pastThrottle(mr)

	res, err := svc.React(ctx, 2, 1, db.ActionDislike)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Empty(t, notifier.byKind(notify.KindMatch))
}

func TestSuperlikeNotifiesTarget(t *testing.T) {
	ctx := context.Background()
	svc, notifier, _, _ := setupService(t, discovery.Config{})

	_, err := svc.React(ctx, 1, 2, db.ActionSuperlike)
	require.NoError(t, err)

	events := notifier.byKind(notify.KindSuperlikeReceived)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(2), events[0].UserID)
	assert.Equal(t, uint64(1), events[0].Payload["from_user_id"])
}

func TestReactValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setupService(t, discovery.Config{})

	_, err := svc.React(ctx, 1, 2, "wink")
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)

	_, err = svc.React(ctx, 1, 1, db.ActionLike)
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)
}

func TestReactStaleTarget(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setupService(t, discovery.Config{})

	_, err := svc.React(ctx, 1, 999, db.ActionLike)
	assert.ErrorIs(t, err, svcErr.ErrStaleReference)
}

func TestReactThrottled(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setupService(t, discovery.Config{})

	_, err := svc.React(ctx, 1, 2, db.ActionLike)
	require.NoError(t, err)

	// immediate second reaction from the same user is rejected
	_, err = svc.React(ctx, 1, 3, db.ActionLike)
	assert.ErrorIs(t, err, svcErr.ErrThrottled)
}

func TestFreeLikeQuota(t *testing.T) {
	ctx := context.Background()
	svc, _, mr, _ := setupService(t, discovery.Config{FreeLikesPerDay: 1})

	_, err := svc.React(ctx, 1, 2, db.ActionLike)
	require.NoError(t, err)
	pastThrottle(mr)

	_, err = svc.React(ctx, 1, 3, db.ActionLike)
	assert.ErrorIs(t, err, svcErr.ErrEntitlementRequired)

	// dislikes are not counted against the quota
	pastThrottle(mr)
	_, err = svc.React(ctx, 1, 3, db.ActionDislike)
	require.NoError(t, err)
	pastThrottle(mr)

	// premium lifts the cap
	grantPremium(t, svc, 1)
	_, err = svc.React(ctx, 1, 3, db.ActionLike)
	require.NoError(t, err)
}

func TestRewindRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _, mr, _ := setupService(t, discovery.Config{})
	grantPremium(t, svc, 1)

	_, err := svc.React(ctx, 1, 2, db.ActionDislike)
	require.NoError(t, err)
	pastThrottle(mr)

	restored, err := svc.Rewind(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), restored.UserID)

	// restored candidate is presented next
	c, err := svc.NextCandidate(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, uint64(2), c.UserID)

	// the slot was consumed: a second rewind has nothing to undo
	pastThrottle(mr)
	_, err = svc.Rewind(ctx, 1)
	assert.ErrorIs(t, err, svcErr.ErrRewindUnavailable)
}

func TestRewindRequiresPremium(t *testing.T) {
	ctx := context.Background()
	svc, _, mr, _ := setupService(t, discovery.Config{})

	_, err := svc.React(ctx, 1, 2, db.ActionDislike)
	require.NoError(t, err)
	pastThrottle(mr)

	_, err = svc.Rewind(ctx, 1)
	assert.ErrorIs(t, err, svcErr.ErrEntitlementRequired)
}

func TestBoostFanOut(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setupService(t, discovery.Config{})
	grantPremium(t, svc, 1)

	// user2 and user4 are compatible Yangon viewers (user3 is in Mandalay).
	// Viewer completeness is not required for receiving a boost.
	delivered, err := svc.Boost(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	// the boosted actor cuts to the head of user2's queue
	c, err := svc.NextCandidate(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, uint64(1), c.UserID)
}

func TestBoostRequiresPremium(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setupService(t, discovery.Config{})

	_, err := svc.Boost(ctx, 1)
	assert.ErrorIs(t, err, svcErr.ErrEntitlementRequired)
}

func TestListLikedYou(t *testing.T) {
	ctx := context.Background()
	svc, _, mr, _ := setupService(t, discovery.Config{})

	_, err := svc.React(ctx, 2, 1, db.ActionLike)
	require.NoError(t, err)
	pastThrottle(mr)
	_, err = svc.React(ctx, 3, 1, db.ActionSuperlike)
	require.NoError(t, err)

	// gated for free users
	_, _, err = svc.ListLikedYou(ctx, 1, nil, 10)
	assert.ErrorIs(t, err, svcErr.ErrEntitlementRequired)

	grantPremium(t, svc, 1)
	likers, next, err := svc.ListLikedYou(ctx, 1, nil, 10)
	require.NoError(t, err)
	assert.Nil(t, next)
	require.Len(t, likers, 2)
	assert.ElementsMatch(t, []uint64{2, 3}, []uint64{likers[0].UserID, likers[1].UserID})
}

func TestDeleteAccountPurges(t *testing.T) {
	ctx := context.Background()
	svc, _, mr, dbase := setupService(t, discovery.Config{})

	_, err := svc.React(ctx, 1, 2, db.ActionDislike)
	require.NoError(t, err)
	pastThrottle(mr)

	require.NoError(t, svc.DeleteAccount(ctx, 1))

	_, err = svc.NextCandidate(ctx, 1)
	assert.ErrorIs(t, err, svcErr.ErrNotFound)

	var count int64
	dbase.Model(&db.Action{}).Where("actor_id = ? OR target_id = ?", 1, 1).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestUpdateLocationClearsQueue(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setupService(t, discovery.Config{})

	// queue now holds [3] after popping 2
	c, err := svc.NextCandidate(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), c.UserID)

	require.NoError(t, svc.UpdateLocation(ctx, 1, 21.97, 96.08)) // move to Mandalay

	// refill under the new location ranks Mandalay's user3 first
	c, err = svc.NextCandidate(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, uint64(3), c.UserID)
}

func TestUpdateLocationValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setupService(t, discovery.Config{})

	err := svc.UpdateLocation(ctx, 1, 91, 0)
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)
	err = svc.UpdateLocation(ctx, 1, 0, 181)
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)
}
