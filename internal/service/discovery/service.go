package discovery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aungmyo/thazin/internal/app"
	"github.com/aungmyo/thazin/internal/db"
	"github.com/aungmyo/thazin/internal/entitlement"
	svcErr "github.com/aungmyo/thazin/internal/errors"
	"github.com/aungmyo/thazin/internal/notify"
	"github.com/aungmyo/thazin/internal/queue"
	"github.com/aungmyo/thazin/internal/rate"
	"github.com/aungmyo/thazin/internal/repository"
)

// How many stale (deleted mid-flight) candidates Next skips before giving up.
const maxStaleSkips = 10

// Config carries the discovery tunables.
type Config struct {
	RefillLimit      int
	BoostViewerLimit int
	FreeLikesPerDay  int
	ThrottleInterval time.Duration
}

// MatchResult reports the outcome of a reaction.
type MatchResult struct {
	Matched bool
}

// actionLedger is the slice of the action repository the service depends on.
type actionLedger interface {
	Record(ctx context.Context, actorID, targetID uint64, actionType string) error
	HasPositiveAction(ctx context.Context, actorID, targetID uint64) (bool, error)
	Delete(ctx context.Context, actorID, targetID uint64) error
	DeleteAllFor(ctx context.Context, userID uint64) error
	CountPositiveSince(ctx context.Context, actorID uint64, since time.Time) (int64, error)
	ListIncomingLikes(ctx context.Context, targetID uint64, paginationToken *string, limit int) ([]db.Action, *string, error)
}

// Service is the discovery & matching core. It owns candidate delivery,
// the reaction ledger, boost fan-out, rewind, and premium gating; the
// bot/transport layer consumes it through the exported methods.
type Service struct {
	appCtx       *app.AppContext
	profiles     *repository.ProfileRepository
	actions      actionLedger
	queue        *queue.DiscoveryQueue
	entitlements *entitlement.Tracker
	limiter      *rate.Limiter
	notifier     notify.Notifier
	cfg          Config
	now          func() time.Time
}

// candidateSource adapts the profile repository to the queue's refill hook.
// The viewer row is re-read on every refill so the ranking always uses the
// viewer's current attributes.
type candidateSource struct {
	profiles *repository.ProfileRepository
}

func (s candidateSource) CandidateIDs(ctx context.Context, viewerID uint64, limit int) ([]uint64, error) {
	viewer, err := s.profiles.Get(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return s.profiles.RankedCandidates(ctx, viewer, limit)
}

// NewService wires the discovery core from the shared app context.
func NewService(appCtx *app.AppContext, notifier notify.Notifier, cfg Config) *Service {
	if cfg.RefillLimit <= 0 {
		cfg.RefillLimit = 80
	}
	if cfg.BoostViewerLimit <= 0 {
		cfg.BoostViewerLimit = 100
	}
	if cfg.FreeLikesPerDay <= 0 {
		cfg.FreeLikesPerDay = 50
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(appCtx.Logger)
	}

	profiles := repository.NewProfileRepository(appCtx.DB)
	return &Service{
		appCtx:       appCtx,
		profiles:     profiles,
		actions:      repository.NewActionRepository(appCtx.DB),
		queue:        queue.NewDiscoveryQueue(appCtx.RedisCache, candidateSource{profiles: profiles}, cfg.RefillLimit),
		entitlements: entitlement.NewTracker(profiles),
		limiter:      rate.NewLimiter(appCtx.RedisCache, appCtx.RedisCache.KeyForThrottle, cfg.ThrottleInterval),
		notifier:     notifier,
		cfg:          cfg,
		now:          time.Now,
	}
}

// NextCandidate returns the next profile to show the viewer, or nil when the
// pool is exhausted (a normal outcome, not an error). Candidates deleted
// between enqueue and presentation are skipped silently.
func (s *Service) NextCandidate(ctx context.Context, viewerID uint64) (*db.Profile, error) {
	viewer, err := s.profiles.Get(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if !viewer.Eligible() {
		return nil, fmt.Errorf("viewer %d: %w", viewerID, svcErr.ErrIneligible)
	}

	for i := 0; i < maxStaleSkips; i++ {
		id, ok, err := s.queue.Next(ctx, viewerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil // exhausted
		}

		candidate, err := s.profiles.Get(ctx, id)
		if errors.Is(err, svcErr.ErrNotFound) {
			s.appCtx.Logger.Debug("skipping stale candidate", "viewer", viewerID, "candidate", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		return candidate, nil
	}
	return nil, nil
}

// React records the actor's reaction on the target and reports whether it
// completed a mutual match.
//
// Behavior:
//   - Idempotent upsert: repeating or changing a reaction never errors.
//   - A dislike arms the rewind slot (24h).
//   - A superlike notifies the target, best effort.
//   - After a like/superlike the reverse row is checked; both parties are
//     notified on a match. Two users liking each other concurrently can
//     each observe the other's committed row and double-notify; accepted.
//   - Free users are limited to FreeLikesPerDay positive reactions per UTC
//     day; an active premium window lifts the cap (unlimited likes).
func (s *Service) React(ctx context.Context, actorID, targetID uint64, kind string) (MatchResult, error) {
	switch kind {
	case db.ActionLike, db.ActionDislike, db.ActionSuperlike:
	default:
		return MatchResult{}, fmt.Errorf("unknown reaction %q: %w", kind, svcErr.ErrInvalidArgument)
	}
	if actorID == targetID {
		return MatchResult{}, fmt.Errorf("cannot react to yourself: %w", svcErr.ErrInvalidArgument)
	}

	if err := s.throttle(ctx, actorID); err != nil {
		return MatchResult{}, err
	}

	actor, err := s.profiles.Get(ctx, actorID)
	if err != nil {
		return MatchResult{}, err
	}
	if actor.Banned {
		return MatchResult{}, fmt.Errorf("actor %d banned: %w", actorID, svcErr.ErrIneligible)
	}

	target, err := s.profiles.Get(ctx, targetID)
	if errors.Is(err, svcErr.ErrNotFound) {
		// target vanished between presentation and reaction
		return MatchResult{}, fmt.Errorf("target %d: %w", targetID, svcErr.ErrStaleReference)
	}
	if err != nil {
		return MatchResult{}, err
	}

	positive := kind == db.ActionLike || kind == db.ActionSuperlike
	if positive && !s.entitlements.IsActive(actor) {
		used, err := s.actions.CountPositiveSince(ctx, actorID, startOfUTCDay(s.now()))
		if err != nil {
			return MatchResult{}, err
		}
		if used >= int64(s.cfg.FreeLikesPerDay) {
			return MatchResult{}, fmt.Errorf("daily like quota reached: %w", svcErr.ErrEntitlementRequired)
		}
	}

	if err := s.actions.Record(ctx, actorID, targetID, kind); err != nil {
		return MatchResult{}, err
	}

	if kind == db.ActionDislike {
		if err := s.queue.SetLastDisliked(ctx, actorID, targetID); err != nil {
			// reaction is already durable; a lost rewind slot is tolerable
			s.appCtx.Logger.Warn("failed to arm rewind slot", "actor", actorID, "err", err)
		}
		return MatchResult{}, nil
	}

	if kind == db.ActionSuperlike {
		s.send(ctx, notify.NewEvent(targetID, notify.KindSuperlikeReceived, map[string]any{
			"from_user_id": actorID,
			"from_name":    actor.FullName,
		}))
	}

	// write first, then check the reverse row. The reaction is already
	// durable, so a failed check surfaces as an error and a retry of the
	// idempotent reaction re-runs the match detection.
	mutual, err := s.actions.HasPositiveAction(ctx, targetID, actorID)
	if err != nil {
		return MatchResult{}, err
	}
	if mutual {
		s.send(ctx, notify.NewEvent(actorID, notify.KindMatch, map[string]any{
			"peer_user_id": targetID,
			"peer_name":    target.FullName,
		}))
		s.send(ctx, notify.NewEvent(targetID, notify.KindMatch, map[string]any{
			"peer_user_id": actorID,
			"peer_name":    actor.FullName,
		}))
	}

	return MatchResult{Matched: mutual}, nil
}

// Boost fans the actor's id to the head of up to BoostViewerLimit compatible
// viewers' queues. Premium-gated. Returns the number of queues reached;
// partial delivery on a pipeline failure is kept, not rolled back.
func (s *Service) Boost(ctx context.Context, actorID uint64) (int, error) {
	if err := s.throttle(ctx, actorID); err != nil {
		return 0, err
	}

	actor, err := s.profiles.Get(ctx, actorID)
	if err != nil {
		return 0, err
	}
	if !actor.Eligible() {
		return 0, fmt.Errorf("actor %d: %w", actorID, svcErr.ErrIneligible)
	}
	if !s.entitlements.IsActive(actor) {
		return 0, fmt.Errorf("boost: %w", svcErr.ErrEntitlementRequired)
	}

	viewerIDs, err := s.profiles.ListBoostViewers(ctx, actor, s.cfg.BoostViewerLimit)
	if err != nil {
		return 0, err
	}

	delivered, err := s.queue.PushMany(ctx, viewerIDs, actorID)
	if err != nil {
		s.appCtx.Logger.Warn("boost fan-out incomplete", "actor", actorID, "delivered", delivered, "err", err)
	}
	return delivered, nil
}

// Rewind undoes the viewer's most recent dislike and re-queues that candidate
// at the head so it is presented next. Premium-gated. The slot is consumed
// even when the target turned out to be gone.
func (s *Service) Rewind(ctx context.Context, viewerID uint64) (*db.Profile, error) {
	if err := s.throttle(ctx, viewerID); err != nil {
		return nil, err
	}

	viewer, err := s.profiles.Get(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if !s.entitlements.IsActive(viewer) {
		return nil, fmt.Errorf("rewind: %w", svcErr.ErrEntitlementRequired)
	}

	targetID, ok, err := s.queue.PopLastDisliked(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, svcErr.ErrRewindUnavailable
	}

	if err := s.actions.Delete(ctx, viewerID, targetID); err != nil {
		return nil, err
	}

	target, err := s.profiles.Get(ctx, targetID)
	if errors.Is(err, svcErr.ErrNotFound) {
		return nil, fmt.Errorf("target %d deleted: %w", targetID, svcErr.ErrRewindUnavailable)
	}
	if err != nil {
		return nil, err
	}

	if err := s.queue.PushFront(ctx, viewerID, targetID); err != nil {
		return nil, err
	}
	return target, nil
}

// ListLikedYou returns profiles of users who liked the recipient, newest
// first, with cursor pagination. Premium-gated ("see who liked you").
// Likers whose profiles vanished or got banned are skipped.
func (s *Service) ListLikedYou(ctx context.Context, userID uint64, paginationToken *string, limit int) ([]db.Profile, *string, error) {
	user, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if !s.entitlements.IsActive(user) {
		return nil, nil, fmt.Errorf("liked-you list: %w", svcErr.ErrEntitlementRequired)
	}
	if limit <= 0 {
		limit = 20
	}

	likes, nextToken, err := s.actions.ListIncomingLikes(ctx, userID, paginationToken, limit)
	if err != nil {
		return nil, nil, err
	}

	profiles := make([]db.Profile, 0, len(likes))
	for _, like := range likes {
		liker, err := s.profiles.Get(ctx, like.ActorID)
		if errors.Is(err, svcErr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if liker.Banned {
			continue
		}
		profiles = append(profiles, *liker)
	}
	return profiles, nextToken, nil
}

// IsPremiumActive exposes the entitlement check to the transport layer.
func (s *Service) IsPremiumActive(p *db.Profile) bool {
	return s.entitlements.IsActive(p)
}

// GrantPremiumDays extends the user's premium window additively and returns
// the new expiry. Reached through the external payment-approval path.
func (s *Service) GrantPremiumDays(ctx context.Context, userID uint64, days int) (time.Time, error) {
	return s.entitlements.GrantDays(ctx, userID, days)
}

// EnsureProfile creates the minimal profile shell on first contact.
func (s *Service) EnsureProfile(ctx context.Context, userID uint64, fullName string) (*db.Profile, error) {
	return s.profiles.EnsureShell(ctx, userID, fullName)
}

// SaveRegistration completes a profile and drops the now-stale queue.
func (s *Service) SaveRegistration(ctx context.Context, userID uint64, reg repository.Registration) error {
	if err := s.profiles.SaveRegistration(ctx, userID, reg); err != nil {
		return err
	}
	if err := s.queue.Clear(ctx, userID); err != nil {
		s.appCtx.Logger.Warn("failed to clear queue after registration", "user", userID, "err", err)
	}
	return nil
}

// UpdateLocation stores a new location fix and drops the now-stale queue.
func (s *Service) UpdateLocation(ctx context.Context, userID uint64, lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("coordinates out of range: %w", svcErr.ErrInvalidArgument)
	}
	if err := s.profiles.UpdateCoordinates(ctx, userID, lat, lon); err != nil {
		return err
	}
	if err := s.queue.Clear(ctx, userID); err != nil {
		s.appCtx.Logger.Warn("failed to clear queue after relocation", "user", userID, "err", err)
	}
	return nil
}

// DeleteAccount removes the profile, its ledger rows in both directions, and
// all cached discovery state.
func (s *Service) DeleteAccount(ctx context.Context, userID uint64) error {
	if err := s.profiles.Delete(ctx, userID); err != nil {
		return err
	}
	if err := s.actions.DeleteAllFor(ctx, userID); err != nil {
		return err
	}
	if err := s.queue.Clear(ctx, userID); err != nil {
		s.appCtx.Logger.Warn("failed to purge queue on deletion", "user", userID, "err", err)
	}
	if err := s.queue.ClearRewind(ctx, userID); err != nil {
		s.appCtx.Logger.Warn("failed to purge rewind slot on deletion", "user", userID, "err", err)
	}
	return nil
}

func (s *Service) throttle(ctx context.Context, userID uint64) error {
	retryAfter, ok, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		// a broken throttle must not take discovery down with it
		s.appCtx.Logger.Warn("throttle check failed", "user", userID, "err", err)
		return nil
	}
	if !ok {
		return fmt.Errorf("retry after %ds: %w", retryAfter, svcErr.ErrThrottled)
	}
	return nil
}

// send delivers a notification, swallowing any failure: the primary action is
// already durable by the time a notification is attempted.
func (s *Service) send(ctx context.Context, event notify.Event) {
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.appCtx.Logger.Debug("notification dropped", "user", event.UserID, "kind", string(event.Kind), "err", err)
	}
}

func startOfUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
