package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/aungmyo/thazin/internal/db"
	svcErr "github.com/aungmyo/thazin/internal/errors"
)

// ProfileStore is the slice of the profile repository the tracker needs.
type ProfileStore interface {
	Get(ctx context.Context, userID uint64) (*db.Profile, error)
	SetPremiumUntil(ctx context.Context, userID uint64, until time.Time, active bool) error
}

// Tracker owns the premium entitlement window. The window gates boost, rewind,
// see-who-liked-you, and lifts the free daily like quota.
type Tracker struct {
	profiles ProfileStore
	now      func() time.Time
}

func NewTracker(profiles ProfileStore) *Tracker {
	return &Tracker{profiles: profiles, now: time.Now}
}

// IsActive reports whether the profile's premium window covers now.
// Profiles from before windows existed may carry only the legacy boolean
// flag; it is honored when no window is set.
func IsActive(p *db.Profile, now time.Time) bool {
	if p == nil {
		return false
	}
	if p.PremiumUntil != nil {
		return p.PremiumUntil.After(now)
	}
	return p.Premium
}

// IsActive checks the window against the tracker's clock.
func (t *Tracker) IsActive(p *db.Profile) bool {
	return IsActive(p, t.now())
}

// GrantDays extends the user's premium window by the given number of days.
//
// Renewal is additive: the new expiry is max(now, current expiry) + days, so
// repeated grants accumulate instead of resetting already-purchased time.
// The legacy boolean flag is synced to the resulting activity state.
func (t *Tracker) GrantDays(ctx context.Context, userID uint64, days int) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, fmt.Errorf("days must be positive: %w", svcErr.ErrInvalidArgument)
	}

	profile, err := t.profiles.Get(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}

	now := t.now().UTC()
	base := now
	if profile.PremiumUntil != nil && profile.PremiumUntil.After(now) {
		base = profile.PremiumUntil.UTC()
	}
	until := base.Add(time.Duration(days) * 24 * time.Hour)

	if err := t.profiles.SetPremiumUntil(ctx, userID, until, until.After(now)); err != nil {
		return time.Time{}, err
	}
	return until, nil
}
