package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aungmyo/thazin/internal/db"
	svcErr "github.com/aungmyo/thazin/internal/errors"
	"github.com/aungmyo/thazin/internal/geo"
)

// Distance bucket boundary: candidates closer than this rank ahead of
// everyone with a known distance at or beyond it.
const nearbyKM = 50.0

// ProfileRepository provides data access methods for the Profile model.
// It encapsulates the eligibility predicate and the candidate ranking.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new repository bound to the given DB connection.
func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// Get loads one profile. Missing rows map to the domain NotFound error.
func (r *ProfileRepository) Get(ctx context.Context, userID uint64) (*db.Profile, error) {
	var profile db.Profile
	err := r.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("profile %d: %w", userID, svcErr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// EnsureShell creates the minimal profile row on first contact, or refreshes
// the display name of an existing one.
func (r *ProfileRepository) EnsureShell(ctx context.Context, userID uint64, fullName string) (*db.Profile, error) {
	profile := db.Profile{UserID: userID, FullName: truncate(fullName, 100)}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"full_name", "updated_at"}),
		}).
		Create(&profile).Error
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, userID)
}

// Registration carries the fields the external registration flow completes.
type Registration struct {
	Language string
	Gender   string
	Seeking  string
	Region   string
	Township string
	Age      int
	Bio      string
	PhotoID  string
}

// SaveRegistration completes a profile in one update. The caller is expected
// to clear the owner's discovery queue afterwards since ranking inputs change.
func (r *ProfileRepository) SaveRegistration(ctx context.Context, userID uint64, reg Registration) error {
	return r.update(ctx, userID, map[string]interface{}{
		"language": reg.Language,
		"gender":   reg.Gender,
		"seeking":  reg.Seeking,
		"region":   truncate(reg.Region, 50),
		"township": truncate(reg.Township, 50),
		"age":      reg.Age,
		"bio":      truncate(reg.Bio, 500),
		"photo_id": reg.PhotoID,
	})
}

// UpdateCoordinates stores a fresh location fix.
func (r *ProfileRepository) UpdateCoordinates(ctx context.Context, userID uint64, lat, lon float64) error {
	return r.update(ctx, userID, map[string]interface{}{
		"latitude":  lat,
		"longitude": lon,
	})
}

// SetPremiumUntil persists the entitlement window and syncs the legacy flag.
func (r *ProfileRepository) SetPremiumUntil(ctx context.Context, userID uint64, until time.Time, active bool) error {
	return r.update(ctx, userID, map[string]interface{}{
		"premium_until": until,
		"premium":       active,
	})
}

// SetBanned flips the banned flag (admin path).
func (r *ProfileRepository) SetBanned(ctx context.Context, userID uint64, banned bool) error {
	return r.update(ctx, userID, map[string]interface{}{"banned": banned})
}

// Delete removes the profile row on explicit account deletion. Queue and
// rewind state live in the cache and are purged by the caller.
func (r *ProfileRepository) Delete(ctx context.Context, userID uint64) error {
	return r.db.WithContext(ctx).Delete(&db.Profile{}, "user_id = ?", userID).Error
}

func (r *ProfileRepository) update(ctx context.Context, userID uint64, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&db.Profile{}).Where("user_id = ?", userID).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("profile %d: %w", userID, svcErr.ErrNotFound)
	}
	return nil
}

// candidateRow is the slim projection the ranking works on.
type candidateRow struct {
	UserID    uint64
	Latitude  *float64
	Longitude *float64
	Region    string
	CreatedAt time.Time
}

// RankedCandidates returns up to limit eligible candidate ids for the viewer,
// best first.
//
// Behavior:
//   - Excludes the viewer and anyone the viewer already acted on. Being acted
//     upon by others does not exclude a candidate.
//   - Eligibility: not banned, gender in the viewer's wanted set, candidate
//     seeking compatible with the viewer's gender, profile complete.
//   - Ranking: bucket 0 = distance < 50 km, bucket 1 = known distance >= 50 km,
//     bucket 2 = distance unknown; within a bucket ascending distance, then
//     same-region candidates first, then most recently created.
//   - An empty result is an empty slice, not an error.
func (r *ProfileRepository) RankedCandidates(ctx context.Context, viewer *db.Profile, limit int) ([]uint64, error) {
	var rows []candidateRow

	err := r.db.WithContext(ctx).
		Table("profiles p").
		Select("p.user_id, p.latitude, p.longitude, p.region, p.created_at").
		Where("p.user_id != ?", viewer.UserID).
		Where("p.banned = ?", false).
		Where("p.gender IN ?", viewer.WantedGenders()).
		Where("p.seeking = ? OR p.seeking = ?", db.SeekingBoth, viewer.Gender).
		Where("p.age IS NOT NULL").
		Where("p.language <> '' AND p.region <> '' AND p.township <> '' AND p.bio <> '' AND p.photo_id <> ''").
		Where(`
			NOT EXISTS (
				SELECT 1 FROM actions a
				WHERE a.actor_id = ?
				  AND a.target_id = p.user_id
			)`, viewer.UserID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	ranked := rankCandidates(viewer, rows)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	ids := make([]uint64, 0, len(ranked))
	for _, row := range ranked {
		ids = append(ids, row.UserID)
	}
	return ids, nil
}

func rankCandidates(viewer *db.Profile, rows []candidateRow) []candidateRow {
	type scored struct {
		candidateRow
		bucket     int
		distance   float64
		sameRegion bool
	}

	list := make([]scored, 0, len(rows))
	for _, row := range rows {
		s := scored{candidateRow: row, bucket: 2, distance: math.Inf(1)}
		if viewer.Latitude != nil && viewer.Longitude != nil && row.Latitude != nil && row.Longitude != nil {
			s.distance = geo.DistanceKM(*viewer.Latitude, *viewer.Longitude, *row.Latitude, *row.Longitude)
			if s.distance < nearbyKM {
				s.bucket = 0
			} else {
				s.bucket = 1
			}
		}
		s.sameRegion = viewer.Region != "" && row.Region == viewer.Region
		list = append(list, s)
	}

	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.bucket != b.bucket {
			return a.bucket < b.bucket
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		if a.sameRegion != b.sameRegion {
			return a.sameRegion
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.UserID > b.UserID
	})

	out := make([]candidateRow, 0, len(list))
	for _, s := range list {
		out = append(out, s.candidateRow)
	}
	return out
}

// ListBoostViewers returns ids of users eligible to receive the actor in their
// queue head during a boost.
//
// Behavior:
//   - Viewer and actor must be mutually compatible by gender/seeking.
//   - Viewers who already acted on the actor are skipped.
//   - When the actor has a region, only same-region viewers are returned.
//   - Most recently created first, up to limit. Boosted entries bypass the
//     full eligibility re-check by design (forced visibility).
func (r *ProfileRepository) ListBoostViewers(ctx context.Context, actor *db.Profile, limit int) ([]uint64, error) {
	query := r.db.WithContext(ctx).
		Table("profiles p").
		Select("p.user_id").
		Where("p.user_id != ?", actor.UserID).
		Where("p.banned = ?", false).
		Where("p.seeking = ? OR p.seeking = ?", db.SeekingBoth, actor.Gender).
		Where("p.gender IN ?", actor.WantedGenders()).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM actions a
				WHERE a.actor_id = p.user_id
				  AND a.target_id = ?
			)`, actor.UserID).
		Order("p.created_at DESC").
		Limit(limit)

	if actor.Region != "" {
		query = query.Where("p.region = ?", actor.Region)
	}

	var ids []uint64
	if err := query.Find(&ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// truncate limits s to n characters. Limits are character-based, not
// byte-based: Burmese text runs three bytes per rune and a byte cut would
// split one mid-sequence.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
