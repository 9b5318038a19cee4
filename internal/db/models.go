package db

import (
	"strings"
	"time"
)

// Gender / seeking values stored on a profile.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	SeekingBoth  = "both"
)

// Action types stored in the ledger.
const (
	ActionLike      = "like"
	ActionDislike   = "dislike"
	ActionSuperlike = "superlike"
)

// Profile is one user row. Created as a minimal shell on first contact and
// completed by the external registration flow; only discovery-relevant fields
// live here.
type Profile struct {
	UserID       uint64 `gorm:"primaryKey"`
	FullName     string `gorm:"size:100"`
	Language     string `gorm:"size:8"`
	Gender       string `gorm:"size:16;index:idx_discovery,priority:1"`
	Seeking      string `gorm:"size:16;index:idx_discovery,priority:2"`
	Age          *int
	Bio          string `gorm:"size:500"`
	Region       string `gorm:"size:50;index"`
	Township     string `gorm:"size:50"`
	Latitude     *float64
	Longitude    *float64
	PhotoID      string `gorm:"size:255"`
	Banned       bool   `gorm:"not null;default:false"`
	Premium      bool   `gorm:"not null;default:false"` // legacy flag, kept in sync with PremiumUntil
	PremiumUntil *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// Complete reports whether the profile carries every field discovery needs:
// language, gender, seeking, region, township, age, bio and photo.
func (p *Profile) Complete() bool {
	if p.Age == nil {
		return false
	}
	for _, field := range []string{p.Language, p.Gender, p.Seeking, p.Region, p.Township, p.Bio, p.PhotoID} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

// Eligible reports whether the profile may be offered as a candidate.
func (p *Profile) Eligible() bool {
	return !p.Banned && p.Complete()
}

// WantedGenders derives the candidate gender set from the profile's seeking
// preference: "both" expands to male+female, anything else is a singleton.
func (p *Profile) WantedGenders() []string {
	if p.Seeking == SeekingBoth {
		return []string{GenderMale, GenderFemale}
	}
	return []string{p.Seeking}
}

// Action records an actor's reaction on a target.
//
// Composite PK: (ActorID, TargetID)
//   - Ensures a single row per ordered pair (overwrite guarantee).
//
// Indexes:
//   - idx_target_type(target_id, type) optimizes the reverse lookup for the
//     mutual-match check and the incoming-likes list.
//
// A new reaction on the same pair overwrites the previous type and refreshes
// CreatedAt (last writer wins).
type Action struct {
	ActorID   uint64    `gorm:"primaryKey"`
	TargetID  uint64    `gorm:"primaryKey;index:idx_target_type,priority:1"`
	Type      string    `gorm:"size:16;not null;index:idx_target_type,priority:2"`
	CreatedAt time.Time `gorm:"not null"`
}

// Positive reports whether the action counts toward a match.
func (a *Action) Positive() bool {
	return a.Type == ActionLike || a.Type == ActionSuperlike
}
