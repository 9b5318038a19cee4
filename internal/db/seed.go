package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type seedRegion struct {
	Name      string
	Townships []string
	Lat       float64
	Lon       float64
}

var seedRegions = []seedRegion{
	{"Yangon", []string{"Hlaing", "Bahan", "Insein", "Thingangyun"}, 16.8409, 96.1735},
	{"Mandalay", []string{"Chanayethazan", "Amarapura", "Pyigyidagun"}, 21.9588, 96.0891},
	{"Shan", []string{"Taunggyi", "Lashio"}, 20.7892, 97.0378},
	{"Ayeyarwady", []string{"Pathein", "Hinthada"}, 16.7792, 94.7381},
}

// SeedTestData resets the database and populates it with demo profiles and actions.
//
// Behavior:
//  1. Clears existing data in `profiles` and `actions` tables.
//  2. Creates 20 complete profiles (10 male, 10 female) spread over four
//     regions, with slightly jittered coordinates and a few premium windows.
//  3. Generates ~200 actions with ~70% likes, and every 3rd ensures a mutual like.
//
// Compatible with both MySQL and SQLite.
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	if err := db.Exec("DELETE FROM actions").Error; err != nil {
		return fmt.Errorf("failed to clear actions: %w", err)
	}
	if err := db.Exec("DELETE FROM profiles").Error; err != nil {
		return fmt.Errorf("failed to clear profiles: %w", err)
	}

	log.Println("Cleared existing data")

	// --- Seed Profiles (10 male, 10 female) ---
	for i := 1; i <= 20; i++ {
		gender := GenderMale
		if i > 10 {
			gender = GenderFemale
		}

		seeking := GenderMale
		if gender == GenderMale {
			seeking = GenderFemale
		}
		if i%5 == 0 {
			seeking = SeekingBoth
		}

		region := seedRegions[i%len(seedRegions)]
		age := 20 + r.Intn(15)
		lat := region.Lat + (r.Float64()-0.5)*0.2
		lon := region.Lon + (r.Float64()-0.5)*0.2

		profile := Profile{
			UserID:    uint64(i),
			FullName:  fmt.Sprintf("Demo User %d", i),
			Language:  "my",
			Gender:    gender,
			Seeking:   seeking,
			Age:       &age,
			Bio:       fmt.Sprintf("Hello from %s!", region.Name),
			Region:    region.Name,
			Township:  region.Townships[i%len(region.Townships)],
			Latitude:  &lat,
			Longitude: &lon,
			PhotoID:   fmt.Sprintf("photo-%d", i),
			CreatedAt: time.Now().Add(-time.Duration(r.Intn(500)) * time.Hour),
		}

		// every 7th user gets an active premium window
		if i%7 == 0 {
			until := time.Now().Add(14 * 24 * time.Hour)
			profile.Premium = true
			profile.PremiumUntil = &until
		}

		if err := db.Create(&profile).Error; err != nil {
			return fmt.Errorf("failed to seed profile: %w", err)
		}
	}
	log.Println("Seeded 20 profiles.")

	// --- Seed Actions (~200) ---
	counter := 0
	for actorID := 1; actorID <= 20; actorID++ {
		for j := 0; j < 12; j++ { // each user reacts to ~12 others
			targetID := uint64(r.Intn(20) + 1)
			if uint64(actorID) == targetID {
				continue
			}

			var actor, target Profile
			if err := db.First(&actor, actorID).Error; err != nil {
				continue
			}
			if err := db.First(&target, targetID).Error; err != nil {
				continue
			}
			if actor.Gender == target.Gender {
				continue
			}

			// like probability 70%
			actionType := ActionDislike
			if r.Intn(100) < 70 {
				actionType = ActionLike
			}

			// guarantee mutual likes every 3rd pair
			if counter%3 == 0 {
				actionType = ActionLike
				recip := Action{
					ActorID:   targetID,
					TargetID:  uint64(actorID),
					Type:      ActionLike,
					CreatedAt: time.Now().UTC(),
				}
				db.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
					DoUpdates: clause.AssignmentColumns([]string{"type", "created_at"}),
				}).Create(&recip)
			}

			action := Action{
				ActorID:   uint64(actorID),
				TargetID:  targetID,
				Type:      actionType,
				CreatedAt: time.Now().UTC(),
			}
			if err := db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"type", "created_at"}),
			}).Create(&action).Error; err != nil {
				return fmt.Errorf("failed to seed action: %w", err)
			}

			counter++
		}
	}

	return nil
}
