package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aungmyo/thazin/internal/db"
	"github.com/aungmyo/thazin/internal/utils/pagination"
)

// ActionRepository is the reaction ledger. One row per ordered (actor, target)
// pair; a match is never stored, it is derived from two positive rows.
type ActionRepository struct {
	db *gorm.DB
}

// NewActionRepository creates a new repository bound to the given DB connection.
func NewActionRepository(database *gorm.DB) *ActionRepository {
	return &ActionRepository{db: database}
}

// Record inserts or updates the reaction actor -> target.
//
// Behavior:
//   - If the (actor_id, target_id) pair exists, the row is updated with the
//     new type and a fresh created_at (last writer wins).
//   - Replays with the same type are harmless; exactly one row remains.
//
// Example:
//
//	repo.Record(ctx, 1, 2, db.ActionLike) // user 1 liked user 2
func (r *ActionRepository) Record(ctx context.Context, actorID, targetID uint64, actionType string) error {
	action := db.Action{
		ActorID:   actorID,
		TargetID:  targetID,
		Type:      actionType,
		CreatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"type", "created_at"}),
		}).
		Create(&action).Error
}

// HasPositiveAction checks whether actor has a like or superlike on target.
// Performed by the caller right after its own write: whichever of two
// concurrent mutual likes lands second observes the other's committed row.
func (r *ActionRepository) HasPositiveAction(ctx context.Context, actorID, targetID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Action{}).
		Where("actor_id = ? AND target_id = ? AND type IN ?", actorID, targetID,
			[]string{db.ActionLike, db.ActionSuperlike}).
		Count(&count).Error
	return count > 0, err
}

// Delete removes one reaction. Used only by rewind, so a later refill can
// surface the target again.
func (r *ActionRepository) Delete(ctx context.Context, actorID, targetID uint64) error {
	return r.db.WithContext(ctx).
		Delete(&db.Action{}, "actor_id = ? AND target_id = ?", actorID, targetID).Error
}

// DeleteAllFor purges every ledger row the user appears in, both as actor and
// as target. Called on account deletion.
func (r *ActionRepository) DeleteAllFor(ctx context.Context, userID uint64) error {
	return r.db.WithContext(ctx).
		Delete(&db.Action{}, "actor_id = ? OR target_id = ?", userID, userID).Error
}

// CountPositiveSince counts the actor's likes and superlikes recorded at or
// after since. Backs the free daily like quota behind the unlimited-likes gate.
func (r *ActionRepository) CountPositiveSince(ctx context.Context, actorID uint64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Action{}).
		Where("actor_id = ? AND type IN ? AND created_at >= ?", actorID,
			[]string{db.ActionLike, db.ActionSuperlike}, since).
		Count(&count).Error
	return count, err
}

// ListIncomingLikes returns the likes received by target, newest first.
//
// Behavior:
//   - Only like/superlike rows count.
//   - Excludes likers the target explicitly disliked.
//   - Ordered by created_at DESC, actor_id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.ListIncomingLikes(ctx, 42, nil, 20) // first 20 people who liked user 42
func (r *ActionRepository) ListIncomingLikes(
	ctx context.Context,
	targetID uint64,
	paginationToken *string,
	limit int,
) ([]db.Action, *string, error) {
	var actions []db.Action

	// decode cursor if provided
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Table("actions a").
		Where("a.target_id = ? AND a.type IN ?", targetID, []string{db.ActionLike, db.ActionSuperlike}).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM actions b
				WHERE b.actor_id = ?
				  AND b.target_id = a.actor_id
				  AND b.type = ?
			)`, targetID, db.ActionDislike).
		Order("a.created_at DESC, a.actor_id DESC").
		Limit(limit + 1)

	// apply cursor
	if cursor.ActorID > 0 && cursor.CreatedUnix > 0 {
		ts := time.UnixMilli(cursor.CreatedUnix)
		query = query.Where(
			"(a.created_at < ? OR (a.created_at = ? AND a.actor_id < ?))",
			ts, ts, cursor.ActorID,
		)
	}

	if err := query.Find(&actions).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(actions) > limit {
		last := actions[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ActorID:     last.ActorID,
			CreatedUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
		actions = actions[:limit]
	}

	return actions, nextToken, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
