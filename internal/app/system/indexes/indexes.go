// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := ensureUsers(ctx, db); err != nil {
		problems = append(problems, "users: "+err.Error())
	}
	if err := ensureMemberships(ctx, db); err != nil {
		problems = append(problems, "memberships: "+err.Error())
	}
	if err := ensureContributions(ctx, db); err != nil {
		problems = append(problems, "contributions: "+err.Error())
	}
	if err := ensureNotifications(ctx, db); err != nil {
		problems = append(problems, "notifications: "+err.Error())
	}
	if err := ensureMessages(ctx, db); err != nil {
		problems = append(problems, "messages: "+err.Error())
	}
	if err := ensureMatrixAccounts(ctx, db); err != nil {
		problems = append(problems, "matrix_accounts: "+err.Error())
	}
	if err := ensurePrivileges(ctx, db); err != nil {
		problems = append(problems, "privileges: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ",")
}

func uniqueOf(p *bool) bool {
	return p != nil && *p
}

// ensureIndexSet reconciles the desired indexes for one collection: an
// existing index with the same keys and options is reused, one with
// different options is dropped and recreated, and missing ones are created.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, desired []mongo.IndexModel) error {
	existing := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err == nil {
		defer cur.Close(ctx)
		for cur.Next(ctx) {
			var idx existingIndex
			if err := cur.Decode(&idx); err != nil {
				zap.L().Warn("failed to decode existing index",
					zap.String("collection", coll.Name()),
					zap.Error(err))
				continue
			}
			existing[keySig(idx.Key)] = idx
		}
	}

	var errs []string
	for _, m := range desired {
		var name string
		var unique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = m.Options.Unique
		}
		sig := keySig(m.Keys.(bson.D))

		if ex, ok := existing[sig]; ok {
			if uniqueOf(unique) == uniqueOf(ex.Unique) {
				continue
			}
			// Options changed (e.g. upgrading to unique): drop and recreate.
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
			continue
		}
		zap.L().Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", uniqueOf(unique)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func ensureUsers(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("users")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Usernames are unique case/diacritics-folded.
		{
			Keys:    bson.D{{Key: "username_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_users_usernameci"),
		},
		// Role directory lookups for monthly auto-assignment.
		{
			Keys:    bson.D{{Key: "roles", Value: 1}},
			Options: options.Index().SetName("idx_users_roles"),
		},
	})
}

func ensureMemberships(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("memberships")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Exactly one membership per user.
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_memberships_user"),
		},
		// Active/inactive and in-grace listings.
		{
			Keys:    bson.D{{Key: "is_active", Value: 1}},
			Options: options.Index().SetName("idx_memberships_active"),
		},
		{
			Keys:    bson.D{{Key: "is_in_grace_period", Value: 1}},
			Options: options.Index().SetName("idx_memberships_grace"),
		},
		// Expiring-soon listings.
		{
			Keys:    bson.D{{Key: "is_active", Value: 1}, {Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("idx_memberships_active_expires"),
		},
	})
}

func ensureContributions(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("contributions")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// One entry per (membership, month, year, type). The ledger checks
		// before inserting; this is the storage-level backstop.
		{
			Keys: bson.D{
				{Key: "membership_id", Value: 1},
				{Key: "month", Value: 1},
				{Key: "year", Value: 1},
				{Key: "type", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("uniq_contrib_member_period_type"),
		},
		// Latest-qualifying lookup, the hot path of the daily check.
		{
			Keys: bson.D{
				{Key: "membership_id", Value: 1},
				{Key: "status", Value: 1},
				{Key: "period_end", Value: -1},
			},
			Options: options.Index().SetName("idx_contrib_member_status_periodend"),
		},
		// Pending queue, oldest first.
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "submitted_at", Value: 1}},
			Options: options.Index().SetName("idx_contrib_status_submitted"),
		},
		// Per-month listings and role-assignment dedup.
		{
			Keys:    bson.D{{Key: "month", Value: 1}, {Key: "year", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().SetName("idx_contrib_month_year_type"),
		},
	})
}

func ensureNotifications(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("notifications")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// Role-visible feed, newest first.
		{
			Keys: bson.D{
				{Key: "min_role_required", Value: 1},
				{Key: "is_read", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_notif_role_read_created"),
		},
		// Assignee feed.
		{
			Keys:    bson.D{{Key: "assigned_to_membership_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_notif_assignee_created"),
		},
		// Retention purge scans by age.
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_notif_created"),
		},
	})
}

func ensureMessages(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("messages")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_messages_status_created"),
		},
		{
			Keys:    bson.D{{Key: "sender_membership_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_messages_sender_created"),
		},
	})
}

func ensureMatrixAccounts(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("matrix_accounts")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_matrix_username"),
		},
		{
			Keys:    bson.D{{Key: "privileges_id", Value: 1}, {Key: "is_disabled", Value: 1}},
			Options: options.Index().SetName("idx_matrix_privileges_disabled"),
		},
	})
}

func ensurePrivileges(ctx context.Context, db *mongo.Database) error {
	c := db.Collection("privileges")
	return ensureIndexSet(ctx, c, []mongo.IndexModel{
		// One privileges record per membership.
		{
			Keys:    bson.D{{Key: "membership_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_privileges_membership"),
		},
	})
}
