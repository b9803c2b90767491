package mongostore

import (
	"context"
	"time"

	"github.com/mto-maintenance/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionRepository handles persistence for user sessions.
type SessionRepository struct {
	c     *Client
	coll  *mongo.Collection
	users *mongo.Collection
}

func (r *SessionRepository) Create(ctx context.Context, session types.Session) (types.Session, error) {
	id, err := r.c.nextID(ctx, sessionsCollection)
	if err != nil {
		return types.Session{}, err
	}
	session.ID = id
	if _, err := r.coll.InsertOne(ctx, session); err != nil {
		return types.Session{}, translateError(err)
	}
	return session, nil
}

// TouchValid returns the owner of a valid session and bumps its last
// activity. The owner must be active before anything is written; the bump
// re-applies the session filter so a session ended in between is not
// touched.
func (r *SessionRepository) TouchValid(ctx context.Context, tokenHash string, now time.Time) (types.User, int64, error) {
	filter := bson.M{
		"token_hash": tokenHash,
		"is_active":  true,
		"expires_at": bson.M{"$gt": now},
	}

	var session types.Session
	if err := r.coll.FindOne(ctx, filter).Decode(&session); err != nil {
		return types.User{}, 0, translateError(err)
	}

	var user types.User
	if err := r.users.FindOne(ctx, bson.M{"_id": session.UserID, "is_active": true}).Decode(&user); err != nil {
		return types.User{}, 0, translateError(err)
	}

	filter["_id"] = session.ID
	if err := r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": bson.M{"last_activity": now}}).Err(); err != nil {
		return types.User{}, 0, translateError(err)
	}
	return user, session.ID, nil
}

func (r *SessionRepository) Deactivate(ctx context.Context, tokenHash string) (bool, error) {
	return r.deactivate(ctx, bson.M{"token_hash": tokenHash})
}

func (r *SessionRepository) DeactivateByID(ctx context.Context, userID int, sessionID int64) (bool, error) {
	return r.deactivate(ctx, bson.M{"_id": sessionID, "user_id": userID, "is_active": true})
}

func (r *SessionRepository) deactivate(ctx context.Context, filter bson.M) (bool, error) {
	result, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"is_active": false}})
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *SessionRepository) DeactivateAll(ctx context.Context, userID int) (int64, error) {
	result, err := r.coll.UpdateMany(
		ctx,
		bson.M{"user_id": userID, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (r *SessionRepository) DeleteStale(ctx context.Context, userID int, now time.Time) (int64, error) {
	result, err := r.coll.DeleteMany(ctx, bson.M{
		"user_id": userID,
		"$or": bson.A{
			bson.M{"is_active": false},
			bson.M{"expires_at": bson.M{"$lte": now}},
		},
	})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (r *SessionRepository) ListValid(ctx context.Context, userID int, now time.Time) ([]types.Session, error) {
	cursor, err := r.coll.Find(
		ctx,
		bson.M{"user_id": userID, "is_active": true, "expires_at": bson.M{"$gt": now}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	var sessions []types.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
