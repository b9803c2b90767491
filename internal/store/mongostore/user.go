package mongostore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mto-maintenance/apiserver/internal/store"
	"github.com/mto-maintenance/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	c    *Client
	coll *mongo.Collection
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (types.User, error) {
	var user types.User
	if err := r.coll.FindOne(ctx, filter).Decode(&user); err != nil {
		return types.User{}, translateError(err)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetByLogin looks the identifier up as a username first, then as an email.
func (r *UserRepository) GetByLogin(ctx context.Context, identifier string) (types.User, error) {
	user, err := r.findOne(ctx, bson.M{"username": identifier})
	if !errors.Is(err, store.ErrNotFound) {
		return user, err
	}
	return r.findOne(ctx, bson.M{"email": strings.ToLower(identifier)})
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	total, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	users := make([]types.User, 0, limit)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, err
	}
	return users, int(total), nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	id, err := r.c.nextID(ctx, usersCollection)
	if err != nil {
		return types.User{}, err
	}
	now := time.Now()
	user.ID = int(id)
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, user); err != nil {
		return types.User{}, translateError(err)
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()
	user.Email = strings.ToLower(user.Email)

	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{
		"username":       user.Username,
		"email":          user.Email,
		"password_hash":  user.PasswordHash,
		"first_name":     user.FirstName,
		"last_name":      user.LastName,
		"rank":           user.Rank,
		"service_number": user.ServiceNumber,
		"role":           user.Role,
		"unit":           user.Unit,
		"location":       user.Location,
		"phone_number":   user.PhoneNumber,
		"updated_at":     user.UpdatedAt,
	}})
	if err != nil {
		return types.User{}, translateError(err)
	}
	if result.MatchedCount == 0 {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int, at time.Time) error {
	return r.set(ctx, id, bson.M{"last_login": at})
}

func (r *UserRepository) SetActive(ctx context.Context, id int, active bool) error {
	return r.set(ctx, id, bson.M{"is_active": active, "updated_at": time.Now()})
}

func (r *UserRepository) set(ctx context.Context, id int, fields bson.M) error {
	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
