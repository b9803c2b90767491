// Package mongostore persists users and sessions in MongoDB. Sessions are
// kept in their own collection keyed by token hash rather than embedded in
// the user document, so session writes never rewrite the user.
package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/mto-maintenance/apiserver/config"
	"github.com/mto-maintenance/apiserver/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection    = "users"
	sessionsCollection = "user_sessions"
	countersCollection = "counters"

	defaultConnectTimeout = 10 * time.Second
	defaultMaxPoolSize    = 25
)

// Client wraps a connected MongoDB client and the configured database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB, pings it, and makes sure the indexes exist.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(defaultMaxPoolSize)

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	cli, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(connectCtx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}

	c := &Client{client: cli, db: cli.Database(cfg.Database)}
	if err := c.EnsureIndexes(connectCtx); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return c, nil
}

// EnsureIndexes creates the unique and lookup indexes the repositories rely on.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
	}

	if _, err := c.db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		unique("username"),
		unique("email"),
		unique("service_number"),
	}); err != nil {
		return err
	}

	_, err := c.db.Collection(sessionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		unique("token_hash"),
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

func (c *Client) Users() *UserRepository {
	return &UserRepository{c: c, coll: c.db.Collection(usersCollection)}
}

func (c *Client) Sessions() *SessionRepository {
	return &SessionRepository{
		coll:  c.db.Collection(sessionsCollection),
		users: c.db.Collection(usersCollection),
		c:     c,
	}
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// nextID hands out sequential ids per counter name.
func (c *Client) nextID(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := c.db.Collection(countersCollection).FindOneAndUpdate(
		ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

func translateError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrConflict
	}
	return err
}
