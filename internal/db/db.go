package db

import (
	"context"
	"errors"
	"time"

	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/cache"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/config"
	"github.com/TheMysteriousStranger90/TelegramBotForGitHub/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type DB struct {
	Client        *mongo.Client
	Database      *mongo.Database
	Tokens        *mongo.Collection
	AuthStates    *mongo.Collection
	Subscriptions *mongo.Collection
	DeliveryLog   *mongo.Collection
	Chats         *mongo.Collection

	ChatSubsCache *cache.Cache[int64, []models.Subscription]
}

func Connect(cfg *config.Config) (*DB, error) {
	clientOpts := options.Client().ApplyURI(cfg.MongoDBURI)
	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, err
	}

	database := client.Database(cfg.DatabaseName)

	d := &DB{
		Client:        client,
		Database:      database,
		Tokens:        database.Collection("tokens"),
		AuthStates:    database.Collection("auth_states"),
		Subscriptions: database.Collection("subscriptions"),
		DeliveryLog:   database.Collection("delivery_log"),
		Chats:         database.Collection("chats"),
		ChatSubsCache: cache.New[int64, []models.Subscription](),
	}

	if err := d.createIndexes(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *DB) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := d.Subscriptions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "repository_url", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = d.Subscriptions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "repository_url", Value: 1}, {Key: "active", Value: 1}},
	})
	if err != nil {
		return err
	}

	_, err = d.AuthStates.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "expires_at", Value: 1}},
	})
	return err
}

// --- OAuth tokens ---

func (d *DB) GetToken(ctx context.Context, userID int64) (*models.OAuthToken, error) {
	var token models.OAuthToken
	err := d.Tokens.FindOne(ctx, bson.M{"_id": userID}).Decode(&token)
	if err != nil {
		return nil, classify(err)
	}
	return &token, nil
}

// UpsertToken replaces the user's token record. A new authorization
// supersedes any previous token for that user.
func (d *DB) UpsertToken(ctx context.Context, token *models.OAuthToken) error {
	opts := options.UpdateOne().SetUpsert(true)
	filter := bson.M{"_id": token.UserID}
	update := bson.M{"$set": token}
	_, err := d.Tokens.UpdateOne(ctx, filter, update, opts)
	return classify(err)
}

// DeactivateToken marks the user's token inactive. History is retained.
func (d *DB) DeactivateToken(ctx context.Context, userID int64) error {
	filter := bson.M{"_id": userID}
	update := bson.M{"$set": bson.M{"active": false}}
	_, err := d.Tokens.UpdateOne(ctx, filter, update)
	return classify(err)
}

// --- Authorization states ---

func (d *DB) CreateAuthState(ctx context.Context, state *models.AuthState) error {
	_, err := d.AuthStates.InsertOne(ctx, state)
	return classify(err)
}

func (d *DB) GetAuthState(ctx context.Context, state string) (*models.AuthState, error) {
	var s models.AuthState
	err := d.AuthStates.FindOne(ctx, bson.M{"_id": state}).Decode(&s)
	if err != nil {
		return nil, classify(err)
	}
	return &s, nil
}

// ConsumeAuthState atomically flips used from false to true, provided the
// state has not expired. The conditional update is what makes concurrent
// duplicate callbacks safe: only one of them can match used=false.
// Returns ErrNotFound when no unused, unexpired state matched; the caller
// fetches the record to tell "missing" from "used" from "expired".
func (d *DB) ConsumeAuthState(ctx context.Context, state string, now time.Time) (*models.AuthState, error) {
	filter := bson.M{
		"_id":        state,
		"used":       false,
		"expires_at": bson.M{"$gt": now},
	}
	update := bson.M{"$set": bson.M{"used": true}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var s models.AuthState
	err := d.AuthStates.FindOneAndUpdate(ctx, filter, update, opts).Decode(&s)
	if err != nil {
		return nil, classify(err)
	}
	return &s, nil
}

// DeleteExpiredAuthStates removes states past their expiry. Hygienic only;
// correctness never depends on it.
func (d *DB) DeleteExpiredAuthStates(ctx context.Context, now time.Time) (int64, error) {
	res, err := d.AuthStates.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, classify(err)
	}
	return res.DeletedCount, nil
}

// --- Subscriptions ---

func (d *DB) GetSubscription(ctx context.Context, chatID int64, repositoryURL string) (*models.Subscription, error) {
	var sub models.Subscription
	filter := bson.M{"chat_id": chatID, "repository_url": repositoryURL}
	err := d.Subscriptions.FindOne(ctx, filter).Decode(&sub)
	if err != nil {
		return nil, classify(err)
	}
	return &sub, nil
}

func (d *DB) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	_, err := d.Subscriptions.InsertOne(ctx, sub)
	d.ChatSubsCache.Delete(sub.ChatID)
	return classify(err)
}

// UpdateSubscription rewrites the mutable fields of an existing record,
// addressed by its natural key.
func (d *DB) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	filter := bson.M{"chat_id": sub.ChatID, "repository_url": sub.RepositoryURL}
	update := bson.M{"$set": bson.M{
		"events":     sub.Events,
		"active":     sub.Active,
		"updated_at": sub.UpdatedAt,
	}}
	res, err := d.Subscriptions.UpdateOne(ctx, filter, update)
	if err != nil {
		return classify(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	d.ChatSubsCache.Delete(sub.ChatID)
	return nil
}

// GetChatSubscriptions returns all of a chat's subscriptions, active or not.
func (d *DB) GetChatSubscriptions(ctx context.Context, chatID int64) ([]models.Subscription, error) {
	if cached, ok := d.ChatSubsCache.Get(chatID); ok {
		return cached, nil
	}

	cursor, err := d.Subscriptions.Find(ctx, bson.M{"chat_id": chatID})
	if err != nil {
		return nil, classify(err)
	}

	var subs []models.Subscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, classify(err)
	}

	d.ChatSubsCache.Set(chatID, subs, 30*time.Minute)
	return subs, nil
}

// GetActiveSubscriptionsForRepo returns every active subscription for a
// repository URL. This is the dispatcher's fan-out query.
func (d *DB) GetActiveSubscriptionsForRepo(ctx context.Context, repositoryURL string) ([]models.Subscription, error) {
	filter := bson.M{"repository_url": repositoryURL, "active": true}
	cursor, err := d.Subscriptions.Find(ctx, filter)
	if err != nil {
		return nil, classify(err)
	}

	var subs []models.Subscription
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, classify(err)
	}
	return subs, nil
}

// --- Delivery log ---

func (d *DB) LogDelivery(ctx context.Context, entry *models.DeliveryLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := d.DeliveryLog.InsertOne(ctx, entry)
	return classify(err)
}

func (d *DB) GetChatDeliveries(ctx context.Context, chatID int64, limit int64) ([]models.DeliveryLogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cursor, err := d.DeliveryLog.Find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, classify(err)
	}

	var entries []models.DeliveryLogEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, classify(err)
	}
	return entries, nil
}

// --- Chats ---

func (d *DB) UpsertChat(ctx context.Context, chat *models.Chat) error {
	opts := options.UpdateOne().SetUpsert(true)
	filter := bson.M{"_id": chat.ID}
	update := bson.M{
		"$set": bson.M{
			"title":     chat.Title,
			"chat_type": chat.ChatType,
		},
	}
	_, err := d.Chats.UpdateOne(ctx, filter, update, opts)
	return classify(err)
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
