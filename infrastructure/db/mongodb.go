package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	Client *mongo.Client
	DB     *mongo.Database
}

func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongodb uri required (set MONGODB_URI)")
	}
	if dbName == "" {
		return nil, errors.New("database name required (set MONGODB_DATABASE)")
	}

	clientOpts := options.Client().ApplyURI(uri).
		SetMaxPoolSize(100)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, err
	}

	store := &MongoStore{
		Client: client,
		DB:     client.Database(dbName),
	}
	return store, nil
}

// EnsureIndexes creates the indexes the chat and message stores rely on:
// one chat per unordered user pair, and ordered history reads per chat.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	chats := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pairKey", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_pair"),
		},
		{Keys: bson.D{{Key: "user1", Value: 1}, {Key: "lastMessageAt", Value: -1}}},
		{Keys: bson.D{{Key: "user2", Value: 1}, {Key: "lastMessageAt", Value: -1}}},
	}
	if _, err := m.DB.Collection("chats").Indexes().CreateMany(indexCtx, chats); err != nil {
		return fmt.Errorf("create chat indexes: %w", err)
	}

	messages := []mongo.IndexModel{
		{Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "read", Value: 1}}},
	}
	if _, err := m.DB.Collection("messages").Indexes().CreateMany(indexCtx, messages); err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}

	return nil
}

func (m *MongoStore) Close(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}
	disconnectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.Client.Disconnect(disconnectCtx)
}

func (m *MongoStore) Ping(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return errors.New("mongo client is nil")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.Client.Ping(pingCtx, nil)
}
