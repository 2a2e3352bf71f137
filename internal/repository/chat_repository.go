package repository

import (
	"context"
	"errors"
	"time"

	"linguaconnect/internal/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ChatCollection = "chats"

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrChatExists   = errors.New("chat between these users already exists")
)

type ChatRepository interface {
	Index(ctx context.Context, userId string) ([]entity.Chat, error)
	Get(ctx context.Context, chatId string) (entity.Chat, error)
	GetByPair(ctx context.Context, userA, userB string) (entity.Chat, error)
	Create(ctx context.Context, chat entity.Chat) (entity.Chat, error)
	TouchLastMessage(ctx context.Context, chatId string, at time.Time) error
	Delete(ctx context.Context, chatId string) error
}

type chatRepository struct {
	db mongo.Database
}

func NewChatRepository(db mongo.Database) ChatRepository {
	return &chatRepository{
		db: db,
	}
}

// Index returns the chats a user participates in, most recently active first
func (r *chatRepository) Index(ctx context.Context, userId string) ([]entity.Chat, error) {
	collection := r.db.Collection(ChatCollection)
	filter := bson.M{"$or": []bson.M{
		{"user1": userId},
		{"user2": userId},
	}}

	opts := options.Find().SetSort(bson.D{
		{Key: "lastMessageAt", Value: -1},
		{Key: "_id", Value: 1},
	})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	chats := []entity.Chat{}
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, err
	}

	return chats, nil
}

func (r *chatRepository) Get(ctx context.Context, chatId string) (entity.Chat, error) {
	return r.findOne(ctx, bson.M{"_id": chatId})
}

// GetByPair looks a chat up by its participants in either order
func (r *chatRepository) GetByPair(ctx context.Context, userA, userB string) (entity.Chat, error) {
	return r.findOne(ctx, bson.M{"pairKey": entity.PairKey(userA, userB)})
}

func (r *chatRepository) findOne(ctx context.Context, filter bson.M) (entity.Chat, error) {
	collection := r.db.Collection(ChatCollection)

	var chat entity.Chat
	err := collection.FindOne(ctx, filter).Decode(&chat)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entity.Chat{}, ErrChatNotFound
		}
		return entity.Chat{}, err
	}

	return chat, nil
}

// Create inserts a chat. The unique pairKey index turns a second chat for the
// same pair into ErrChatExists, including under concurrent creation.
func (r *chatRepository) Create(ctx context.Context, chat entity.Chat) (entity.Chat, error) {
	collection := r.db.Collection(ChatCollection)
	if chat.Id == "" {
		chat.Id = uuid.New().String()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	if chat.LastMessageAt.IsZero() {
		chat.LastMessageAt = chat.CreatedAt
	}
	chat.PairKey = entity.PairKey(chat.User1, chat.User2)

	_, err := collection.InsertOne(ctx, chat)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return entity.Chat{}, ErrChatExists
		}
		return entity.Chat{}, err
	}

	return chat, nil
}

func (r *chatRepository) TouchLastMessage(ctx context.Context, chatId string, at time.Time) error {
	collection := r.db.Collection(ChatCollection)
	filter := bson.M{"_id": chatId, "lastMessageAt": bson.M{"$lt": at}}
	update := bson.M{"$set": bson.M{"lastMessageAt": at}}

	_, err := collection.UpdateOne(ctx, filter, update)
	return err
}

func (r *chatRepository) Delete(ctx context.Context, chatId string) error {
	collection := r.db.Collection(ChatCollection)

	result, err := collection.DeleteOne(ctx, bson.M{"_id": chatId})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrChatNotFound
	}

	return nil
}
