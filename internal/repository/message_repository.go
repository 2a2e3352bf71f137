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

const MessageCollection = "messages"

var ErrMessageNotFound = errors.New("message not found")

type MessageRepository interface {
	Create(ctx context.Context, message entity.Message) (entity.Message, error)
	Get(ctx context.Context, messageId string) (entity.Message, error)
	GetByChatId(ctx context.Context, chatId string) ([]entity.Message, error)
	GetUnread(ctx context.Context, chatId, readerId string) ([]entity.Message, error)
	CountUnread(ctx context.Context, chatId, readerId string) (int64, error)
	MarkRead(ctx context.Context, chatId, readerId string, at time.Time) (int64, error)
	MarkDelivered(ctx context.Context, messageId string, at time.Time) error
	DeleteByChatId(ctx context.Context, chatId string) error
}

type messageRepository struct {
	db mongo.Database
}

func NewMessageRepository(db mongo.Database) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

// Create stores a message. Ids are UUIDv7 so that _id order follows insertion
// order and breaks createdAt ties.
func (r *messageRepository) Create(ctx context.Context, message entity.Message) (entity.Message, error) {
	collection := r.db.Collection(MessageCollection)
	if message.Id == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return entity.Message{}, err
		}
		message.Id = id.String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	_, err := collection.InsertOne(ctx, message)
	if err != nil {
		return entity.Message{}, err
	}

	return message, nil
}

func (r *messageRepository) Get(ctx context.Context, messageId string) (entity.Message, error) {
	collection := r.db.Collection(MessageCollection)

	var message entity.Message
	err := collection.FindOne(ctx, bson.M{"_id": messageId}).Decode(&message)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entity.Message{}, ErrMessageNotFound
		}
		return entity.Message{}, err
	}

	return message, nil
}

// GetByChatId returns the full history of a chat, oldest first
func (r *messageRepository) GetByChatId(ctx context.Context, chatId string) ([]entity.Message, error) {
	return r.find(ctx, bson.M{"chatId": chatId})
}

// GetUnread returns messages in the chat that readerId has not read and did not send
func (r *messageRepository) GetUnread(ctx context.Context, chatId, readerId string) ([]entity.Message, error) {
	return r.find(ctx, unreadFilter(chatId, readerId))
}

func (r *messageRepository) CountUnread(ctx context.Context, chatId, readerId string) (int64, error) {
	collection := r.db.Collection(MessageCollection)
	return collection.CountDocuments(ctx, unreadFilter(chatId, readerId))
}

func (r *messageRepository) MarkRead(ctx context.Context, chatId, readerId string, at time.Time) (int64, error) {
	collection := r.db.Collection(MessageCollection)
	update := bson.M{"$set": bson.M{"read": at}}

	result, err := collection.UpdateMany(ctx, unreadFilter(chatId, readerId), update)
	if err != nil {
		return 0, err
	}

	return result.ModifiedCount, nil
}

// MarkDelivered sets the delivered timestamp once; later calls keep the first value
func (r *messageRepository) MarkDelivered(ctx context.Context, messageId string, at time.Time) error {
	collection := r.db.Collection(MessageCollection)
	filter := bson.M{"_id": messageId, "delivered": nil}
	update := bson.M{"$set": bson.M{"delivered": at}}

	_, err := collection.UpdateOne(ctx, filter, update)
	return err
}

func (r *messageRepository) DeleteByChatId(ctx context.Context, chatId string) error {
	collection := r.db.Collection(MessageCollection)
	_, err := collection.DeleteMany(ctx, bson.M{"chatId": chatId})
	return err
}

func (r *messageRepository) find(ctx context.Context, filter bson.M) ([]entity.Message, error) {
	collection := r.db.Collection(MessageCollection)
	opts := options.Find().SetSort(bson.D{
		{Key: "createdAt", Value: 1},
		{Key: "_id", Value: 1},
	})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	messages := []entity.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

func unreadFilter(chatId, readerId string) bson.M {
	return bson.M{
		"chatId":   chatId,
		"senderId": bson.M{"$ne": readerId},
		"read":     nil,
	}
}
