package repository

import (
	"context"
	"errors"
	"time"

	"linguaconnect/internal/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const UserCollection = "users"

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	Get(ctx context.Context, userId string) (entity.User, error)
	Index(ctx context.Context, filter entity.UserIndexFilter) ([]entity.User, error)
	Create(ctx context.Context, user entity.User) (entity.User, error)
	SetActive(ctx context.Context, userId string, active bool) error
	ResetActive(ctx context.Context) error
}

type userRepository struct {
	db mongo.Database
}

func NewUserRepository(db mongo.Database) UserRepository {
	return &userRepository{
		db: db,
	}
}

func (r *userRepository) Get(ctx context.Context, userId string) (entity.User, error) {
	collection := r.db.Collection(UserCollection)
	filter := bson.M{"_id": userId}

	var user entity.User
	err := collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entity.User{}, ErrUserNotFound
		}
		return entity.User{}, err
	}

	return user, nil
}

func (r *userRepository) Index(ctx context.Context, filter entity.UserIndexFilter) ([]entity.User, error) {
	collection := r.db.Collection(UserCollection)

	cursor, err := collection.Find(ctx, bson.M{"_id": bson.M{"$in": filter.Ids}})
	if err != nil {
		return nil, err
	}

	users := []entity.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}

	return users, nil
}

func (r *userRepository) Create(ctx context.Context, user entity.User) (entity.User, error) {
	collection := r.db.Collection(UserCollection)
	if user.Id == "" {
		user.Id = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := collection.InsertOne(ctx, user)
	if err != nil {
		return entity.User{}, err
	}

	return user, nil
}

// SetActive only touches the isActive flag; the rest of the profile is owned elsewhere
func (r *userRepository) SetActive(ctx context.Context, userId string, active bool) error {
	collection := r.db.Collection(UserCollection)
	update := bson.M{"$set": bson.M{"isActive": active, "updatedAt": time.Now().UTC()}}

	result, err := collection.UpdateOne(ctx, bson.M{"_id": userId}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}

	return nil
}

// ResetActive marks every user inactive. Presence lives in memory, so nobody
// is connected when the process starts.
func (r *userRepository) ResetActive(ctx context.Context) error {
	collection := r.db.Collection(UserCollection)
	update := bson.M{"$set": bson.M{"isActive": false}}

	_, err := collection.UpdateMany(ctx, bson.M{"isActive": true}, update)
	return err
}
