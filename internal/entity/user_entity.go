package entity

import "time"

type User struct {
	Id        string    `bson:"_id" json:"id"`
	Username  string    `bson:"username" json:"username"`
	Name      string    `bson:"name" json:"name"`
	IsActive  bool      `bson:"isActive" json:"isActive"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

type UserIndexFilter struct {
	Ids []string `bson:"ids"`
}
