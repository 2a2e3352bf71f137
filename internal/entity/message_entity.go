package entity

import "time"

type Message struct {
	Id        string     `bson:"_id" json:"id"`
	ChatId    string     `bson:"chatId" json:"chat"`
	SenderId  string     `bson:"senderId" json:"sender"`
	Content   string     `bson:"content,omitempty" json:"content,omitempty"`
	ImageRef  string     `bson:"imageRef,omitempty" json:"imageRef,omitempty"`
	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
	Delivered *time.Time `bson:"delivered" json:"delivered"`
	Read      *time.Time `bson:"read" json:"read"`
}

type SendMessageRequest struct {
	ChatId   string `json:"chat"`
	SenderId string `json:"sender"`
	Content  string `json:"content,omitempty"`
	ImageRef string `json:"imageRef,omitempty"`
}

// ReadReceipt describes a markRead call that stamped messages in a chat.
type ReadReceipt struct {
	ChatId string    `json:"chat"`
	UserId string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
	Count  int64     `json:"count"`
}
