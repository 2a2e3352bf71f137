package entity

import "time"

// Chat is a one-to-one conversation. PairKey holds both participant ids in
// sorted order so the store can keep a single chat per unordered pair.
type Chat struct {
	Id            string    `bson:"_id" json:"id"`
	User1         string    `bson:"user1" json:"user1"`
	User2         string    `bson:"user2" json:"user2"`
	PairKey       string    `bson:"pairKey" json:"-"`
	LastMessageAt time.Time `bson:"lastMessageAt" json:"lastMessageAt"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
}

// ChatSummary is a chat as seen from one participant's chat list.
type ChatSummary struct {
	Chat
	Partner     string `json:"partner"`
	UnreadCount int64  `json:"unreadCount"`
}

type CreateChatRequest struct {
	User1 string `json:"user1"`
	User2 string `json:"user2"`
}

func PairKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}

func (c Chat) HasParticipant(userId string) bool {
	return userId != "" && (c.User1 == userId || c.User2 == userId)
}

// Partner returns the other participant, or an empty string when userId is
// not part of the chat.
func (c Chat) Partner(userId string) string {
	switch userId {
	case c.User1:
		return c.User2
	case c.User2:
		return c.User1
	}
	return ""
}
