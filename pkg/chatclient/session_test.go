package chatclient

import (
	"testing"
	"time"

	"linguaconnect/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func chatIds(chats []entity.ChatSummary) []string {
	ids := make([]string, len(chats))
	for i, c := range chats {
		ids[i] = c.Id
	}
	return ids
}

func seededSession() *Session {
	s := NewSession("alice")
	s.SetChats([]entity.ChatSummary{
		{Chat: entity.Chat{Id: "c-carol", User1: "alice", User2: "carol", LastMessageAt: t0}, Partner: "carol"},
		{Chat: entity.Chat{Id: "c-bob", User1: "alice", User2: "bob", LastMessageAt: t0.Add(time.Minute)}, Partner: "bob"},
	})
	return s
}

func TestSession_SetChatsOrdersByActivity(t *testing.T) {
	s := seededSession()
	assert.Equal(t, []string{"c-bob", "c-carol"}, chatIds(s.Chats()))
}

func TestSession_NewMessageForClosedChat(t *testing.T) {
	s := seededSession()

	readDue := s.ApplyNewMessage(entity.Message{Id: "m1", ChatId: "c-carol", SenderId: "carol", Content: "hola", CreatedAt: t0.Add(2 * time.Minute)})
	assert.False(t, readDue)

	chats := s.Chats()
	assert.Equal(t, []string{"c-carol", "c-bob"}, chatIds(chats))
	assert.Equal(t, int64(1), chats[0].UnreadCount)
	assert.Equal(t, t0.Add(2*time.Minute), chats[0].LastMessageAt)
	assert.Empty(t, s.Messages())

	s.ApplyNewMessage(entity.Message{Id: "m2", ChatId: "c-carol", SenderId: "carol", Content: "¿qué tal?", CreatedAt: t0.Add(3 * time.Minute)})
	summary, ok := s.Chat("c-carol")
	require.True(t, ok)
	assert.Equal(t, int64(2), summary.UnreadCount)
}

func TestSession_OwnMessageDoesNotCountUnread(t *testing.T) {
	s := seededSession()

	s.ApplyNewMessage(entity.Message{Id: "m1", ChatId: "c-carol", SenderId: "alice", Content: "hi", CreatedAt: t0.Add(time.Hour)})

	chats := s.Chats()
	assert.Equal(t, "c-carol", chats[0].Id)
	assert.Zero(t, chats[0].UnreadCount)
}

func TestSession_UnknownChatGoesToTop(t *testing.T) {
	s := seededSession()

	s.ApplyNewMessage(entity.Message{Id: "m1", ChatId: "c-dave", SenderId: "dave", Content: "hallo", CreatedAt: t0.Add(time.Hour)})

	chats := s.Chats()
	require.Len(t, chats, 3)
	assert.Equal(t, "c-dave", chats[0].Id)
	assert.Equal(t, "dave", chats[0].Partner)
	assert.Equal(t, int64(1), chats[0].UnreadCount)
}

func TestSession_OpenClearsUnreadAndAppends(t *testing.T) {
	s := seededSession()
	s.ApplyNewMessage(entity.Message{Id: "m1", ChatId: "c-carol", SenderId: "carol", Content: "uno", CreatedAt: t0.Add(time.Minute)})

	s.Open("c-carol", []entity.Message{{Id: "m1", ChatId: "c-carol", SenderId: "carol", Content: "uno"}})
	summary, _ := s.Chat("c-carol")
	assert.Zero(t, summary.UnreadCount)
	assert.Equal(t, "c-carol", s.Current())

	readDue := s.ApplyNewMessage(entity.Message{Id: "m2", ChatId: "c-carol", SenderId: "carol", Content: "dos", CreatedAt: t0.Add(2 * time.Minute)})
	assert.True(t, readDue)
	summary, _ = s.Chat("c-carol")
	assert.Zero(t, summary.UnreadCount)

	// the same message again, e.g. from a second tab's ack
	assert.False(t, s.ApplyNewMessage(entity.Message{Id: "m2", ChatId: "c-carol", SenderId: "carol", Content: "dos"}))
	assert.False(t, s.ApplyNewMessage(entity.Message{Id: "m3", ChatId: "c-carol", SenderId: "alice", Content: "tres"}))

	messages := s.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, []string{"uno", "dos", "tres"}, []string{messages[0].Content, messages[1].Content, messages[2].Content})

	s.CloseChat()
	s.ApplyNewMessage(entity.Message{Id: "m4", ChatId: "c-carol", SenderId: "carol", Content: "cuatro", CreatedAt: t0.Add(3 * time.Minute)})
	summary, _ = s.Chat("c-carol")
	assert.Equal(t, int64(1), summary.UnreadCount)
}

func TestSession_ApplyReadReceipt(t *testing.T) {
	s := seededSession()
	earlier := t0.Add(-time.Hour)
	s.Open("c-bob", []entity.Message{
		{Id: "m1", ChatId: "c-bob", SenderId: "alice", Content: "one", Read: &earlier},
		{Id: "m2", ChatId: "c-bob", SenderId: "bob", Content: "two"},
		{Id: "m3", ChatId: "c-bob", SenderId: "alice", Content: "three"},
	})

	assert.Zero(t, s.ApplyReadReceipt("c-carol", "carol", t0), "receipts for other chats are ignored")
	assert.Equal(t, 1, s.ApplyReadReceipt("c-bob", "bob", t0))

	messages := s.Messages()
	assert.Equal(t, earlier, *messages[0].Read)
	assert.Nil(t, messages[1].Read)
	require.NotNil(t, messages[2].Read)
	assert.Equal(t, t0, *messages[2].Read)
}

func TestSession_AddChat(t *testing.T) {
	s := seededSession()

	s.AddChat(entity.Chat{Id: "c-dave", User1: "dave", User2: "alice"})
	s.AddChat(entity.Chat{Id: "c-bob", User1: "alice", User2: "bob"})

	chats := s.Chats()
	assert.Equal(t, []string{"c-dave", "c-bob", "c-carol"}, chatIds(chats))
	assert.Equal(t, "dave", chats[0].Partner)
}

func TestSession_ActiveUsers(t *testing.T) {
	s := NewSession("alice")
	s.SetActiveUsers([]string{"carol", "bob"})

	assert.True(t, s.IsActive("bob"))
	assert.False(t, s.IsActive("dave"))
	assert.Equal(t, []string{"bob", "carol"}, s.ActiveUsers())

	s.SetActiveUsers(nil)
	assert.Empty(t, s.ActiveUsers())
}

func TestSession_OpenKeepsMessagePushedDuringFetch(t *testing.T) {
	s := seededSession()
	m1 := entity.Message{Id: "m1", ChatId: "c-bob", SenderId: "bob", Content: "first", CreatedAt: t0}
	m2 := entity.Message{Id: "m2", ChatId: "c-bob", SenderId: "bob", Content: "second", CreatedAt: t0.Add(time.Second)}

	// m2 arrives after the history request was answered with m1 only
	s.ApplyNewMessage(m2)
	s.Open("c-bob", []entity.Message{m1})

	messages := s.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "m1", messages[0].Id)
	assert.Equal(t, "m2", messages[1].Id)
	summary, _ := s.Chat("c-bob")
	assert.Zero(t, summary.UnreadCount)

	// a fetch that already holds the pushed message does not double it
	s.CloseChat()
	s.ApplyNewMessage(m2)
	s.Open("c-bob", []entity.Message{m1, m2})
	assert.Len(t, s.Messages(), 2)

	// once opened, earlier pushes are not merged into later opens
	s.CloseChat()
	s.Open("c-bob", []entity.Message{m1})
	assert.Len(t, s.Messages(), 1)
}
