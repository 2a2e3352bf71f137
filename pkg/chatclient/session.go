package chatclient

import (
	"sort"
	"sync"
	"time"

	"linguaconnect/internal/entity"
)

// Session is the local view of one user's chats: the chat list ordered by
// recent activity, the open chat with its messages, and the active users.
// It is safe for concurrent use.
type Session struct {
	mu       sync.RWMutex
	userId   string
	chats    []entity.ChatSummary // most recent first
	current  string
	messages []entity.Message
	active   map[string]struct{}

	// messages pushed for chats that are not open, kept until the chat is
	// opened so that a history fetch racing the push cannot lose them
	unseen map[string][]entity.Message
}

const maxUnseenPerChat = 200

func NewSession(userId string) *Session {
	return &Session{
		userId: userId,
		active: make(map[string]struct{}),
		unseen: make(map[string][]entity.Message),
	}
}

func (s *Session) UserId() string {
	return s.userId
}

// SetChats replaces the chat list with a fresh pull from the server. The
// open chat's counter stays cleared.
func (s *Session) SetChats(chats []entity.ChatSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chats = append([]entity.ChatSummary(nil), chats...)
	sort.SliceStable(s.chats, func(i, j int) bool {
		return s.chats[i].LastMessageAt.After(s.chats[j].LastMessageAt)
	})
	if i := s.indexOf(s.current); i >= 0 {
		s.chats[i].UnreadCount = 0
	}
}

func (s *Session) Chats() []entity.ChatSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entity.ChatSummary(nil), s.chats...)
}

// Chat returns the summary for chatId from the local list.
func (s *Session) Chat(chatId string) (entity.ChatSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(chatId); i >= 0 {
		return s.chats[i], true
	}
	return entity.ChatSummary{}, false
}

// AddChat puts a chat someone else started at the top of the list. Known
// chats are left where they are.
func (s *Session) AddChat(chat entity.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(chat.Id) >= 0 {
		return
	}
	s.chats = append([]entity.ChatSummary{{Chat: chat, Partner: chat.Partner(s.userId)}}, s.chats...)
}

// Open makes chatId the current chat with the given history and clears its
// unread counter. Messages pushed for the chat that the history does not
// hold yet are merged in by creation time. The caller is expected to report
// the chat as read.
func (s *Session) Open(chatId string, history []entity.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = chatId
	s.messages = append([]entity.Message(nil), history...)
	merged := false
	for _, msg := range s.unseen[chatId] {
		if !s.hasMessage(msg.Id) {
			s.messages = append(s.messages, msg)
			merged = true
		}
	}
	delete(s.unseen, chatId)
	if merged {
		sort.SliceStable(s.messages, func(i, j int) bool {
			return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
		})
	}

	if i := s.indexOf(chatId); i >= 0 {
		s.chats[i].UnreadCount = 0
	}
}

// CloseChat leaves the current chat; later messages for it count as unread.
func (s *Session) CloseChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = ""
	s.messages = nil
}

func (s *Session) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Session) Messages() []entity.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entity.Message(nil), s.messages...)
}

// ApplyNewMessage records a pushed or acknowledged message. The chat moves
// to the top of the list. A message for the open chat is appended; any
// other chat's unread counter grows when the message came from the partner.
// It reports whether the open chat now holds a partner message that should
// be marked read.
func (s *Session) ApplyNewMessage(msg entity.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromPartner := msg.SenderId != s.userId
	summary := entity.ChatSummary{
		Chat: entity.Chat{Id: msg.ChatId, User1: msg.SenderId},
	}
	if fromPartner {
		summary.User2 = s.userId
		summary.Partner = msg.SenderId
	}
	if i := s.indexOf(msg.ChatId); i >= 0 {
		summary = s.chats[i]
		s.chats = append(s.chats[:i], s.chats[i+1:]...)
	}
	if msg.CreatedAt.After(summary.LastMessageAt) {
		summary.LastMessageAt = msg.CreatedAt
	}

	readDue := false
	if msg.ChatId == s.current {
		if !s.hasMessage(msg.Id) {
			s.messages = append(s.messages, msg)
			readDue = fromPartner
		}
	} else {
		s.keepUnseen(msg)
		if fromPartner {
			summary.UnreadCount++
		}
	}

	s.chats = append([]entity.ChatSummary{summary}, s.chats...)
	return readDue
}

// ApplyReadReceipt stamps the open chat's messages that readerId received
// and had not read yet.
func (s *Session) ApplyReadReceipt(chatId, readerId string, readAt time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chatId != s.current {
		return 0
	}
	stamped := 0
	for i := range s.messages {
		m := &s.messages[i]
		if m.SenderId == readerId || m.Read != nil {
			continue
		}
		at := readAt
		m.Read = &at
		stamped++
	}
	return stamped
}

func (s *Session) SetActiveUsers(userIds []string) {
	active := make(map[string]struct{}, len(userIds))
	for _, id := range userIds {
		active[id] = struct{}{}
	}

	s.mu.Lock()
	s.active = active
	s.mu.Unlock()
}

func (s *Session) IsActive(userId string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.active[userId]
	return ok
}

func (s *Session) ActiveUsers() []string {
	s.mu.RLock()
	users := make([]string, 0, len(s.active))
	for id := range s.active {
		users = append(users, id)
	}
	s.mu.RUnlock()

	sort.Strings(users)
	return users
}

func (s *Session) indexOf(chatId string) int {
	if chatId == "" {
		return -1
	}
	for i := range s.chats {
		if s.chats[i].Id == chatId {
			return i
		}
	}
	return -1
}

func (s *Session) keepUnseen(msg entity.Message) {
	pending := append(s.unseen[msg.ChatId], msg)
	if len(pending) > maxUnseenPerChat {
		// older ones were stored before any later fetch and come with it
		pending = pending[len(pending)-maxUnseenPerChat:]
	}
	s.unseen[msg.ChatId] = pending
}

func (s *Session) hasMessage(messageId string) bool {
	for i := range s.messages {
		if s.messages[i].Id == messageId {
			return true
		}
	}
	return false
}
