// Package session holds the per-tab view of conversations: which chat is
// visible, each chat's message sequence, and the single pending (optimistic,
// unacknowledged) message per chat.
package session

import (
	"errors"
	"sync"

	"chatsync-backend/internal/models"

	"github.com/google/uuid"
)

// ErrPendingExists rejects a second submission while one is outstanding for
// the same chat. The caller may retry once the first resolves.
var ErrPendingExists = errors.New("a message is already pending for this chat")

type chatEntry struct {
	messages      []models.Message
	loaded        bool
	loading       bool
	loadErr       error
	epoch         uint64
	needsResponse bool
}

// Session is safe for concurrent use; history loads complete from other
// goroutines than the one switching chats.
type Session struct {
	mu      sync.Mutex
	active  uuid.UUID
	chats   map[uuid.UUID]*chatEntry
	pending map[uuid.UUID]*models.Message
	epoch   uint64
}

func New() *Session {
	return &Session{
		chats:   make(map[uuid.UUID]*chatEntry),
		pending: make(map[uuid.UUID]*models.Message),
	}
}

func (s *Session) entry(chatID uuid.UUID) *chatEntry {
	e, ok := s.chats[chatID]
	if !ok {
		e = &chatEntry{}
		s.chats[chatID] = e
	}
	return e
}

// SetActiveChat switches the visible conversation. If the chat's history is
// already in memory the swap is instant and needsLoad is false. Otherwise the
// caller must fetch the history and hand it back through CompleteLoad with
// the returned epoch; a fetch that resolves after another switch is simply
// discarded by the epoch check.
func (s *Session) SetActiveChat(chatID uuid.UUID) (needsLoad bool, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = chatID
	if chatID == uuid.Nil {
		return false, 0
	}

	e := s.entry(chatID)
	if e.loaded {
		return false, 0
	}

	s.epoch++
	e.epoch = s.epoch
	e.loading = true
	e.loadErr = nil
	return true, s.epoch
}

// CompleteLoad installs a fetched history. Results for a superseded epoch are
// dropped so a slow fetch can never clobber a later switch back to the chat.
// A fetch error leaves the chat with an empty sequence and the error flag set.
func (s *Session) CompleteLoad(chatID uuid.UUID, epoch uint64, messages []models.Message, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.chats[chatID]
	if !ok || e.epoch != epoch {
		return // stale result
	}
	e.loading = false
	if err != nil {
		e.loadErr = err
		e.messages = nil
		e.loaded = false
		return
	}

	e.messages = messages
	// re-apply the optimistic tail if one was appended while loading
	if p, ok := s.pending[chatID]; ok {
		e.messages = append(e.messages, *p)
	}
	e.loaded = true
	e.loadErr = nil
}

func (s *Session) ActiveChat() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Messages returns a snapshot of the chat's sequence and whether history has
// been loaded. The snapshot is always the persisted sequence, or that
// sequence plus exactly one optimistic tail.
func (s *Session) Messages(chatID uuid.UUID) ([]models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.chats[chatID]
	if !ok {
		return nil, false
	}
	out := make([]models.Message, len(e.messages))
	copy(out, e.messages)
	return out, e.loaded
}

func (s *Session) Loading(chatID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.chats[chatID]
	return ok && e.loading
}

func (s *Session) LoadError(chatID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	return e.loadErr
}

// AppendOptimistic appends the message to the in-memory sequence and records
// it in the single pending slot for the chat. Returns ErrPendingExists if
// the slot is already occupied.
func (s *Session) AppendOptimistic(chatID uuid.UUID, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[chatID]; exists {
		return ErrPendingExists
	}

	e := s.entry(chatID)
	e.messages = append(e.messages, msg)
	e.needsResponse = true
	s.pending[chatID] = &msg
	return nil
}

// Pending returns the chat's outstanding optimistic message, if any.
func (s *Session) Pending(chatID uuid.UUID) (*models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[chatID]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// ClearPending removes the pending marker once the response is reconciled.
// The optimistic message itself stays in the sequence.
func (s *Session) ClearPending(chatID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, chatID)
	if e, ok := s.chats[chatID]; ok {
		e.needsResponse = false
	}
}

func (s *Session) NeedsResponse(chatID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.chats[chatID]
	return ok && e.needsResponse
}

// MergeAssistant appends the completed assistant message to the sequence.
// Part of reconciliation, called before ClearPending.
func (s *Session) MergeAssistant(chatID uuid.UUID, msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(chatID)
	e.messages = append(e.messages, msg)
}

// DropChat forgets a chat's local state, e.g. after whole-chat delete.
func (s *Session) DropChat(chatID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, chatID)
	delete(s.pending, chatID)
	if s.active == chatID {
		s.active = uuid.Nil
	}
}
