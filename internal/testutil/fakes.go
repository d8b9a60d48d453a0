package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

const fakeDim = 64

// FakeEmbedder maps texts to normalised bag-of-words vectors, so texts that
// share words are close and texts that share none are orthogonal-ish.
type FakeEmbedder struct {
	mu    sync.Mutex
	Err   error
	Calls int
}

func (f *FakeEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	f.mu.Lock()
	f.Calls++
	err := f.Err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, FakeVector(text))
	}
	return out, nil
}

func (f *FakeEmbedder) ModelName() string { return "fake-embed" }

func FakeVector(text string) []float32 {
	vec := make([]float32, fakeDim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%fakeDim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

// FakeGenerator echoes a fixed answer and records the last call.
type FakeGenerator struct {
	mu         sync.Mutex
	Answer     string
	Err        error
	Calls      int
	LastSystem string
	LastPrompt string
}

func (f *FakeGenerator) Complete(ctx context.Context, system string, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	f.LastSystem = system
	f.LastPrompt = prompt
	if f.Err != nil {
		return "", f.Err
	}
	return f.Answer, nil
}

// MemoryConversationStore mirrors repo.ConversationStore in memory.
type MemoryConversationStore struct {
	mu       sync.Mutex
	nextConv int64
	nextMsg  int64
	convs    map[int64]*model.Conversation
	msgs     map[int64][]model.Message
	lookups  int
	// FailWrites makes every write fail with this error.
	FailWrites error
}

func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{
		convs: make(map[int64]*model.Conversation),
		msgs:  make(map[int64][]model.Message),
	}
}

func (s *MemoryConversationStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.createLocked(conv)
	return nil
}

func (s *MemoryConversationStore) createLocked(conv *model.Conversation) {
	s.nextConv++
	conv.ID = s.nextConv
	cp := *conv
	s.convs[conv.ID] = &cp
}

func (s *MemoryConversationStore) GetConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	conv, ok := s.convs[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

// Lookups counts GetConversation calls.
func (s *MemoryConversationStore) Lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func (s *MemoryConversationStore) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Conversation, 0)
	for id, conv := range s.convs {
		if conv.UserID == userID && len(s.msgs[id]) > 0 {
			out = append(out, *conv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryConversationStore) UpdateTitleIfDefault(ctx context.Context, id int64, title string, now int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return false, s.FailWrites
	}
	return s.retitleLocked(id, title, now), nil
}

func (s *MemoryConversationStore) retitleLocked(id int64, title string, now int64) bool {
	conv, ok := s.convs[id]
	if !ok || conv.Title != model.DefaultConversationTitle {
		return false
	}
	conv.Title = title
	conv.UpdatedAt = now
	return true
}

func (s *MemoryConversationStore) Touch(ctx context.Context, id int64, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	conv, ok := s.convs[id]
	if !ok {
		return appErr.ErrNotFound
	}
	conv.UpdatedAt = now
	return nil
}

func (s *MemoryConversationStore) DeleteConversation(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	if _, ok := s.convs[id]; !ok {
		return appErr.ErrNotFound
	}
	delete(s.convs, id)
	delete(s.msgs, id)
	return nil
}

func (s *MemoryConversationStore) AppendMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	if _, ok := s.convs[msg.ConversationID]; !ok {
		return appErr.ErrNotFound
	}
	s.appendLocked(msg)
	return nil
}

func (s *MemoryConversationStore) appendLocked(msg *model.Message) {
	s.nextMsg++
	msg.ID = s.nextMsg
	s.msgs[msg.ConversationID] = append(s.msgs[msg.ConversationID], *msg)
}

func (s *MemoryConversationStore) ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.msgs[conversationID]))
	copy(out, s.msgs[conversationID])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out, nil
}

func (s *MemoryConversationStore) RecordTurn(ctx context.Context, conversationID int64, candidateTitle string, msgs []*model.Message, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	conv, ok := s.convs[conversationID]
	if !ok {
		return appErr.ErrNotFound
	}
	if candidateTitle != "" {
		s.retitleLocked(conversationID, candidateTitle, now)
	}
	for _, msg := range msgs {
		msg.ConversationID = conversationID
		s.appendLocked(msg)
	}
	conv.UpdatedAt = now
	return nil
}

func (s *MemoryConversationStore) CreateWithMessages(ctx context.Context, conv *model.Conversation, msgs []*model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.createLocked(conv)
	for _, msg := range msgs {
		msg.ConversationID = conv.ID
		s.appendLocked(msg)
	}
	return nil
}

// ConversationCount counts conversations of any user, including empty ones.
func (s *MemoryConversationStore) ConversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

// MessageCount counts messages across all conversations.
func (s *MemoryConversationStore) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, msgs := range s.msgs {
		n += len(msgs)
	}
	return n
}
