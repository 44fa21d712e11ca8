package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/faqchat/internal/model"
	appErr "github.com/xxxsen/faqchat/internal/pkg/errors"
)

const titleMaxRunes = 100

type Option func(*Manager)

// WithMaxMessages caps each session, older messages are dropped first.
func WithMaxMessages(n int) Option {
	return func(m *Manager) {
		m.maxMessages = n
	}
}

// WithRetention drops messages older than d on append and prune.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		m.retention = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

type entry struct {
	mu      sync.Mutex
	deleted bool
	session model.ChatSession
}

// Manager keeps chat sessions in memory. Writes to one session are
// serialized by that session's lock, different sessions never contend
// beyond the map lookup.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*entry
	maxMessages int
	retention   time.Duration
	now         func() time.Time
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func NewSessionID() string {
	return uuid.NewString()
}

// GetOrCreate returns a copy of the session, creating it when absent. An
// empty id creates a session with a generated id.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (model.ChatSession, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = NewSessionID()
	}
	e := m.lookup(id, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneSession(&e.session), nil
}

// Append adds messages to the end of the session in the given order.
func (m *Manager) Append(ctx context.Context, id string, msgs ...model.ChatMessage) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: session id is required", appErr.ErrInvalid)
	}
	for {
		e := m.lookup(id, true)
		e.mu.Lock()
		if e.deleted {
			e.mu.Unlock()
			continue
		}
		now := m.now()
		for _, msg := range msgs {
			if msg.Timestamp == 0 {
				msg.Timestamp = now.Unix()
			}
			if e.session.Title == "" && msg.Role == model.RoleUser {
				e.session.Title = buildTitle(msg.Content)
			}
			e.session.Messages = append(e.session.Messages, msg)
		}
		e.session.UpdatedAt = now.Unix()
		dropped := m.trimLocked(&e.session, now)
		e.mu.Unlock()
		if dropped > 0 {
			logutil.GetLogger(ctx).Debug("session trimmed", zap.String("session_id", id), zap.Int("dropped", dropped))
		}
		return nil
	}
}

// Recent returns the last limit messages in chronological order.
func (m *Manager) Recent(ctx context.Context, id string, limit int) ([]model.ChatMessage, error) {
	e := m.lookup(id, false)
	if e == nil {
		return []model.ChatMessage{}, fmt.Errorf("%w: session %s", appErr.ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	msgs := e.session.Messages
	if limit >= 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]model.ChatMessage{}, msgs...), nil
}

func (m *Manager) History(ctx context.Context, id string) ([]model.ChatMessage, error) {
	return m.Recent(ctx, id, -1)
}

func (m *Manager) Get(ctx context.Context, id string) (model.ChatSession, error) {
	e := m.lookup(id, false)
	if e == nil {
		return model.ChatSession{}, fmt.Errorf("%w: session %s", appErr.ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneSession(&e.session), nil
}

// List returns summaries ordered by last update, newest first.
func (m *Manager) List(ctx context.Context) []model.ChatSessionSummary {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.RUnlock()
	out := make([]model.ChatSessionSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			out = append(out, model.ChatSessionSummary{
				ID:           e.session.ID,
				Title:        e.session.Title,
				MessageCount: len(e.session.Messages),
				CreatedAt:    e.session.CreatedAt,
				UpdatedAt:    e.session.UpdatedAt,
			})
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Delete removes the session. A missing session reports ErrNotFound.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: session %s", appErr.ErrNotFound, id)
	}
	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	return nil
}

// Prune applies the retention window and message cap to every session and
// drops sessions left without messages that have been idle past retention.
func (m *Manager) Prune(ctx context.Context) (int, int) {
	now := m.now()
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	removed, trimmed := 0, 0
	for _, id := range ids {
		e := m.lookup(id, false)
		if e == nil {
			continue
		}
		e.mu.Lock()
		trimmed += m.trimLocked(&e.session, now)
		idle := m.retention > 0 && len(e.session.Messages) == 0 && e.session.UpdatedAt < now.Add(-m.retention).Unix()
		e.mu.Unlock()
		if idle && m.removeIfIdle(id, e, now) {
			removed++
		}
	}
	if removed > 0 || trimmed > 0 {
		logutil.GetLogger(ctx).Info("sessions pruned", zap.Int("removed", removed), zap.Int("trimmed_messages", trimmed))
	}
	return removed, trimmed
}

func (m *Manager) removeIfIdle(id string, e *entry, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] != e {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.session.Messages) > 0 || e.session.UpdatedAt >= now.Add(-m.retention).Unix() {
		return false
	}
	e.deleted = true
	delete(m.sessions, id)
	return true
}

func (m *Manager) lookup(id string, create bool) *entry {
	m.mu.RLock()
	e := m.sessions[id]
	m.mu.RUnlock()
	if e != nil || !create {
		return e
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e = m.sessions[id]; e != nil {
		return e
	}
	now := m.now().Unix()
	e = &entry{session: model.ChatSession{
		ID:        id,
		Messages:  []model.ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}}
	m.sessions[id] = e
	return e
}

// trimLocked drops messages from the head only, the remaining order is
// untouched.
func (m *Manager) trimLocked(s *model.ChatSession, now time.Time) int {
	drop := 0
	if m.retention > 0 {
		cutoff := now.Add(-m.retention).Unix()
		for drop < len(s.Messages) && s.Messages[drop].Timestamp < cutoff {
			drop++
		}
	}
	if m.maxMessages > 0 && len(s.Messages)-drop > m.maxMessages {
		drop = len(s.Messages) - m.maxMessages
	}
	if drop == 0 {
		return 0
	}
	s.Messages = append([]model.ChatMessage{}, s.Messages[drop:]...)
	return drop
}

func buildTitle(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= titleMaxRunes {
		return content
	}
	return string(runes[:titleMaxRunes]) + "..."
}

func cloneSession(s *model.ChatSession) model.ChatSession {
	out := *s
	out.Messages = append([]model.ChatMessage{}, s.Messages...)
	return out
}
