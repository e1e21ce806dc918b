package memory

import (
	"context"
	"sync"
	"time"

	"github.com/99minutos/accounts-service/internal/core/domain"
	"github.com/99minutos/accounts-service/internal/core/ports"
)

const subscriberBuffer = 16

type session struct {
	uid       string
	expiresAt time.Time
}

// SessionStore is a ports.SessionStore and ports.SessionNotifier kept in
// process memory. Expired sessions are dropped lazily on lookup.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]session
	subs     map[string]map[*subscription]struct{}
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]session),
		subs:     make(map[string]map[*subscription]struct{}),
		now:      time.Now,
	}
}

func (s *SessionStore) Save(_ context.Context, sessionID, uid string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = session{uid: uid, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *SessionStore) Lookup(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return "", nil
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.sessions, sessionID)
		return "", nil
	}
	return sess.uid, nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// Len reports the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// Publish delivers event to every subscriber of event.UID. Slow subscribers
// whose buffer is full miss the event.
func (s *SessionStore) Publish(_ context.Context, event domain.SessionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs[event.UID] {
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

func (s *SessionStore) Subscribe(ctx context.Context, uid string) (ports.Subscription, error) {
	sub := &subscription{
		ch:   make(chan domain.SessionEvent, subscriberBuffer),
		done: make(chan struct{}),
	}
	sub.cancel = func() { s.unsubscribe(uid, sub) }

	s.mu.Lock()
	if s.subs[uid] == nil {
		s.subs[uid] = make(map[*subscription]struct{})
	}
	s.subs[uid][sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.done:
		}
	}()

	return sub, nil
}

func (s *SessionStore) unsubscribe(uid string, sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[uid][sub]; !ok {
		return
	}
	delete(s.subs[uid], sub)
	if len(s.subs[uid]) == 0 {
		delete(s.subs, uid)
	}
	close(sub.ch)
}

type subscription struct {
	ch     chan domain.SessionEvent
	done   chan struct{}
	once   sync.Once
	cancel func()
}

func (s *subscription) Events() <-chan domain.SessionEvent {
	return s.ch
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		close(s.done)
	})
}
