package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/99minutos/accounts-service/internal/core/domain"
	"github.com/99minutos/accounts-service/internal/core/ports"
)

const (
	sessionKeyPrefix = "session:"
	stateChannelFmt  = "auth:state:%s"
	subscriberBuffer = 16
)

// SessionStore keeps issued sessions as TTL keys and publishes auth-state
// changes over pub/sub.
// Key format: session:<session_id> -> uid
type SessionStore struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewSessionStore creates a SessionStore wrapping the given Redis client.
func NewSessionStore(client *redis.Client, log zerolog.Logger) *SessionStore {
	return &SessionStore{client: client, log: log}
}

func (s *SessionStore) Save(ctx context.Context, sessionID, uid string, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionKeyPrefix+sessionID, uid, ttl).Err(); err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	return nil
}

// Lookup returns "" once the key expired or was deleted.
func (s *SessionStore) Lookup(ctx context.Context, sessionID string) (string, error) {
	uid, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session lookup: %w", err)
	}
	return uid, nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}

func (s *SessionStore) Publish(ctx context.Context, event domain.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode session event: %w", err)
	}
	if err := s.client.Publish(ctx, channel(event.UID), payload).Err(); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

// Subscribe listens on the uid's state channel until Unsubscribe is called
// or ctx is cancelled.
func (s *SessionStore) Subscribe(ctx context.Context, uid string) (ports.Subscription, error) {
	ps := s.client.Subscribe(ctx, channel(uid))
	// Wait for the subscription confirmation so no event published right
	// after Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", uid, err)
	}

	sub := &subscription{
		ps:   ps,
		ch:   make(chan domain.SessionEvent, subscriberBuffer),
		done: make(chan struct{}),
	}
	go sub.run(ctx, s.log)
	return sub, nil
}

func channel(uid string) string {
	return fmt.Sprintf(stateChannelFmt, uid)
}

type subscription struct {
	ps   *redis.PubSub
	ch   chan domain.SessionEvent
	done chan struct{}
	once sync.Once
}

func (s *subscription) Events() <-chan domain.SessionEvent {
	return s.ch
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *subscription) run(ctx context.Context, log zerolog.Logger) {
	defer close(s.ch)
	defer s.ps.Close()

	msgs := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var event domain.SessionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed session event")
				continue
			}
			select {
			case s.ch <- event:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}
}
