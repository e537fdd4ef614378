package pvpbattle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/sealed-battleship/internal/battleship"
)

// EventType names a committed transition.
type EventType string

const (
	EventGameCreated   EventType = "game_created"
	EventGameJoined    EventType = "game_joined"
	EventShotFired     EventType = "shot_fired"
	EventShotResolved  EventType = "shot_resolved"
	EventGameOver      EventType = "game_over"
	EventBoardRevealed EventType = "board_revealed"
	EventGameVerified  EventType = "game_verified"
)

// Event is published on the game's channel in the same transaction that
// commits the transition, so observers never see an uncommitted change.
type Event struct {
	Type       EventType         `json:"type"`
	GameID     string            `json:"game_id"`
	Phase      battleship.Phase  `json:"phase"`
	Attributes map[string]string `json:"attributes,omitempty"`
	At         time.Time         `json:"at"`
}

const eventChannelPrefix = "bs:events:"

func eventChannel(gameID string) string { return eventChannelPrefix + strings.TrimSpace(gameID) }

func newEvent(t EventType, g *battleship.Game, attrs map[string]string) Event {
	return Event{Type: t, GameID: g.ID, Phase: g.Phase(), Attributes: attrs, At: g.UpdatedAt}
}

func publish(ctx context.Context, pipe redis.Pipeliner, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pipe.Publish(ctx, eventChannel(ev.GameID), raw)
	return nil
}

// Subscription delivers decoded events until Close is called or the
// context passed to Subscribe ends.
type Subscription struct {
	ps     *redis.PubSub
	events chan Event
}

// Events returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) Close() error { return s.ps.Close() }

// Subscribe listens to one game, or to every game when gameID is empty.
// It returns once Redis has confirmed the subscription.
func (m *Manager) Subscribe(ctx context.Context, gameID string) (*Subscription, error) {
	var ps *redis.PubSub
	if strings.TrimSpace(gameID) == "" {
		ps = m.rdb.PSubscribe(ctx, eventChannelPrefix+"*")
	} else {
		ps = m.rdb.Subscribe(ctx, eventChannel(gameID))
	}
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	s := &Subscription{ps: ps, events: make(chan Event, 16)}
	go s.pump(ctx, m.log)
	return s, nil
}

func (s *Subscription) pump(ctx context.Context, log *zap.Logger) {
	defer close(s.events)
	msgs := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.ps.Close()
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn("bs_event_decode", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				_ = s.ps.Close()
				return
			}
		}
	}
}
