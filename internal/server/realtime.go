package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/elections/internal/players"
	"github.com/MarcoPoloResearchLab/elections/internal/roles"
	"github.com/MarcoPoloResearchLab/elections/internal/scheduler"
)

const (
	RealtimeEventRoleWon      = "role-won"
	RealtimeEventRoleExpired  = "role-expired"
	RealtimeEventAnnouncement = "election-announcement"
	realtimeEventHeartbeat    = "heartbeat"
	realtimeSourceBackend     = "elections-api"
)

var errPlayerUnreachable = errors.New("player has no open event stream")

// RealtimeMessage is one event on a player's stream. An empty PlayerID addresses every
// connected player.
type RealtimeMessage struct {
	PlayerID  players.PlayerID
	EventType string
	Payload   interface{}
	Timestamp time.Time
}

// RealtimeDispatcher fans events out to the open event streams of players.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[players.PlayerID]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[players.PlayerID]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, playerID players.PlayerID) (<-chan RealtimeMessage, func()) {
	if playerID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(playerID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(playerID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message and reports how many streams accepted it. Full streams drop it.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) int {
	if message.EventType == "" {
		return 0
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	var copies []*realtimeSubscriber
	if message.PlayerID == "" {
		for _, subscribers := range d.subscribers {
			for _, subscriber := range subscribers {
				copies = append(copies, subscriber)
			}
		}
	} else {
		for _, subscriber := range d.subscribers[message.PlayerID] {
			copies = append(copies, subscriber)
		}
	}
	d.mu.RUnlock()

	delivered := 0
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
			delivered++
		default:
		}
	}
	return delivered
}

// Reachable reports whether the player has at least one open stream.
func (d *RealtimeDispatcher) Reachable(playerID players.PlayerID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[playerID]) > 0
}

// Notify delivers a role notification, failing when no stream accepted it.
func (d *RealtimeDispatcher) Notify(_ context.Context, notification roles.Notification) error {
	eventType := RealtimeEventRoleWon
	if notification.Kind == roles.NotificationExpired {
		eventType = RealtimeEventRoleExpired
	}
	delivered := d.Publish(RealtimeMessage{
		PlayerID:  notification.PlayerID,
		EventType: eventType,
		Payload:   notification,
	})
	if delivered == 0 {
		return errPlayerUnreachable
	}
	return nil
}

// Announce broadcasts an election announcement to every open stream.
func (d *RealtimeDispatcher) Announce(_ context.Context, announcement scheduler.Announcement) {
	d.Publish(RealtimeMessage{
		EventType: RealtimeEventAnnouncement,
		Payload:   announcement,
	})
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(playerID players.PlayerID, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[playerID]; !ok {
		d.subscribers[playerID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[playerID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(playerID players.PlayerID, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[playerID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, playerID)
		}
	}
	d.mu.Unlock()
}
