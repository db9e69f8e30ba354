package app

import (
	"sync"
)

// Event types pushed to connected users.
const (
	EventXP          = "xp"
	EventLevelUp     = "levelUp"
	EventChallenge   = "challenge"
	EventLeaderboard = "leaderboard"
)

// Event is a notification for one user (or everyone when broadcast).
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// XPEvent reports XP credited to a user.
type XPEvent struct {
	Source  string `json:"source"`
	Amount  int    `json:"amount"`
	TotalXP int    `json:"totalXp"`
	TeamID  string `json:"teamId,omitempty"`
}

// LevelUpEvent reports a one-way level transition.
type LevelUpEvent struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Hub fans events out to per-user subscribers without blocking publishers.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan Event]struct{})}
}

// Subscribe returns a channel receiving the user's events.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	set, ok := h.subscribers[userID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subscribers[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		set, ok := h.subscribers[userID]
		if !ok {
			return
		}
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(h.subscribers, userID)
		}
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber of userID.
func (h *Hub) Publish(userID string, ev Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[userID] {
		sendDropOldest(ch, ev)
	}
}

// Broadcast delivers ev to every subscriber.
func (h *Hub) Broadcast(ev Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subscribers {
		for ch := range set {
			sendDropOldest(ch, ev)
		}
	}
}

// sendDropOldest never blocks: a full buffer loses its oldest event. Callers hold the hub lock.
func sendDropOldest(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- ev
	}
}
