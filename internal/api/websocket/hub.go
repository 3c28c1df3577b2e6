package websocket

import (
	"encoding/json"
	"sync"

	"guild-dashboard/internal/model"

	"go.uber.org/zap"
)

const defaultSubscriberBuffer = 32

// Message is the frame pushed to subscribers.
type Message struct {
	Type string     `json:"type"`
	Data *model.Log `json:"data"`
}

// Subscription receives the encoded frames of one guild. C is closed when the
// subscription ends, either by Close or because the subscriber fell behind.
type Subscription struct {
	C <-chan []byte

	hub     *Hub
	guildID string
	ch      chan []byte
}

func (s *Subscription) Close() { s.hub.remove(s) }

// Hub fans out new log entries to the live subscribers of their guild.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	log    *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: defaultSubscriberBuffer,
		log:    log.Named("hub"),
	}
}

func (h *Hub) Subscribe(guildID string) *Subscription {
	ch := make(chan []byte, h.buffer)
	s := &Subscription{C: ch, hub: h, guildID: guildID, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[guildID] == nil {
		h.subs[guildID] = make(map[*Subscription]struct{})
	}
	h.subs[guildID][s] = struct{}{}
	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscription) {
	set := h.subs[s.guildID]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.guildID)
	}
	close(s.ch)
}

// Publish never blocks. A subscriber whose buffer is full is dropped.
func (h *Hub) Publish(l *model.Log) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[l.GuildID]
	if len(set) == 0 {
		return
	}
	frame, err := json.Marshal(Message{Type: "log", Data: l})
	if err != nil {
		h.log.Error("encode log frame", zap.Error(err))
		return
	}
	for s := range set {
		select {
		case s.ch <- frame:
		default:
			h.log.Warn("dropping slow log subscriber", zap.String("guild", l.GuildID))
			h.removeLocked(s)
		}
	}
}

// Subscribers reports the live subscribers of a guild.
func (h *Hub) Subscribers(guildID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[guildID])
}
