package syncserver

import (
	"context"
	"log/slog"
	"sync"

	"github.com/astromechza/tasklens-sync/pkg/protocol"
)

// Member is one connection's subscription to a room.
type Member struct {
	RoomKey  string
	ClientID string

	queue   chan protocol.ChangeOccurred
	evicted chan struct{}
}

// Messages delivers the room's live updates in sequence order.
func (m *Member) Messages() <-chan protocol.ChangeOccurred {
	return m.queue
}

// Evicted is closed when the member fell too far behind and was removed from its room.
func (m *Member) Evicted() <-chan struct{} {
	return m.evicted
}

type room struct {
	lock    sync.Mutex
	members map[*Member]struct{}
	removed bool
}

// Hub routes submitted updates to the members of each room.
type Hub struct {
	log       Log
	queueSize int

	lock  sync.Mutex
	rooms map[string]*room
}

func NewHub(log Log, queueSize int) *Hub {
	return &Hub{log: log, queueSize: queueSize, rooms: make(map[string]*room)}
}

// acquire returns the locked room for the key, creating it when needed.
func (h *Hub) acquire(key string) *room {
	for {
		h.lock.Lock()
		r, ok := h.rooms[key]
		if !ok {
			r = &room{members: make(map[*Member]struct{})}
			h.rooms[key] = r
		}
		h.lock.Unlock()

		r.lock.Lock()
		if !r.removed {
			return r
		}
		r.lock.Unlock()
	}
}

// release unlocks the room, dropping it from the hub once it is empty.
func (h *Hub) release(key string, r *room) {
	if len(r.members) == 0 && !r.removed {
		r.removed = true
		h.lock.Lock()
		if h.rooms[key] == r {
			delete(h.rooms, key)
		}
		h.lock.Unlock()
	}
	r.lock.Unlock()
}

func (h *Hub) Join(roomKey, clientID string) *Member {
	m := &Member{
		RoomKey:  roomKey,
		ClientID: clientID,
		queue:    make(chan protocol.ChangeOccurred, h.queueSize),
		evicted:  make(chan struct{}),
	}
	r := h.acquire(roomKey)
	r.members[m] = struct{}{}
	h.release(roomKey, r)
	return m
}

func (h *Hub) Leave(m *Member) {
	r := h.acquire(m.RoomKey)
	delete(r.members, m)
	h.release(m.RoomKey, r)
}

// Submit appends the update to the log and then queues it for every member of the room, the submitter included. The
// room stays locked across both steps so queue order always equals sequence order.
func (h *Hub) Submit(ctx context.Context, roomKey, clientID string, data []byte) (int64, error) {
	r := h.acquire(roomKey)
	defer h.release(roomKey, r)

	seq, err := h.log.Append(ctx, roomKey, clientID, data)
	if err != nil {
		return 0, err
	}
	msg := protocol.ChangeOccurred{
		SequenceID:     seq,
		RoomKey:        roomKey,
		SourceClientID: clientID,
		Payload:        data,
	}
	for m := range r.members {
		select {
		case m.queue <- msg:
		default:
			slog.Warn("dropping slow consumer", "room", roomKey, "client", m.ClientID, "sequence", seq)
			delete(r.members, m)
			close(m.evicted)
		}
	}
	return seq, nil
}

func (h *Hub) MemberCount(roomKey string) int {
	h.lock.Lock()
	r, ok := h.rooms[roomKey]
	h.lock.Unlock()
	if !ok {
		return 0
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.members)
}
