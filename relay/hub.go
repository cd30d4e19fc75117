package relay

import "sync"

type hub struct {
	mu    sync.Mutex
	rooms map[string]*boardRoom
}

func newHub() *hub {
	return &hub{rooms: make(map[string]*boardRoom)}
}

func (h *hub) join(boardID string, p *peer) {
	h.mu.Lock()
	room, ok := h.rooms[boardID]
	if !ok {
		room = &boardRoom{boardID: boardID, subscribers: make(map[*peer]struct{})}
		h.rooms[boardID] = room
	}
	room.subscribers[p] = struct{}{}
	h.mu.Unlock()
}

// leave removes p from the room and drops the room once empty.
func (h *hub) leave(boardID string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[boardID]
	if !ok {
		return
	}
	delete(room.subscribers, p)
	if len(room.subscribers) == 0 {
		delete(h.rooms, boardID)
	}
}

func (h *hub) member(boardID string, p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[boardID]
	if !ok {
		return false
	}
	_, ok = room.subscribers[p]
	return ok
}

// peers returns the room's subscribers other than except.
func (h *hub) peers(boardID string, except *peer) []*peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[boardID]
	if !ok {
		return nil
	}
	out := make([]*peer, 0, len(room.subscribers))
	for p := range room.subscribers {
		if p != except {
			out = append(out, p)
		}
	}
	return out
}

func (h *hub) roomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

type boardRoom struct {
	boardID     string
	subscribers map[*peer]struct{}
}
