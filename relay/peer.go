package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 1 << 20
	sendBufferSize = 64
)

type peer struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte

	mu     sync.Mutex
	boards map[string]struct{}
	closed bool
}

func newPeer(id, userID string, conn *websocket.Conn) *peer {
	return &peer{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		boards: make(map[string]struct{}),
	}
}

// enqueue hands data to the write pump. A peer that cannot keep up loses
// the frame rather than stalling the room.
func (p *peer) enqueue(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

func (p *peer) close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.send)
	}
	p.mu.Unlock()
}

func (p *peer) addBoard(id string) {
	p.mu.Lock()
	p.boards[id] = struct{}{}
	p.mu.Unlock()
}

func (p *peer) removeBoard(id string) {
	p.mu.Lock()
	delete(p.boards, id)
	p.mu.Unlock()
}

func (p *peer) joinedBoards() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.boards))
	for id := range p.boards {
		out = append(out, id)
	}
	return out
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()
	for {
		select {
		case data, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
