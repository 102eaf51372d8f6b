package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/task-notifier/internal/model"
)

// inbound is the client-to-server envelope.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Client struct {
	id      string
	session *model.Session
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	// rooms is guarded by the hub's mutex.
	rooms map[string]struct{}

	done      chan struct{}
	closeOnce sync.Once

	touchMu   sync.Mutex
	lastTouch time.Time
}

func newClient(conn *websocket.Conn, session *model.Session, opts Options) *Client {
	return &Client{
		id:      session.SocketID,
		session: session,
		conn:    conn,
		send:    make(chan []byte, opts.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(opts.EventsPerSecond), opts.Burst),
		rooms:   make(map[string]struct{}),
		done:    make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Session() *model.Session { return c.session }

// enqueue never blocks. A full buffer closes the client.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		c.close()
		return false
	}
}

// Emit sends a single event to this client only.
func (c *Client) Emit(event string, payload interface{}) bool {
	data, err := encode(event, payload)
	if err != nil {
		return false
	}
	return c.enqueue(data)
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// shouldTouch rate-limits presence renewals triggered by ordinary activity.
func (c *Client) shouldTouch(now time.Time, every time.Duration) bool {
	c.touchMu.Lock()
	defer c.touchMu.Unlock()
	if now.Sub(c.lastTouch) < every {
		return false
	}
	c.lastTouch = now
	return true
}

func (c *Client) writePump(opts Options) {
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// readPump decodes inbound envelopes and hands them to dispatch until the connection fails.
func (c *Client) readPump(opts Options, dispatch func(*Client, inbound), onPong func(*Client)) {
	c.conn.SetReadLimit(opts.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		onPong(c)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Event == "" {
			c.Emit(model.EventError, errorPayload{Event: msg.Event, Message: "malformed message"})
			continue
		}
		dispatch(c, msg)
	}
}

type errorPayload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}
