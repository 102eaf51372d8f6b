package realtime

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/service/dispatcher"
	"github.com/jwalitptl/task-notifier/internal/service/offline"
	"github.com/jwalitptl/task-notifier/internal/service/presence"
	"github.com/jwalitptl/task-notifier/pkg/auth"
	"github.com/jwalitptl/task-notifier/pkg/logger"
	"github.com/jwalitptl/task-notifier/pkg/metrics"
	"github.com/jwalitptl/task-notifier/pkg/validator"
)

const bearerProtocol = "bearer"

type Options struct {
	AllowedOrigins  []string
	SendBuffer      int
	MaxMessageBytes int64
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	EventsPerSecond float64
	Burst           int
	// TouchInterval bounds how often ordinary activity renews presence.
	TouchInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 * 1024
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.EventsPerSecond <= 0 {
		o.EventsPerSecond = 20
	}
	if o.Burst <= 0 {
		o.Burst = 40
	}
	if o.TouchInterval <= 0 {
		o.TouchInterval = time.Minute
	}
	return o
}

// Gateway authenticates WebSocket connections, keeps their room membership in the hub and
// answers client events.
type Gateway struct {
	hub        *Hub
	verifier   auth.TokenVerifier
	presence   presence.Service
	offline    offline.Service
	dispatcher *dispatcher.Dispatcher
	validator  validator.Validator
	opts       Options
	upgrader   websocket.Upgrader
	origins    map[string]bool
	handlers   map[string]eventHandler
	metrics    *metrics.Metrics
	logger     *logger.Logger
	now        func() time.Time
}

type GatewayDeps struct {
	Hub        *Hub
	Verifier   auth.TokenVerifier
	Presence   presence.Service
	Offline    offline.Service
	Dispatcher *dispatcher.Dispatcher
	Validator  validator.Validator
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
}

func NewGateway(deps GatewayDeps, opts Options) *Gateway {
	opts = opts.withDefaults()
	g := &Gateway{
		hub:        deps.Hub,
		verifier:   deps.Verifier,
		presence:   deps.Presence,
		offline:    deps.Offline,
		dispatcher: deps.Dispatcher,
		validator:  deps.Validator,
		opts:       opts,
		origins:    make(map[string]bool),
		metrics:    deps.Metrics,
		logger:     deps.Logger.With("component", "gateway"),
		now:        time.Now,
	}
	if g.validator == nil {
		g.validator = validator.New()
	}
	for _, origin := range opts.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			g.origins[trimmed] = true
		}
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    []string{bearerProtocol},
		CheckOrigin:     g.checkOrigin,
	}
	g.handlers = g.routes()
	return g
}

func (g *Gateway) Hub() *Hub { return g.hub }

// ServeWS upgrades an authenticated request. Unauthenticated requests get 401 and no
// connection state is created.
func (g *Gateway) ServeWS(c *gin.Context) {
	token := tokenFromRequest(c.Request)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "authentication token required"})
		return
	}
	claims, err := g.verifier.ValidateToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "invalid token"})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("WebSocket upgrade failed", "error", err.Error(), "remote_addr", c.Request.RemoteAddr)
		return
	}

	session := &model.Session{
		UserID:   claims.UserID,
		SocketID: uuid.NewString(),
		Email:    claims.Email,
		Name:     claims.Name,
		Role:     model.Role(claims.Role),
		Status:   model.PresenceOnline,
	}
	client := newClient(conn, session, g.opts)
	g.connect(client)

	go client.writePump(g.opts)
	go func() {
		defer g.disconnect(client)
		client.readPump(g.opts, g.dispatch, g.onPong)
	}()
}

func (g *Gateway) connect(c *Client) {
	s := c.session
	g.hub.Register(c)
	g.hub.Join(c, model.UserRoom(s.UserID))
	if s.Role.Valid() {
		g.hub.Join(c, model.RoleRoom(s.Role))
	}

	s.ConnectedAt = g.now().UTC()
	g.presence.Put(context.Background(), s)

	g.hub.Broadcast(model.EventUserOnline, presenceEvent{
		UserID:    s.UserID,
		Name:      s.Name,
		Role:      s.Role,
		Status:    model.PresenceOnline,
		Timestamp: s.ConnectedAt,
	}, s.UserID)

	g.logger.Info("Client connected", "user_id", s.UserID, "socket_id", c.id, "role", string(s.Role))
}

func (g *Gateway) disconnect(c *Client) {
	last := g.hub.Unregister(c)
	s := c.session

	if last {
		g.presence.Remove(context.Background(), s.UserID)
		g.hub.Broadcast(model.EventUserOffline, presenceEvent{
			UserID:    s.UserID,
			Name:      s.Name,
			Role:      s.Role,
			Timestamp: g.now().UTC(),
		}, s.UserID)
	}

	g.logger.Info("Client disconnected", "user_id", s.UserID, "socket_id", c.id, "last_session", last)
}

func (g *Gateway) onPong(c *Client) {
	if c.shouldTouch(g.now(), g.opts.TouchInterval) {
		g.presence.Touch(context.Background(), c.session)
	}
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.origins) == 0 {
		return true
	}
	if g.origins[origin] {
		return true
	}
	if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
		return g.origins[parsed.Scheme+"://"+parsed.Host]
	}
	return false
}

// tokenFromRequest reads the bearer token from the Authorization header, the token query
// parameter or the "bearer, <token>" WebSocket subprotocol list.
func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	protocols := websocket.Subprotocols(r)
	for i, p := range protocols {
		if strings.EqualFold(p, bearerProtocol) && i+1 < len(protocols) {
			return protocols[i+1]
		}
	}
	return ""
}

type presenceEvent struct {
	UserID    string               `json:"userId"`
	Name      string               `json:"name,omitempty"`
	Role      model.Role           `json:"role,omitempty"`
	Status    model.PresenceStatus `json:"status,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}
