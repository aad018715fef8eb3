package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/metrics"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/service"
)

// typingCoalesce drops repeated typing signals for the same conversation
// and direction arriving within this window.
const typingCoalesce = time.Second

// Options tunes the socket endpoint. Zero values fall back to the defaults
// the config layer documents.
type Options struct {
	Heartbeat   time.Duration
	AuthTimeout time.Duration
	SendBuffer  int
	Origins     []string
}

func (o Options) withDefaults() Options {
	if o.Heartbeat <= 0 {
		o.Heartbeat = 54 * time.Second
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

// Handler upgrades /chat requests and supervises each connection from
// handshake to close.
type Handler struct {
	registry *Registry
	verifier security.Verifier
	users    *service.UserService
	pipeline *service.MessagePipeline
	cursors  *service.ReadCursorService
	store    domain.Store
	opts     Options
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewHandler(
	registry *Registry,
	verifier security.Verifier,
	users *service.UserService,
	pipeline *service.MessagePipeline,
	cursors *service.ReadCursorService,
	store domain.Store,
	opts Options,
	logger zerolog.Logger,
) *Handler {
	h := &Handler{
		registry: registry,
		verifier: verifier,
		users:    users,
		pipeline: pipeline,
		cursors:  cursors,
		store:    store,
		opts:     opts.withDefaults(),
		logger:   logger.With().Str("component", "ws").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     makeCheckOrigin(h.opts.Origins),
		// Echoing the bearer subprotocol keeps browsers happy when the
		// token rides in Sec-WebSocket-Protocol.
		Subprotocols: []string{"bearer"},
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade rejected")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	userID, err := h.authenticate(conn, r)
	if err != nil {
		h.closeWithError(conn, err)
		return
	}

	ctx := r.Context()
	if err := h.users.EnsureUser(ctx, userID); err != nil {
		h.closeWithError(conn, err)
		return
	}

	c := newClient(conn, userID, h.opts.SendBuffer,
		h.logger.With().Str("user_id", userID).Logger())

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()
	defer func() {
		h.registry.LeaveAll(c)
		c.Terminate("")
	}()

	c.configureRead(h.opts.Heartbeat * 10 / 9)
	go c.writePump(h.opts.Heartbeat)

	h.logger.Info().Str("user_id", userID).Str("conn_id", c.id).Msg("websocket connected")
	if !h.say(c, newConnectedFrame(userID)) {
		return
	}

	h.readLoop(ctx, c)
	h.logger.Info().Str("user_id", userID).Str("conn_id", c.id).Msg("websocket closed")
}

// authenticate resolves the caller's identity from the request or, when the
// request carries no token, from a first auth frame inside the auth window.
func (h *Handler) authenticate(conn *websocket.Conn, r *http.Request) (string, error) {
	token := extractToken(r)
	if token == "" {
		var err error
		token, err = awaitAuthFrame(conn, h.opts.AuthTimeout)
		if err != nil {
			return "", err
		}
	}
	return h.verifier.Verify(token)
}

// awaitAuthFrame blocks for one frame and expects it to be auth {token}.
func awaitAuthFrame(conn *websocket.Conn, window time.Duration) (string, error) {
	conn.SetReadDeadline(time.Now().Add(window))

	var frame inboundFrame
	if err := conn.ReadJSON(&frame); err != nil {
		if os.IsTimeout(err) {
			return "", domain.E(domain.CodeAuthMissing, "no credentials presented before the deadline")
		}
		return "", domain.Wrap(domain.CodeAuthMalformed, "unreadable auth frame", err)
	}
	if frame.Type != frameAuth || frame.Token == "" {
		return "", domain.E(domain.CodeAuthMissing, "expected an auth frame with a token")
	}
	return frame.Token, nil
}

// closeWithError reports a handshake failure on the raw socket and closes
// it. The write pump never started for these, so direct writes are safe.
func (h *Handler) closeWithError(conn *websocket.Conn, err error) {
	h.logger.Warn().Err(err).Msg("websocket handshake failed")
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(newErrorFrame(err))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, string(domain.CodeOf(err))))
	conn.Close()
}

// readLoop pulls frames until the peer goes away. Frames are handled
// sequentially, so one connection cannot interleave its own sends.
func (h *Handler) readLoop(ctx context.Context, c *client) {
	lastTyping := make(map[string]time.Time)

	for {
		var frame inboundFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		if !h.dispatch(ctx, c, frame, lastTyping) {
			return
		}
	}
}

// dispatch routes one frame. It reports whether the connection should keep
// reading; domain failures stay in-band and keep the socket open.
func (h *Handler) dispatch(ctx context.Context, c *client, f inboundFrame, lastTyping map[string]time.Time) bool {
	switch f.Type {
	case frameAuth:
		// Already authenticated; a repeated auth frame is harmless.
		return true

	case frameJoin:
		if _, err := h.store.GetParticipant(ctx, f.ConversationID, c.userID); err != nil {
			if domain.IsCode(err, domain.CodeParticipantNotFound) {
				err = domain.E(domain.CodeNotAuthorized, "you are not a participant in this conversation")
			}
			return h.say(c, newErrorFrame(err))
		}
		h.registry.Join(f.ConversationID, c)
		return h.say(c, newJoinedFrame(f.ConversationID))

	case frameLeave:
		h.registry.Leave(f.ConversationID, c)
		return true

	case frameSend:
		_, err := h.pipeline.Send(ctx, c.userID, service.SendInput{
			ConversationID: f.ConversationID,
			Content:        f.Content,
			Kind:           f.MessageType,
		})
		if err != nil {
			return h.say(c, newErrorFrame(err))
		}
		// The sender's echo arrives through the room broadcast like
		// everyone else's copy.
		return true

	case frameTypingOn, frameTypingOff:
		return h.handleTyping(ctx, c, f, lastTyping)

	case frameMarkRead:
		if err := h.cursors.MarkRead(ctx, c.userID, f.ConversationID, f.MessageID); err != nil {
			return h.say(c, newErrorFrame(err))
		}
		return true

	default:
		c.logger.Debug().Str("type", f.Type).Msg("unknown frame type")
		return h.say(c, newErrorFrame(
			domain.Errorf(domain.CodeKindInvalid, "unknown frame type %q", f.Type)))
	}
}

// handleTyping fans a typing indicator out to the room, minus its author.
// Never persisted; repeats inside the coalescing window are dropped.
func (h *Handler) handleTyping(ctx context.Context, c *client, f inboundFrame, lastTyping map[string]time.Time) bool {
	typing := f.Type == frameTypingOn

	key := f.ConversationID + "|stop"
	if typing {
		key = f.ConversationID + "|start"
	}
	now := time.Now()
	if last, ok := lastTyping[key]; ok && now.Sub(last) < typingCoalesce {
		return true
	}
	lastTyping[key] = now

	if _, err := h.store.GetParticipant(ctx, f.ConversationID, c.userID); err != nil {
		// Typing is advisory; a non-participant's signal just vanishes.
		return true
	}
	h.registry.BroadcastExcept(f.ConversationID, c.id, newTypingFrame(f.ConversationID, c.userID, typing))
	return true
}

// say queues a frame for the peer. A full queue gets the same treatment as
// a slow broadcast consumer: drop from all rooms and terminate.
func (h *Handler) say(c *client, v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error().Err(err).Msg("marshal outbound frame")
		return true
	}
	if c.Enqueue(payload) {
		return true
	}
	metrics.SlowConsumerEvictions.Inc()
	c.logger.Warn().Msg("send queue full, evicting slow consumer")
	h.registry.LeaveAll(c)
	c.Terminate(domain.CodeSlowConsumer)
	return false
}

// extractToken pulls a bearer credential from the places a client can put
// one before the socket opens: query parameter, Authorization header, or
// the subprotocol pair "bearer, <token>".
func extractToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	protos := websocket.Subprotocols(r)
	for i, p := range protos {
		if strings.EqualFold(p, "bearer") && i+1 < len(protos) {
			return protos[i+1]
		}
	}
	return ""
}

// makeCheckOrigin allows non-browser clients (no Origin header),
// same-origin requests, and anything on the allow list. A "*" entry
// disables the check entirely.
func makeCheckOrigin(allowed []string) func(*http.Request) bool {
	allowAll := false
	index := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(strings.TrimSuffix(o, "/"))
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			index[strings.ToLower(o)] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		_, ok := index[strings.ToLower(strings.TrimSuffix(origin, "/"))]
		return ok
	}
}
