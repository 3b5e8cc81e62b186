package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatapp/internal/auth"
	"chatapp/internal/metrics"
	"chatapp/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// 事件名。
const (
	EventSetup           = "setup"
	EventJoinChat        = "join chat"
	EventSendMessage     = "send message"
	EventConnected       = "connected"
	EventJoined          = "joined"
	EventMessageReceived = "message received"
	EventError           = "error"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Envelope 是双向事件的统一外壳。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type SetupPayload struct {
	UserID uint `json:"userId"`
}

type JoinPayload struct {
	ChatID uint `json:"chatId"`
}

type SendPayload struct {
	ChatID  uint   `json:"chatId"`
	Content string `json:"content"`
}

// RelayPayload 是转发给房间成员的消息。
type RelayPayload struct {
	ChatID   uint   `json:"chatId"`
	SenderID uint   `json:"senderId"`
	Content  string `json:"content"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode 把事件编码为发往客户端的帧。
func Encode(event string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = nil
	}
	b, _ := json.Marshal(Envelope{Event: event, Data: raw})
	return b
}

// Client 是一个已认证的 WebSocket 会话。
// send 只由 Hub 写入和关闭；closed 只由 Hub 读写。
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	chats  *service.ChatService
	userID uint
	joined map[string]bool
	closed bool
}

// Options 配置 WebSocket 端点。
type Options struct {
	JWTSecret   string
	FrontendURL string
}

// Serve 完成认证与协议升级，随后在当前 goroutine 中读取事件。
func Serve(h *Hub, db *gorm.DB, chats *service.ChatService, opts Options) gin.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: originChecker(opts.FrontendURL)}
	return func(c *gin.Context) {
		userID, err := auth.Authenticate(db, c.Request, opts.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{
			id:     uuid.NewString(),
			hub:    h,
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
			chats:  chats,
			userID: userID,
			joined: make(map[string]bool),
		}
		metrics.WsConnections.Inc()
		log.Debug().Str("session", client.id).Uint("user_id", userID).Msg("ws connected")

		go client.writePump()
		client.readPump(c.Request.Context())
	}
}

// originChecker 只放行同源或配置的前端地址。
func originChecker(frontendURL string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if frontendURL != "" && strings.EqualFold(strings.TrimRight(frontendURL, "/"), origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Leave(c)
		_ = c.conn.Close()
		metrics.WsConnections.Dec()
		log.Debug().Str("session", c.id).Uint("user_id", c.userID).Msg("ws disconnected")
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in Envelope
		if err := json.Unmarshal(data, &in); err != nil {
			c.fail("invalid payload")
			continue
		}
		c.handle(ctx, in)
	}
}

func (c *Client) handle(ctx context.Context, in Envelope) {
	switch in.Event {
	case EventSetup:
		var p SetupPayload
		if len(in.Data) > 0 && json.Unmarshal(in.Data, &p) != nil {
			c.fail("invalid payload")
			return
		}
		if p.UserID != 0 && p.UserID != c.userID {
			c.fail("userId does not match session")
			return
		}
		c.hub.Subscribe(c, UserRoom(c.userID), Encode(EventConnected, SetupPayload{UserID: c.userID}))

	case EventJoinChat:
		var p JoinPayload
		if json.Unmarshal(in.Data, &p) != nil {
			c.fail("invalid payload")
			return
		}
		if _, err := c.chats.ForMember(ctx, p.ChatID, c.userID); err != nil {
			c.failWith(err, "failed to join chat")
			return
		}
		room := ChatRoom(p.ChatID)
		c.joined[room] = true
		c.hub.Subscribe(c, room, Encode(EventJoined, JoinPayload{ChatID: p.ChatID}))

	case EventSendMessage:
		var p SendPayload
		if json.Unmarshal(in.Data, &p) != nil || p.ChatID == 0 || strings.TrimSpace(p.Content) == "" {
			c.fail("chatId and content are required")
			return
		}
		room := ChatRoom(p.ChatID)
		if !c.joined[room] {
			c.fail("join the chat before sending")
			return
		}
		c.hub.Broadcast(room, Encode(EventMessageReceived, RelayPayload{
			ChatID:   p.ChatID,
			SenderID: c.userID,
			Content:  p.Content,
		}))
		metrics.RelayedMessagesTotal.Inc()

	default:
		c.fail("unknown event")
	}
}

func (c *Client) fail(msg string) {
	c.hub.Send(c, Encode(EventError, ErrorPayload{Message: msg}))
}

func (c *Client) failWith(err error, fallback string) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		c.fail(svcErr.Msg)
		return
	}
	log.Error().Err(err).Str("session", c.id).Msg("ws event")
	c.fail(fallback)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
