package ws

import (
	"context"
	"strconv"

	"chatapp/internal/metrics"
)

// UserRoom 是用户的个人收件房间。
func UserRoom(userID uint) string { return "user:" + strconv.FormatUint(uint64(userID), 10) }

// ChatRoom 是会话房间。
func ChatRoom(chatID uint) string { return "chat:" + strconv.FormatUint(uint64(chatID), 10) }

type opKind int

const (
	opSubscribe opKind = iota
	opLeave
	opBroadcast
	opDirect
	opOnline
)

type op struct {
	kind    opKind
	client  *Client
	room    string
	payload []byte
	reply   chan int
}

// Hub 维护房间到连接集合的映射，只在 Run 所在的 goroutine 中读写。
// 所有操作按入队顺序执行：先于订阅入队的广播不会投递给新订阅者。
type Hub struct {
	ops     chan op
	done    chan struct{}
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		ops:     make(chan op, 256),
		done:    make(chan struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]map[string]struct{}),
	}
}

// Run 处理事件直到 ctx 结束，退出时关闭所有连接的发送队列。
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case o := <-h.ops:
			h.apply(o)
		}
	}
}

func (h *Hub) enqueue(o op) bool {
	select {
	case h.ops <- o:
		return true
	case <-h.done:
		return false
	}
}

// Subscribe 把连接加入房间，重复订阅无副作用。ack 非空时在订阅生效后发给该连接。
func (h *Hub) Subscribe(c *Client, room string, ack []byte) {
	h.enqueue(op{kind: opSubscribe, client: c, room: room, payload: ack})
}

// Leave 移除连接的全部订阅并关闭其发送队列，不通知其他成员。
func (h *Hub) Leave(c *Client) {
	h.enqueue(op{kind: opLeave, client: c})
}

// Broadcast 投递给房间内当前的全部连接（包括发送者自己），尽力而为、不重试。
func (h *Hub) Broadcast(room string, payload []byte) {
	h.enqueue(op{kind: opBroadcast, room: room, payload: payload})
}

// Send 只投递给单个连接。
func (h *Hub) Send(c *Client, payload []byte) {
	h.enqueue(op{kind: opDirect, client: c, payload: payload})
}

// Online 返回房间当前的连接数。
func (h *Hub) Online(room string) int {
	reply := make(chan int, 1)
	if !h.enqueue(op{kind: opOnline, room: room, reply: reply}) {
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-h.done:
		return 0
	}
}

func (h *Hub) apply(o op) {
	switch o.kind {
	case opSubscribe:
		if o.client.closed {
			return
		}
		subs := h.rooms[o.room]
		if subs == nil {
			subs = make(map[*Client]struct{})
			h.rooms[o.room] = subs
		}
		subs[o.client] = struct{}{}
		joined := h.clients[o.client]
		if joined == nil {
			joined = make(map[string]struct{})
			h.clients[o.client] = joined
		}
		joined[o.room] = struct{}{}
		if o.payload != nil {
			h.deliver(o.client, o.payload)
		}
	case opLeave:
		h.drop(o.client)
	case opBroadcast:
		for c := range h.rooms[o.room] {
			h.deliver(c, o.payload)
		}
	case opDirect:
		h.deliver(o.client, o.payload)
	case opOnline:
		o.reply <- len(h.rooms[o.room])
	}
}

// deliver 非阻塞写入；发送队列已满的慢连接直接断开。
func (h *Hub) deliver(c *Client, payload []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		metrics.DroppedSubscribersTotal.Inc()
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	for room := range h.clients[c] {
		subs := h.rooms[room]
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.clients, c)
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
