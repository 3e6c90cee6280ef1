package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// spectatorConn 负责发送（写）数据到观战端的轻量包装
type spectatorConn struct {
	ws   *websocket.Conn
	send chan []byte
}

// enqueue 非阻塞压入队列，满则丢弃（观战端只关心最新一帧）
func (c *spectatorConn) enqueue(b []byte) {
	select {
	case c.send <- b:
	default:
	}
}

// writePump 独立协程，负责从 send 队列写出到 WS
func (c *spectatorConn) writePump() {
	defer c.ws.Close()
	for msg := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump 观战端只读；这里仅用于感知断开与处理 pong
func (c *spectatorConn) readPump(onClose func()) {
	defer onClose()
	c.ws.SetReadLimit(1 << 10)
	_ = c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

// frameMessage 推送给观战端的 JSON 帧
type frameMessage struct {
	Type string `json:"type"`
	*Frame
}

// Spectators 观战连接集合。Publish 在 Tick 协程中调用，HandleWS 在 HTTP 协程中调用
type Spectators struct {
	mu    sync.Mutex
	conns map[*spectatorConn]struct{}
	log   *zap.SugaredLogger
}

func NewSpectators(log *zap.SugaredLogger) *Spectators {
	return &Spectators{conns: make(map[*spectatorConn]struct{}), log: log}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 观战数据只读且不含敏感信息，允许所有来源
		return true
	},
}

// HandleWS WebSocket 接入：/ws
func (sp *Spectators) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sp.log.Warnw("upgrade error", "err", err)
		return
	}
	c := &spectatorConn{ws: ws, send: make(chan []byte, 16)}
	sp.add(c)
	sp.log.Infow("spectator connected", "remote", r.RemoteAddr)

	go c.writePump()
	go c.readPump(func() {
		sp.remove(c)
		sp.log.Infow("spectator disconnected", "remote", r.RemoteAddr)
	})
}

func (sp *Spectators) add(c *spectatorConn) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.conns[c] = struct{}{}
}

// remove 在锁内关闭 send，保证 Publish 不会写入已关闭的通道
func (sp *Spectators) remove(c *spectatorConn) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if _, ok := sp.conns[c]; !ok {
		return
	}
	delete(sp.conns, c)
	close(c.send)
}

// Len 当前观战连接数
func (sp *Spectators) Len() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.conns)
}

// Publish 将一帧广播给所有观战端；没有观战端时不做编码
func (sp *Spectators) Publish(f *Frame) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if len(sp.conns) == 0 {
		return
	}
	b, err := json.Marshal(frameMessage{Type: "frame", Frame: f})
	if err != nil {
		sp.log.Errorw("encode spectator frame failed", "err", err)
		return
	}
	for c := range sp.conns {
		c.enqueue(b)
	}
}

// Close 断开所有观战端
func (sp *Spectators) Close() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	for c := range sp.conns {
		delete(sp.conns, c)
		close(c.send)
	}
}
