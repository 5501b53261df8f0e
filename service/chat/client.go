package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Client 一条已鉴权的 WebSocket 连接；同一用户可以有多条（多端）。
// 只下发提示帧，客户端发来的数据帧一律丢弃。
type Client struct {
	ConnID    string
	UserID    int64
	WS        *websocket.Conn
	Send      chan []byte // 出站队列，由唯一的写协程消费
	CreatedAt time.Time

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(connID string, userID int64, ws *websocket.Conn, sendQueueSize int) *Client {
	return &Client{
		ConnID:    connID,
		UserID:    userID,
		WS:        ws,
		Send:      make(chan []byte, sendQueueSize),
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// enqueue 非阻塞入队；慢客户端直接丢帧，下一轮轮询会补齐
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// close 通知写协程发送关闭帧并断开
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump 写协程：发送队列中的帧，并定时 ping
func (c *Client) writePump(log *zap.Logger) {
	t := time.NewTicker(pingPeriod)
	defer func() {
		t.Stop()
		_ = c.WS.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.WS.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case payload := <-c.Send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug("write failed", zap.String("conn", c.ConnID), zap.Error(err))
				return
			}
		case <-t.C:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读协程：只处理控制帧，出错即返回
func (c *Client) readPump() {
	c.WS.SetReadLimit(4096)
	_ = c.WS.SetReadDeadline(time.Now().Add(pongWait))
	c.WS.SetPongHandler(func(string) error {
		return c.WS.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.WS.ReadMessage(); err != nil {
			return
		}
	}
}
