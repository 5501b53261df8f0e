package chat

import (
	"encoding/json"
	"net/http"
	"sync"

	"PPClient/global"
	"PPClient/logger"
	"PPClient/module/chat/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// HubConf 提示中心配置
type HubConf struct {
	MaxPerUser    int `yaml:"maxPerUser"`
	SendQueueSize int `yaml:"sendQueueSize"`
	Workers       int `yaml:"workers"`
	Queue         int `yaml:"queue"`
}

func (c *HubConf) norm() {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 16
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Queue <= 0 {
		c.Queue = 1024
	}
}

// Hub 本节点的 WebSocket 提示中心：按用户下发 {keys:[...]} 失效提示
type Hub struct {
	mgr      *ConnManager
	fanout   *Fanout
	upgrader websocket.Upgrader
	conf     HubConf
	log      *zap.Logger

	wg       sync.WaitGroup
	closeMu  sync.Mutex
	isClosed bool
}

func NewHub(conf HubConf) *Hub {
	conf.norm()
	return &Hub{
		mgr:    NewConnManager(ManagerConf{MaxPerUser: conf.MaxPerUser}),
		fanout: NewFanout(conf.Workers, conf.Queue),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conf: conf,
		log:  logger.Named("hub"),
	}
}

// HandleWS 需要鉴权中间件先写入用户ID
func (h *Hub) HandleWS(c *gin.Context) {
	userID, ok := global.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, global.Fail("unauthorized"))
		return
	}
	h.closeMu.Lock()
	if h.isClosed {
		h.closeMu.Unlock()
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, global.Fail("shutting down"))
		return
	}
	h.wg.Add(1)
	h.closeMu.Unlock()
	defer h.wg.Done()

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Info("upgrade websocket error", zap.Error(err))
		return
	}

	cl := NewClient(uuid.NewString(), userID, ws, h.conf.SendQueueSize)
	if old := h.mgr.Add(cl); old != nil {
		old.close()
	}
	h.log.Debug("connected", zap.Int64("user", userID), zap.String("conn", cl.ConnID))

	go cl.writePump(h.log)
	cl.readPump()

	if _, ok := h.mgr.Remove(cl.ConnID); ok {
		cl.close()
	}
	h.log.Debug("disconnected", zap.Int64("user", userID), zap.String("conn", cl.ConnID))
}

// NotifyUser 向用户的所有连接投递提示帧；用户不在线时什么也不做
func (h *Hub) NotifyUser(userID int64, hint model.Hint) bool {
	conns := h.mgr.UserConns(userID)
	if len(conns) == 0 {
		return true
	}
	b, err := json.Marshal(hint)
	if err != nil {
		return false
	}
	return h.fanout.Broadcast(conns, b)
}

// Online 当前连接数
func (h *Hub) Online() int { return h.mgr.Count() }

// Close 关闭全部连接并等待处理协程退出
func (h *Hub) Close() {
	h.closeMu.Lock()
	if h.isClosed {
		h.closeMu.Unlock()
		return
	}
	h.isClosed = true
	h.closeMu.Unlock()

	for _, c := range h.mgr.RemoveAll() {
		c.close()
	}
	h.wg.Wait()
	h.fanout.Close()
}
