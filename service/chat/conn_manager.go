package chat

import (
	"sync"
)

// ManagerConf 连接管理配置
type ManagerConf struct {
	MaxPerUser int // 每用户最大连接数（<=0 不限制），超限淘汰最老连接
}

// ConnManager userID -> (connID -> client)
type ConnManager struct {
	mu     sync.RWMutex
	byConn map[string]*Client
	byUser map[int64]map[string]*Client
	conf   ManagerConf
}

func NewConnManager(conf ManagerConf) *ConnManager {
	return &ConnManager{
		byConn: make(map[string]*Client),
		byUser: make(map[int64]map[string]*Client),
		conf:   conf,
	}
}

// Add 登记连接；返回因超限被挤下线的连接（调用方负责关闭）
func (m *ConnManager) Add(c *Client) (evicted *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mm := m.byUser[c.UserID]
	if mm == nil {
		mm = make(map[string]*Client)
		m.byUser[c.UserID] = mm
	}
	if m.conf.MaxPerUser > 0 && len(mm) >= m.conf.MaxPerUser {
		for _, x := range mm {
			if evicted == nil || x.CreatedAt.Before(evicted.CreatedAt) {
				evicted = x
			}
		}
		if evicted != nil {
			delete(mm, evicted.ConnID)
			delete(m.byConn, evicted.ConnID)
		}
	}
	mm[c.ConnID] = c
	m.byConn[c.ConnID] = c
	return evicted
}

// Remove 移除连接；重复调用无副作用
func (m *ConnManager) Remove(connID string) (*Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byConn[connID]
	if !ok {
		return nil, false
	}
	delete(m.byConn, connID)
	if mm := m.byUser[c.UserID]; mm != nil {
		delete(mm, connID)
		if len(mm) == 0 {
			delete(m.byUser, c.UserID)
		}
	}
	return c, true
}

// UserConns 某用户的全部连接快照
func (m *ConnManager) UserConns(userID int64) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mm := m.byUser[userID]
	out := make([]*Client, 0, len(mm))
	for _, c := range mm {
		out = append(out, c)
	}
	return out
}

func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byConn)
}

// RemoveAll 清空并返回全部连接
func (m *ConnManager) RemoveAll() []*Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Client, 0, len(m.byConn))
	for _, c := range m.byConn {
		out = append(out, c)
	}
	m.byConn = make(map[string]*Client)
	m.byUser = make(map[int64]map[string]*Client)
	return out
}
