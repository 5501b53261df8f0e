package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
)

// Stage 中间件挂载的阶段
type Stage int

const (
	// StageGlobal 每个请求都经过，挂在 Engine 上
	StageGlobal Stage = iota
	// StageAuth 只有 RouteOpt.IsAuth 的路由经过，排在业务 handler 之前
	StageAuth
)

type namedHandler struct {
	name string
	h    gin.HandlerFunc
}

// MiddlewareManager 按阶段、按名字管理中间件，运行时可增删（如热开关调试日志）。
// 阶段内的中间件不调用 c.Next()，按注册顺序执行，任一 Abort 即停止。
type MiddlewareManager struct {
	mu     sync.RWMutex
	stages map[Stage][]namedHandler
}

func NewManager() *MiddlewareManager {
	return &MiddlewareManager{stages: make(map[Stage][]namedHandler)}
}

// Add 注册中间件；同名的原位替换
func (m *MiddlewareManager) Add(stage Stage, name string, h gin.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.stages[stage]
	for i := range list {
		if list[i].name == name {
			next := append([]namedHandler(nil), list...)
			next[i].h = h
			m.stages[stage] = next
			return
		}
	}
	m.stages[stage] = append(append([]namedHandler(nil), list...), namedHandler{name: name, h: h})
}

// Remove 按名字摘掉；不存在时返回 false
func (m *MiddlewareManager) Remove(stage Stage, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.stages[stage]
	for i := range list {
		if list[i].name == name {
			next := make([]namedHandler, 0, len(list)-1)
			next = append(next, list[:i]...)
			m.stages[stage] = append(next, list[i+1:]...)
			return true
		}
	}
	return false
}

func (m *MiddlewareManager) Names(stage Stage) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.stages[stage]))
	for _, nh := range m.stages[stage] {
		out = append(out, nh.name)
	}
	return out
}

// Handler 返回该阶段的总控 handler；每个请求取一份快照执行
func (m *MiddlewareManager) Handler(stage Stage) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.mu.RLock()
		list := m.stages[stage]
		m.mu.RUnlock()

		for _, nh := range list {
			nh.h(c)
			if c.IsAborted() {
				return
			}
		}
		c.Next()
	}
}
