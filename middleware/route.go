package middleware

import (
	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	IsAuth bool
}

// Router 路由注册；IsAuth 的路由先经过 Mids 的 StageAuth
type Router struct {
	R    gin.IRoutes
	Mids *MiddlewareManager
}

func (rt Router) handlers(handler gin.HandlerFunc, opt RouteOpt) []gin.HandlerFunc {
	if opt.IsAuth && rt.Mids != nil {
		return []gin.HandlerFunc{rt.Mids.Handler(StageAuth), handler}
	}
	return []gin.HandlerFunc{handler}
}

// 封装 POST
func (rt Router) POST(path string, handler gin.HandlerFunc, opt RouteOpt) {
	rt.R.POST(path, rt.handlers(handler, opt)...)
}

// 封装 GET
func (rt Router) GET(path string, handler gin.HandlerFunc, opt RouteOpt) {
	rt.R.GET(path, rt.handlers(handler, opt)...)
}
