package devapi

import (
	"net/http"
	"time"

	"PPClient/global"
	"PPClient/global/config"
	"PPClient/logger"
	"PPClient/middleware"
	"PPClient/middleware/security"
	"PPClient/service/chat"
	"PPClient/service/events"
	"PPClient/service/storage"
	jwtlib "PPClient/tools/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server 开发用 REST 服务端：三个消息接口 + 令牌签发 + /ws 失效提示
type Server struct {
	store  storage.Store
	hub    *chat.Hub
	events *events.Publisher
	jwt    jwtlib.Options
	engine *gin.Engine
	mids   *middleware.MiddlewareManager
	log    *zap.Logger
	now    func() time.Time
}

func New(conf config.ServerConfig, store storage.Store, hub *chat.Hub, pub *events.Publisher) *Server {
	jwt := jwtlib.DefaultOptions([]byte(conf.JwtSecret))
	if conf.TokenTTL > 0 {
		jwt.TTL = conf.TokenTTL
	}
	if pub == nil {
		pub = events.NewPublisher()
		pub.Hub = hub
	}
	s := &Server{
		store:  store,
		hub:    hub,
		events: pub,
		jwt:    jwt,
		engine: gin.New(),
		mids:   middleware.NewManager(),
		log:    logger.Named("devapi"),
		now:    time.Now,
	}

	auth := security.DefaultOptions([]byte(conf.JwtSecret))
	auth.JWT = jwt
	s.mids.Add(middleware.StageGlobal, midOrigin, middleware.Origin(conf.AllowOrigins))
	s.mids.Add(middleware.StageAuth, midAuth, security.Middleware(auth))
	s.SetDebug(conf.Debug)
	s.engine.Use(gin.Recovery(), s.mids.Handler(middleware.StageGlobal))

	s.routes(middleware.Router{R: s.engine, Mids: s.mids})
	return s
}

const (
	midOrigin = "origin"
	midAuth   = "auth"
	midDebug  = "debug"
)

// SetDebug 开关请求体调试日志，运行中也可以切换
func (s *Server) SetDebug(on bool) {
	if on {
		s.mids.Add(middleware.StageGlobal, midDebug, global.DebugBody)
		return
	}
	s.mids.Remove(middleware.StageGlobal, midDebug)
}

// Apply 应用运行中可热更新的配置：日志级别和调试日志
func (s *Server) Apply(next config.ServerConfig) {
	logger.SetLevel(next.LogLevel)
	s.SetDebug(next.Debug)
	s.log.Info("config reloaded", zap.String("logLevel", next.LogLevel), zap.Bool("debug", next.Debug))
}

func (s *Server) routes(rt middleware.Router) {
	rt.GET("/healthz", s.health, middleware.RouteOpt{})
	rt.POST("/auth/token", s.issueToken, middleware.RouteOpt{})
	rt.GET("/conversations", s.listConversations, middleware.RouteOpt{IsAuth: true})
	rt.GET("/conversations/:otherUserId", s.getThread, middleware.RouteOpt{IsAuth: true})
	rt.POST("/messages/send", s.sendMessage, middleware.RouteOpt{IsAuth: true})
	rt.GET("/ws", s.hub.HandleWS, middleware.RouteOpt{IsAuth: true})
}

func (s *Server) Handler() http.Handler { return s.engine }
