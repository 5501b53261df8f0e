package security

import (
	"net/http"
	"strings"

	"PPClient/global"
	jwtlib "PPClient/tools/security"

	"github.com/gin-gonic/gin"
)

// 你后续模块可统一用这个 key 读取原始令牌
const PPCtxAuthKey = "authorization"

type Options struct {
	JWT jwtlib.Options
	// 读取哪个请求头
	HeaderToken               string // 默认 "authorization"
	EnableAuthorizationBearer bool   // 默认 true
	// 浏览器的 WebSocket 无法带请求头，允许 ?token=
	QueryToken string // 默认 "token"
}

func DefaultOptions(secret []byte) *Options {
	return &Options{
		JWT:                       jwtlib.DefaultOptions(secret),
		HeaderToken:               PPCtxAuthKey,
		EnableAuthorizationBearer: true,
		QueryToken:                "token",
	}
}

// TokenFrom 依次尝试 Authorization: Bearer、自定义头、查询参数
func TokenFrom(c *gin.Context, opts *Options) string {
	if opts.EnableAuthorizationBearer {
		authz := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
			return strings.TrimSpace(authz[7:])
		}
	}
	if opts.HeaderToken != "" && !strings.EqualFold(opts.HeaderToken, "Authorization") {
		if t := strings.TrimSpace(c.GetHeader(opts.HeaderToken)); t != "" {
			return t
		}
	}
	if opts.QueryToken != "" {
		return strings.TrimSpace(c.Query(opts.QueryToken))
	}
	return ""
}

// Middleware 校验 JWT，成功后把用户写入上下文；失败统一 401
func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFrom(c, opts)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, global.Fail("missing token"))
			return
		}
		claims, err := jwtlib.Verify(opts.JWT, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, global.Fail("invalid token"))
			return
		}
		id, err := claims.Identity()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, global.Fail("invalid token"))
			return
		}
		c.Set(PPCtxAuthKey, token)
		global.SetUser(c, id.UserID, id.Username)
	}
}
