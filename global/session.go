package global

import "github.com/gin-gonic/gin"

// gin 上下文中的鉴权结果
const (
	CtxUserIDKey   = "ppchat.userId"
	CtxUsernameKey = "ppchat.username"
)

func SetUser(c *gin.Context, userID int64, username string) {
	c.Set(CtxUserIDKey, userID)
	c.Set(CtxUsernameKey, username)
}

// UserID 返回鉴权中间件写入的用户ID；未鉴权时 ok=false
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}
