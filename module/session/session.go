package session

import (
	"strings"

	"PPClient/tools/errs"
	"PPClient/tools/security"
)

// Session 当前登录用户上下文；显式注入到会话列表、消息缓存与发送管线，
// 不从全局存储读取。
type Session struct {
	UserID         int64
	Username       string
	ProfilePicture string
	Token          string
}

// FromToken builds a Session from an access token's claims.
func FromToken(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, errs.ErrUnauthorized.WrapMsg("empty token")
	}
	claims, err := security.ParseUnverified(token)
	if err != nil {
		return Session{}, errs.ErrUnauthorized.WrapMsg("parse token", "err", err)
	}
	id, err := claims.Identity()
	if err != nil {
		return Session{}, errs.ErrUnauthorized.WrapMsg("token identity", "err", err)
	}
	return Session{
		UserID:         id.UserID,
		Username:       id.Username,
		ProfilePicture: id.ProfilePicture,
		Token:          token,
	}, nil
}

func (s Session) Valid() bool { return s.UserID > 0 }
