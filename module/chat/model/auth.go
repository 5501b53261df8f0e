package model

import "time"

// TokenRequest POST /auth/token 请求体（仅开发服务端提供）
type TokenRequest struct {
	UserID         int64  `json:"userId"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

type TokenResult struct {
	Token    string    `json:"token"`
	ExpireAt time.Time `json:"expireAt"`
}
