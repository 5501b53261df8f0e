package mongoutil

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"PPClient/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
)

// Config MongoDB 连接配置；Uri 与 Address 二选一，Uri 优先
type Config struct {
	Uri         string   `yaml:"uri"`
	Address     []string `yaml:"address"`
	Database    string   `yaml:"database"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	AuthSource  string   `yaml:"authSource"`
	MaxPoolSize int      `yaml:"maxPoolSize"`
	MaxRetry    int      `yaml:"maxRetry"`
}

const (
	defaultMaxPoolSize = 100
	defaultMaxRetry    = 3

	codeUnauthorized = 13
	codeAuthFailed   = 18
)

// ValidateAndSetDefaults 补默认值；只给了 Address 时拼出 Uri
func (c *Config) ValidateAndSetDefaults() error {
	switch {
	case c.Uri == "" && len(c.Address) == 0:
		return errs.ErrArgs.WrapMsg("mongo uri or address is required")
	case c.Database == "":
		return errs.ErrArgs.WrapMsg("mongo database is required")
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	if c.Uri == "" {
		c.Uri = c.buildURI()
	}
	return nil
}

// buildURI mongodb://[user:pass@]h1,h2/db?authSource=..&maxPoolSize=..
// authSource 缺省时用库名
func (c *Config) buildURI() string {
	authSource := c.AuthSource
	if authSource == "" {
		authSource = c.Database
	}
	var b strings.Builder
	b.WriteString("mongodb://")
	if c.Username != "" && c.Password != "" {
		b.WriteString(url.UserPassword(c.Username, c.Password).String())
		b.WriteByte('@')
	}
	b.WriteString(strings.Join(c.Address, ","))
	b.WriteByte('/')
	b.WriteString(c.Database)

	q := url.Values{}
	q.Set("authSource", authSource)
	q.Set("maxPoolSize", strconv.Itoa(c.MaxPoolSize))
	b.WriteByte('?')
	b.WriteString(q.Encode())
	return b.String()
}

// retryable 认证失败重试也不会成功；ctx 结束后也不再重试
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code != codeUnauthorized && cmdErr.Code != codeAuthFailed
	}
	return true
}
