package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"PPClient/global"
	"PPClient/module/chat/model"
	"PPClient/module/messenger"
	"PPClient/module/session"
	"PPClient/tools/errs"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	pathConversations = "/conversations"
	pathSend          = "/messages/send"
	pathToken         = "/auth/token"
)

// Config REST 客户端参数
type Config struct {
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
}

// Error 一次失败的 API 调用：传输错误、非 2xx 或 success=false。
// errors.Is(err, errs.ErrAPIFailed) 恒为 true。
type Error struct {
	Method  string
	Path    string
	Status  int    // 0 表示请求没有拿到响应
	Message string // 服务端 message，或本地描述
	Err     error  // 传输层原因
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s %s", e.Method, e.Path)
	if e.Status != 0 {
		s += " status=" + strconv.Itoa(e.Status)
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{errs.ErrAPIFailed}
	}
	return []error{errs.ErrAPIFailed, e.Err}
}

// Client 基于 resty 的 REST 实现
type Client struct {
	rc *resty.Client
}

var _ messenger.API = (*Client)(nil)

// New 以会话 token 作为 Bearer 凭证
func New(cfg Config, sess session.Session) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeaders(cfg.Headers)
	if sess.Token != "" {
		rc.SetAuthToken(sess.Token)
	}
	return &Client{rc: rc}
}

func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var out []model.Conversation
	if err := c.do(ctx, http.MethodGet, pathConversations, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListThread(ctx context.Context, otherUserID int64) ([]model.Message, error) {
	var out []model.Message
	path := pathConversations + "/" + strconv.FormatInt(otherUserID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, req model.SendRequest) (*model.SendResult, error) {
	var out model.SendResult
	if err := c.do(ctx, http.MethodPost, pathSend, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	env := &global.Resp{}
	req := c.rc.R().
		SetContext(ctx).
		SetHeader("X-Request-Id", uuid.NewString()).
		SetResult(env).
		SetError(env)
	if body != nil {
		req.SetBody(body)
	}

	res, err := req.Execute(method, path)
	if err != nil {
		return &Error{Method: method, Path: path, Err: err}
	}
	if res.IsError() {
		msg := env.Message
		if msg == "" {
			msg = res.Status()
		}
		return &Error{Method: method, Path: path, Status: res.StatusCode(), Message: msg}
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "success=false"
		}
		return &Error{Method: method, Path: path, Status: res.StatusCode(), Message: msg}
	}
	if err := env.Decode(out); err != nil {
		return &Error{Method: method, Path: path, Status: res.StatusCode(), Message: "decode data", Err: err}
	}
	return nil
}

// IssueToken 向开发服务端申请令牌；不需要已有会话
func IssueToken(ctx context.Context, cfg Config, req model.TokenRequest) (*model.TokenResult, error) {
	c := New(cfg, session.Session{})
	var out model.TokenResult
	if err := c.do(ctx, http.MethodPost, pathToken, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
