package hint

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"PPClient/logger"
	"PPClient/tools/errs"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSListener 连接 /ws 接收失效提示，断线后指数退避重连
type WSListener struct {
	URL    string
	Token  string
	Inv    Invalidator
	Dialer *websocket.Dialer
	// MaxInterval 重连退避上限
	MaxInterval time.Duration
	// PongWait 多久收不到任何帧（含 ping/pong）就认为连接已断
	PongWait time.Duration

	log *zap.Logger
}

// WSURL 把 REST 基地址转成 ws(s)://.../ws
func WSURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", errs.ErrArgs.WrapMsg("bad base url", "url", baseURL)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errs.ErrArgs.WrapMsg("unsupported scheme", "url", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func NewWSListener(wsURL, token string, inv Invalidator) *WSListener {
	return &WSListener{
		URL:         wsURL,
		Token:       token,
		Inv:         inv,
		Dialer:      websocket.DefaultDialer,
		MaxInterval: 30 * time.Second,
		PongWait:    60 * time.Second,
		log:         logger.Named("hint.ws"),
	}
}

// Run 阻塞直到 ctx 结束
func (l *WSListener) Run(ctx context.Context) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	eb.MaxInterval = l.MaxInterval
	eb.MaxElapsedTime = 0 // 永不放弃
	b := backoff.WithContext(eb, ctx)

	for {
		connected, err := l.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			b.Reset()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return nil
		}
		l.log.Debug("hint stream lost, reconnecting", zap.Duration("in", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// session 一次连接的生命周期；connected 表示握手成功过
func (l *WSListener) session(ctx context.Context) (connected bool, err error) {
	hdr := http.Header{}
	if l.Token != "" {
		hdr.Set("Authorization", "Bearer "+l.Token)
	}
	ws, _, err := l.Dialer.DialContext(ctx, l.URL, hdr)
	if err != nil {
		return false, err
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	pongWait := l.PongWait
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	alive := func() error { return ws.SetReadDeadline(time.Now().Add(pongWait)) }
	_ = alive()
	ws.SetPongHandler(func(string) error { return alive() })
	ws.SetPingHandler(func(data string) error {
		_ = alive()
		err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	done := make(chan struct{})
	defer close(done)
	go l.ping(ws, pongWait*9/10, done)

	l.log.Info("hint stream connected", zap.String("url", l.URL))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return true, err
		}
		_ = alive()
		h, err := Decode(data)
		if err != nil {
			l.log.Debug("bad hint frame", zap.Error(err))
			continue
		}
		Apply(l.Inv, h, l.log)
	}
}

// ping 半开连接上读不到任何东西，靠心跳触发读超时
func (l *WSListener) ping(ws *websocket.Conn, period time.Duration, done <-chan struct{}) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
