package devapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"PPClient/global/config"
	"PPClient/middleware"
	"PPClient/module/chat/model"
	"PPClient/module/messenger"
	"PPClient/module/session"
	"PPClient/service/api"
	"PPClient/service/chat"
	"PPClient/service/hint"
	"PPClient/service/storage"
	"PPClient/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	srv   *httptest.Server
	hub   *chat.Hub
	store storage.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conf := config.DefaultServer()
	store := storage.NewMemory()
	hub := chat.NewHub(conf.Hub)
	srv := httptest.NewServer(New(conf, store, hub, nil).Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &env{srv: srv, hub: hub, store: store}
}

func (e *env) login(t *testing.T, id int64, name string) session.Session {
	t.Helper()
	res, err := api.IssueToken(context.Background(), api.Config{BaseURL: e.srv.URL}, model.TokenRequest{UserID: id, Username: name})
	require.NoError(t, err)
	assert.True(t, res.ExpireAt.After(time.Now()))
	sess, err := session.FromToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, id, sess.UserID)
	assert.Equal(t, name, sess.Username)
	return sess
}

func (e *env) messenger(t *testing.T, sess session.Session) *messenger.Messenger {
	t.Helper()
	m, err := messenger.New(api.New(api.Config{BaseURL: e.srv.URL}, sess), sess,
		messenger.WithRetry(0, 0), messenger.WithPollIntervals(0, 0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestSendConvergesAgainstServer(t *testing.T) {
	e := newEnv(t)
	alice := e.login(t, 1, "alice")
	bob := e.login(t, 2, "bob")
	ctx := context.Background()

	ma := e.messenger(t, alice)
	_, err := ma.Thread(2).Messages(ctx)
	require.NoError(t, err)

	res, err := ma.Send(ctx, 2, "hello")
	require.NoError(t, err)
	require.NotNil(t, res.MessageID)
	ma.Wait()

	got := ma.Thread(2).State().Data
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Content)
	assert.Equal(t, "alice", got[0].SenderUsername)
	assert.Equal(t, res.MessageID.Seq(), got[0].ID.Seq())
	assert.False(t, got[0].Pending)

	convs, err := ma.Conversations().Conversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, int64(2), convs[0].OtherUserID)
	assert.Equal(t, "bob", convs[0].OtherUsername)
	assert.Equal(t, 0, ma.Conversations().UnreadTotal())

	mb := e.messenger(t, bob)
	convs, err = mb.Conversations().Conversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "alice", convs[0].OtherUsername)
	assert.Equal(t, 1, mb.Conversations().UnreadTotal())

	// 打开对话即已读
	_, err = mb.Thread(1).Messages(ctx)
	require.NoError(t, err)
	convs, err = mb.Conversations().Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, convs[0].Unread())
}

func TestSendRejectedRollsBack(t *testing.T) {
	e := newEnv(t)
	alice := e.login(t, 1, "alice")
	ctx := context.Background()
	ma := e.messenger(t, alice)

	_, err := ma.Thread(1).Messages(ctx)
	require.NoError(t, err)
	_, err = ma.Send(ctx, 1, "me again")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSendFailed))
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	var sendErr *messenger.SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Equal(t, "me again", sendErr.Content)
	assert.Empty(t, ma.Thread(1).State().Data)
}

func TestRoutesRequireToken(t *testing.T) {
	e := newEnv(t)
	cli := api.New(api.Config{BaseURL: e.srv.URL}, session.Session{UserID: 1, Token: "forged"})

	_, err := cli.ListConversations(context.Background())
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.True(t, errors.Is(err, errs.ErrAPIFailed))

	_, err = api.IssueToken(context.Background(), api.Config{BaseURL: e.srv.URL}, model.TokenRequest{})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	res, err := http.Get(e.srv.URL + "/healthz")
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestBadThreadID(t *testing.T) {
	e := newEnv(t)
	alice := e.login(t, 1, "alice")
	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/conversations/abc", nil)
	req.Header.Set("Authorization", "Bearer "+alice.Token)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

type recorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *recorder) Invalidate(keys ...messenger.CacheKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		r.keys = append(r.keys, k.String())
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func TestSendPushesHintsToReceiver(t *testing.T) {
	e := newEnv(t)
	alice := e.login(t, 1, "alice")
	bob := e.login(t, 2, "bob")

	wsURL, err := hint.WSURL(e.srv.URL)
	require.NoError(t, err)
	rec := &recorder{}
	l := hint.NewWSListener(wsURL, bob.Token, rec)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()
	require.Eventually(t, func() bool { return e.hub.Online() == 1 }, 2*time.Second, 10*time.Millisecond)

	ma := e.messenger(t, alice)
	_, err = ma.Send(context.Background(), 2, "ping")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"conversations", "conversation:1"}, rec.snapshot())
}

func TestOpenStore(t *testing.T) {
	conf := config.DefaultServer()
	st, err := OpenStore(context.Background(), conf)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	conf.Store = "sqlite"
	_, err = OpenStore(context.Background(), conf)
	assert.True(t, errors.Is(err, errs.ErrArgs))
}

func TestApplyTogglesDebugLogging(t *testing.T) {
	gin.SetMode(gin.TestMode)
	conf := config.DefaultServer()
	hub := chat.NewHub(conf.Hub)
	defer hub.Close()
	s := New(conf, storage.NewMemory(), hub, nil)

	assert.Equal(t, []string{"origin"}, s.mids.Names(middleware.StageGlobal))
	assert.Equal(t, []string{"auth"}, s.mids.Names(middleware.StageAuth))

	next := conf
	next.Debug = true
	s.Apply(next)
	assert.Equal(t, []string{"origin", "debug"}, s.mids.Names(middleware.StageGlobal))

	// 打开调试后鉴权路由照常
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	next.Debug = false
	s.Apply(next)
	assert.Equal(t, []string{"origin"}, s.mids.Names(middleware.StageGlobal))
}
