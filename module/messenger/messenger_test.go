package messenger

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"PPClient/module/chat/model"
	"PPClient/module/session"
	"PPClient/service/querycache"
	"PPClient/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const me = int64(7)

type fakeAPI struct {
	mu      sync.Mutex
	convs   []model.Conversation
	threads map[int64][]model.Message
	nextID  int64

	convCalls   int32
	threadCalls int32
	sendCalls   int32

	listErr  error
	sendErr  error
	listGate chan struct{}
	sendGate chan struct{}
	readHold *hold
}

// hold 让下一次 ListThread 先取快照，再停住直到 release
type hold struct {
	taken   chan struct{}
	release chan struct{}
}

func (f *fakeAPI) holdNextRead() *hold {
	h := &hold{taken: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	f.readHold = h
	f.mu.Unlock()
	return h
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{threads: make(map[int64][]model.Message), nextID: 1}
}

func (f *fakeAPI) seed(other int64, sender int64, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads[other] = append(f.threads[other], model.Message{
		ID:       model.ConfirmedID(f.nextID),
		SenderID: sender,
		Content:  content,
	})
	f.nextID++
}

func (f *fakeAPI) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	atomic.AddInt32(&f.convCalls, 1)
	if f.listGate != nil {
		<-f.listGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Conversation(nil), f.convs...), nil
}

func (f *fakeAPI) ListThread(ctx context.Context, other int64) ([]model.Message, error) {
	atomic.AddInt32(&f.threadCalls, 1)
	f.mu.Lock()
	if f.listErr != nil {
		f.mu.Unlock()
		return nil, f.listErr
	}
	out := append([]model.Message(nil), f.threads[other]...)
	h := f.readHold
	f.readHold = nil
	f.mu.Unlock()

	if h != nil {
		close(h.taken)
		select {
		case <-h.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, req model.SendRequest) (*model.SendResult, error) {
	atomic.AddInt32(&f.sendCalls, 1)
	if f.sendGate != nil {
		<-f.sendGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	id := model.ConfirmedID(f.nextID)
	f.nextID++
	f.threads[req.ReceiverID] = append(f.threads[req.ReceiverID], model.Message{
		ID:       id,
		SenderID: me,
		Content:  req.Content,
	})
	f.convs = []model.Conversation{{OtherUserID: req.ReceiverID, LastMessage: req.Content, LastMessageTime: time.Now()}}
	return &model.SendResult{MessageID: &id}, nil
}

func newTestMessenger(t *testing.T, api API, opts ...Option) *Messenger {
	t.Helper()
	base := []Option{WithRetry(0, 0), WithPollIntervals(0, 0)}
	m, err := New(api, session.Session{UserID: me, Username: "me", Token: "t"}, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func contents(list []model.Message) []string {
	out := make([]string, 0, len(list))
	for _, m := range list {
		out = append(out, m.Content)
	}
	return out
}

func TestNewRejectsInvalidSession(t *testing.T) {
	_, err := New(newFakeAPI(), session.Session{})
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = New(nil, session.Session{UserID: 1})
	assert.ErrorIs(t, err, errs.ErrArgs)
}

func TestThreadOrderedByID(t *testing.T) {
	api := newFakeAPI()
	var msgs []model.Message
	for i := 1; i <= 25; i++ {
		msgs = append(msgs, model.Message{ID: model.ConfirmedID(int64(i)), SenderID: 42})
	}
	rand.Shuffle(len(msgs), func(i, j int) { msgs[i], msgs[j] = msgs[j], msgs[i] })
	api.threads[42] = msgs

	m := newTestMessenger(t, api)
	got, err := m.Thread(42).Messages(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 25)
	for i := range got {
		assert.Equal(t, int64(i+1), got[i].ID.Seq())
	}
}

func TestThreadWithoutCounterpartIsDisabled(t *testing.T) {
	api := newFakeAPI()
	m := newTestMessenger(t, api)

	_, err := m.Thread(0).Messages(context.Background())
	assert.ErrorIs(t, err, ErrNoCounterpart)
	_, err = m.Thread(-3).Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoCounterpart)
	assert.False(t, m.Thread(0).Enabled())

	m.Invalidate(ThreadKey(0))
	m.Focus()
	m.Wait()
	assert.EqualValues(t, 0, atomic.LoadInt32(&api.threadCalls))

	_, err = m.Send(context.Background(), 0, "hi")
	assert.ErrorIs(t, err, ErrNoCounterpart)
}

func TestThreadCachesReused(t *testing.T) {
	m := newTestMessenger(t, newFakeAPI())
	assert.Same(t, m.Thread(5), m.Thread(5))
	assert.NotSame(t, m.Thread(5), m.Thread(6))
}

func TestFetchErrorCarriesKey(t *testing.T) {
	api := newFakeAPI()
	api.listErr = errors.New("down")
	m := newTestMessenger(t, api)

	_, err := m.Conversations().Conversations(context.Background())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ConversationsKey(), fe.Key)
	assert.ErrorIs(t, err, errs.ErrFetchFailed)

	_, err = m.Thread(42).Messages(context.Background())
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ThreadKey(42), fe.Key)

	st := m.Conversations().State()
	assert.Equal(t, querycache.StatusError, st.Status)
	assert.False(t, st.HasData)
}

func TestOptimisticAppendPlacement(t *testing.T) {
	api := newFakeAPI()
	api.seed(42, 42, "m1")
	api.seed(42, me, "m2")
	api.sendGate = make(chan struct{})
	m := newTestMessenger(t, api)

	th := m.Thread(42)
	_, err := th.Messages(context.Background())
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []querycache.State[[]model.Message]
	unsub := th.Subscribe(func(s querycache.State[[]model.Message]) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	defer unsub()

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), 42, "hello")
		done <- err
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, time.Second, time.Millisecond)

	mu.Lock()
	first := seen[0].Data
	mu.Unlock()
	require.Len(t, first, 3)
	assert.Equal(t, []string{"m1", "m2", "hello"}, contents(first))
	pending := first[2]
	assert.True(t, pending.Pending)
	assert.True(t, pending.ID.IsTemp())
	assert.Equal(t, me, pending.SenderID)
	assert.True(t, pending.IsMine(me))
	assert.Equal(t, SendSending, m.SendState(42))

	close(api.sendGate)
	require.NoError(t, <-done)
	assert.Equal(t, SendIdle, m.SendState(42))
}

func TestRollbackOnFailure(t *testing.T) {
	api := newFakeAPI()
	api.seed(42, 42, "m1")
	api.seed(42, 42, "m2")
	api.sendErr = errs.ErrAPIFailed.WrapMsg("rejected")

	var notified []*SendError
	m := newTestMessenger(t, api, WithNotifier(func(e *SendError) { notified = append(notified, e) }))

	th := m.Thread(42)
	before, err := th.Messages(context.Background())
	require.NoError(t, err)

	_, err = m.Send(context.Background(), 42, "hello")
	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "hello", se.Content, "typed input is handed back")
	assert.Equal(t, int64(42), se.ReceiverID)
	assert.ErrorIs(t, err, errs.ErrSendFailed)
	assert.ErrorIs(t, err, errs.ErrAPIFailed)

	assert.Equal(t, before, th.State().Data)
	assert.Empty(t, th.pendingMessages())
	require.Len(t, notified, 1)
	assert.Equal(t, SendIdle, m.SendState(42))

	m.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&api.threadCalls), "failure does not invalidate")
}

func TestSingleFlightPerThread(t *testing.T) {
	api := newFakeAPI()
	api.seed(42, 42, "m1")
	api.sendGate = make(chan struct{})
	m := newTestMessenger(t, api)

	th := m.Thread(42)
	_, err := th.Messages(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), 42, "first")
		done <- err
	}()
	require.Eventually(t, func() bool { return m.SendState(42) == SendSending }, time.Second, time.Millisecond)

	_, err = m.Send(context.Background(), 42, "second")
	assert.ErrorIs(t, err, ErrSendInFlight)
	_, err = m.Like(context.Background(), 42)
	assert.ErrorIs(t, err, ErrSendInFlight)

	pending := 0
	for _, msg := range th.State().Data {
		if msg.Pending {
			pending++
		}
	}
	assert.Equal(t, 1, pending)

	// 其它会话互不影响
	api2done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), 43, "other")
		api2done <- err
	}()
	require.Eventually(t, func() bool { return m.SendState(43) == SendSending }, time.Second, time.Millisecond)

	close(api.sendGate)
	require.NoError(t, <-done)
	require.NoError(t, <-api2done)
	assert.EqualValues(t, 2, atomic.LoadInt32(&api.sendCalls))

	_, err = m.Send(context.Background(), 42, "third")
	assert.NoError(t, err, "flag is cleared after completion")
}

func TestSendValidatesContent(t *testing.T) {
	api := newFakeAPI()
	m := newTestMessenger(t, api)

	_, err := m.Send(context.Background(), 42, "  \n\t")
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.EqualValues(t, 0, atomic.LoadInt32(&api.sendCalls))
	assert.False(t, m.Thread(42).State().HasData)
}

func TestSuccessInvalidatesBothCaches(t *testing.T) {
	api := newFakeAPI()
	api.seed(42, 42, "m1")
	m := newTestMessenger(t, api)

	_, err := m.Conversations().Conversations(context.Background())
	require.NoError(t, err)
	_, err = m.Thread(42).Messages(context.Background())
	require.NoError(t, err)

	_, err = m.Like(context.Background(), 42)
	require.NoError(t, err)
	m.Wait()

	assert.EqualValues(t, 2, atomic.LoadInt32(&api.convCalls))
	assert.EqualValues(t, 2, atomic.LoadInt32(&api.threadCalls))

	convs := m.Conversations().State().Data
	require.Len(t, convs, 1)
	assert.Equal(t, model.LikeToken, convs[0].LastMessage)
	assert.Equal(t, model.KindLike, model.KindOf(convs[0].LastMessage))
}

func TestConcurrentRefreshOneSnapshot(t *testing.T) {
	api := newFakeAPI()
	api.convs = []model.Conversation{{OtherUserID: 1}, {OtherUserID: 2}}
	api.listGate = make(chan struct{})
	m := newTestMessenger(t, api)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Conversations().Refresh(context.Background())
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&api.convCalls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(api.listGate)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&api.convCalls))
	assert.Len(t, m.Conversations().State().Data, 2)
}

func TestUnreadTotalTreatsMissingAsZero(t *testing.T) {
	two := 2
	api := newFakeAPI()
	api.convs = []model.Conversation{
		{OtherUserID: 1},
		{OtherUserID: 2, UnreadCount: &two},
	}
	m := newTestMessenger(t, api)
	_, err := m.Conversations().Conversations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m.Conversations().UnreadTotal())
}

func TestSendConvergesOnServerState(t *testing.T) {
	api := newFakeAPI()
	api.seed(42, 42, "hi")
	api.sendGate = make(chan struct{})
	m := newTestMessenger(t, api)

	th := m.Thread(42)
	got, err := th.Messages(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), 42, "hello")
		done <- err
	}()
	require.Eventually(t, func() bool { return len(th.State().Data) == 2 }, time.Second, time.Millisecond)

	optimistic := th.State().Data
	assert.Equal(t, int64(1), optimistic[0].ID.Seq())
	assert.True(t, optimistic[1].ID.IsTemp())
	assert.True(t, optimistic[1].Pending)
	assert.Equal(t, me, optimistic[1].SenderID)

	close(api.sendGate)
	require.NoError(t, <-done)
	m.Wait()

	final := th.State().Data
	require.Len(t, final, 2)
	assert.Equal(t, int64(1), final[0].ID.Seq())
	assert.Equal(t, int64(2), final[1].ID.Seq())
	assert.Equal(t, "hello", final[1].Content)
	assert.Equal(t, me, final[1].SenderID)
	for _, msg := range final {
		assert.False(t, msg.Pending)
		assert.False(t, msg.ID.IsTemp())
	}
}

func TestPendingSurvivesPollDuringSend(t *testing.T) {
	api := newFakeAPI()
	api.seed(42, 42, "hi")
	api.sendGate = make(chan struct{})
	m := newTestMessenger(t, api)

	th := m.Thread(42)
	_, err := th.Messages(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), 42, "hello")
		done <- err
	}()
	require.Eventually(t, func() bool { return m.SendState(42) == SendSending }, time.Second, time.Millisecond)

	got, err := th.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "hello"}, contents(got))
	assert.True(t, got[1].Pending)

	close(api.sendGate)
	require.NoError(t, <-done)
}

func TestSendSuccessOutrunsReadStartedDuringSend(t *testing.T) {
	api := newFakeAPI()
	api.seed(42, 42, "hi")
	api.sendGate = make(chan struct{})
	m := newTestMessenger(t, api)

	th := m.Thread(42)
	_, err := th.Messages(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), 42, "hello")
		done <- err
	}()
	require.Eventually(t, func() bool { return len(th.State().Data) == 2 }, time.Second, time.Millisecond)

	// 轮询在发送途中读到了落库之前的服务端
	h := api.holdNextRead()
	refreshed := make(chan []model.Message, 1)
	go func() {
		got, err := th.Refresh(context.Background())
		assert.NoError(t, err)
		refreshed <- got
	}()
	<-h.taken

	close(api.sendGate)
	require.NoError(t, <-done)
	close(h.release)

	assert.Equal(t, []string{"hi", "hello"}, contents(<-refreshed))
	m.Wait()

	s := th.State()
	assert.Equal(t, []string{"hi", "hello"}, contents(s.Data))
	assert.False(t, s.Stale)
	for _, msg := range s.Data {
		assert.False(t, msg.Pending)
	}
}

func TestReadOverlappingSendDoesNotFail(t *testing.T) {
	api := newFakeAPI()
	api.seed(42, 42, "hi")
	m := newTestMessenger(t, api)
	th := m.Thread(42)

	h := api.holdNextRead()
	loaded := make(chan error, 1)
	var got []model.Message
	go func() {
		var err error
		got, err = th.Messages(context.Background())
		loaded <- err
	}()
	<-h.taken

	_, err := m.Send(context.Background(), 42, "hello")
	require.NoError(t, err)

	require.NoError(t, <-loaded)
	require.NotEmpty(t, got)
	assert.Equal(t, "hi", got[0].Content)
	assert.Equal(t, "hello", got[len(got)-1].Content)

	m.Wait()
	assert.Equal(t, []string{"hi", "hello"}, contents(th.State().Data))
}

func TestRollbackAfterMidSendRefetchIsStale(t *testing.T) {
	api := newFakeAPI()
	api.seed(42, 42, "m1")
	api.sendGate = make(chan struct{})
	api.sendErr = errs.ErrAPIFailed.WrapMsg("rejected")
	m := newTestMessenger(t, api, WithStaleTimes(time.Hour, time.Hour))

	th := m.Thread(42)
	before, err := th.Messages(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), 42, "hello")
		done <- err
	}()
	require.Eventually(t, func() bool { return len(th.State().Data) == 2 }, time.Second, time.Millisecond)

	// 对方在发送途中回复，刷新把它带了进来
	api.seed(42, 42, "reply")
	mid, err := th.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "reply", "hello"}, contents(mid))
	assert.False(t, th.State().Stale)

	close(api.sendGate)
	require.Error(t, <-done)

	s := th.State()
	assert.Equal(t, before, s.Data)
	assert.True(t, s.Stale)

	again, err := th.Messages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "reply"}, contents(again))
}

func TestExternalInvalidation(t *testing.T) {
	api := newFakeAPI()
	api.seed(42, 42, "hi")
	m := newTestMessenger(t, api)

	_, err := m.Thread(42).Messages(context.Background())
	require.NoError(t, err)
	api.seed(42, 42, "again")

	k, err := ParseCacheKey("conversation:42")
	require.NoError(t, err)
	m.Invalidate(k)
	m.Wait()
	assert.Equal(t, []string{"hi", "again"}, contents(m.Thread(42).State().Data))
}

func TestThreadPollingStopsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	api := newFakeAPI()
	api.seed(42, 42, "hi")
	m, err := New(api, session.Session{UserID: me}, WithRetry(0, 0), WithPollIntervals(0, 5*time.Millisecond))
	require.NoError(t, err)

	unsub := m.Thread(42).Subscribe(func(querycache.State[[]model.Message]) {})
	require.Eventually(t, func() bool { return atomic.LoadInt32(&api.threadCalls) >= 3 }, time.Second, time.Millisecond)
	unsub()
	require.NoError(t, m.Close())
}
