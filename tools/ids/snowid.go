package ids

import (
	"strconv"
	"sync"
	"time"
)

// TempPrefix marks a client-generated id that the server has not confirmed.
const TempPrefix = "temp-"

type generator struct {
	mu       sync.Mutex
	lastTSMS int64
	now      func() time.Time
}

var (
	defaultGen *generator
	once       sync.Once
)

// initDefault 初始化默认生成器
func initDefault() {
	once.Do(func() {
		defaultGen = &generator{now: time.Now}
	})
}

// TempMillis returns a strictly increasing unix-millisecond timestamp. Two
// calls inside the same millisecond get consecutive values.
func TempMillis() int64 {
	initDefault()
	return defaultGen.next()
}

// TempID returns "temp-<timestamp>".
func TempID() string {
	return TempPrefix + strconv.FormatInt(TempMillis(), 10)
}

// ---------------- 内部方法 ----------------
func (g *generator) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UnixMilli()
	if now <= g.lastTSMS {
		// 同一毫秒或时钟回拨：沿用上次 +1，保证单调
		now = g.lastTSMS + 1
	}
	g.lastTSMS = now
	return now
}
