package messenger

import (
	"fmt"

	"PPClient/tools/errs"
)

var (
	// ErrSendInFlight 同一会话已有发送未完成
	ErrSendInFlight = errs.ErrSendInFlight
	// ErrNoCounterpart 未指定对方用户；会话缓存处于禁用状态
	ErrNoCounterpart = errs.ErrNoCounterpart
	// ErrEmptyContent 去掉空白后内容为空
	ErrEmptyContent = errs.ErrEmptyContent
)

// FetchError 读取会话列表或消息列表失败（网络错误或服务端 success=false）。
// UI 应展示可重试的错误状态，而不是把旧数据当作最新数据。
type FetchError struct {
	Key CacheKey
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Key, e.Err)
}

// Unwrap exposes both the cause and errs.ErrFetchFailed to errors.Is.
func (e *FetchError) Unwrap() []error {
	return []error{errs.ErrFetchFailed, e.Err}
}

// SendError 发送失败；乐观插入的消息已回滚，用户输入保留在 Content 中。
type SendError struct {
	ReceiverID int64
	Content    string
	Err        error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %d: %v", e.ReceiverID, e.Err)
}

func (e *SendError) Unwrap() []error {
	return []error{errs.ErrSendFailed, e.Err}
}
