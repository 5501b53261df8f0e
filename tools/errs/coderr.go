package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// 错误码
const (
	ServerInternalError = 500
	ArgsError           = 1001
	UnauthorizedError   = 1002
	NotFoundError       = 1003
	NoCounterpartError  = 1004
	EmptyContentError   = 1005
	APIFailedError      = 2001 // 服务端返回 success=false 或非 2xx
	FetchFailedError    = 2002
	SendFailedError     = 2003
	SendInFlightError   = 2004
)

var (
	ErrInternalServer = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrArgs           = NewCodeError(ArgsError, "ArgsError")
	ErrUnauthorized   = NewCodeError(UnauthorizedError, "Unauthorized")
	ErrNotFound       = NewCodeError(NotFoundError, "NotFound")
	ErrNoCounterpart  = NewCodeError(NoCounterpartError, "NoCounterpart")
	ErrEmptyContent   = NewCodeError(EmptyContentError, "EmptyContent")
	ErrAPIFailed      = NewCodeError(APIFailedError, "APIFailed")
	ErrFetchFailed    = NewCodeError(FetchFailedError, "FetchFailed")
	ErrSendFailed     = NewCodeError(SendFailedError, "SendFailed")
	ErrSendInFlight   = NewCodeError(SendInFlightError, "SendInFlight")
)

type CodeErrorI interface {
	ECode() int
	EMsg() string
	DDetail() string
	error
}

func NewCodeError(code int, msg string) CodeError {
	return CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e CodeError) ECode() int      { return e.Code }
func (e CodeError) EMsg() string    { return e.Msg }
func (e CodeError) DDetail() string { return e.Detail }

func (e CodeError) WithDetail(detail string) CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

// Wrap attaches a stack trace to the code error.
func (e CodeError) Wrap() error {
	return pkgerrors.WithStack(e)
}

// WrapMsg appends msg and key/value pairs to the detail and attaches a stack.
func (e CodeError) WrapMsg(msg string, kv ...any) error {
	retErr := e
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if retErr.Detail == "" {
			retErr.Detail = detail
		} else {
			retErr.Detail += ", " + detail
		}
	}
	return pkgerrors.WithStack(retErr)
}

// Is matches any CodeError carrying the same code, whatever the detail.
func (e CodeError) Is(target error) bool {
	var codeErr CodeError
	if !errors.As(target, &codeErr) {
		return false
	}
	return e.Code == codeErr.Code
}

const initialCapacity = 3

func (e CodeError) Error() string {
	v := make([]string, 0, initialCapacity)
	v = append(v, strconv.Itoa(e.Code), e.Msg)

	if e.Detail != "" {
		v = append(v, e.Detail)
	}

	return strings.Join(v, " ")
}

// Code returns the CodeError code carried by err, or 0.
func Code(err error) int {
	var codeErr CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return 0
}

func New(msg string, kv ...any) error {
	return pkgerrors.New(toString(msg, kv))
}

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithMessage(pkgerrors.WithStack(err), toString(msg, kv))
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprint(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			sb.WriteString("MISSING")
		}
	}
	return sb.String()
}
