package safe

import (
	"PPClient/logger"
	"PPClient/tools/errs"

	"go.uber.org/zap"
)

// DefaultString returns the dereferenced value of a string pointer,
// or the fallback if the pointer is nil.
func DefaultString(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// DefaultInt returns the dereferenced value of an int pointer,
// or the fallback if the pointer is nil.
func DefaultInt(i *int, fallback int) int {
	if i == nil {
		return fallback
	}
	return *i
}

// DefaultBool returns the dereferenced value of a bool pointer,
// or the fallback if the pointer is nil.
func DefaultBool(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}

// SafeGo starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func SafeGo(f func()) {
	go Run(f)
}

// Run calls f and logs a recovered panic instead of propagating it.
func Run(f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[SafeGo] panic recovered", zap.Error(errs.ErrPanic(r)))
		}
	}()
	f()
}
