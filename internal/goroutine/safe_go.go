package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/festmatch/festmatch-backend/internal/logger"
)

// SafeGo запускает горутину с обработкой panic. Используется для побочных
// эффектов (уведомления), которые не должны ронять основной поток.
func SafeGo(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if logger.Log != nil {
					logger.Log.Errorf("panic in goroutine: %v\n%s", r, debug.Stack())
				}
			}
		}()
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic.
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	SafeGo(func() { fn(ctx) })
}
