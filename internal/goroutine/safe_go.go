package goroutine

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/ignatzorin/freelance-marketplace/internal/logger"
)

// Logger интерфейс для логирования ошибок. Ему удовлетворяет *logrus.Logger.
type Logger interface {
	Errorf(format string, args ...interface{})
}

// RecoveryHandler обрабатывает panic в горутинах
type RecoveryHandler struct {
	logger Logger
}

// NewRecoveryHandler создает новый обработчик
func NewRecoveryHandler(logger Logger) *RecoveryHandler {
	return &RecoveryHandler{logger: logger}
}

// SafeGo запускает горутину с обработкой panic
func (rh *RecoveryHandler) SafeGo(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				rh.logger.Errorf("goroutine: panic: %v\nStack trace:\n%s", r, debug.Stack())
			}
		}()
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic
func (rh *RecoveryHandler) SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				rh.logger.Errorf("goroutine: panic (with context): %v\nStack trace:\n%s", r, debug.Stack())
			}
		}()
		fn(ctx)
	}()
}

// PanicError panic, перехваченная Recover.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recover выполняет fn в текущей горутине и превращает panic в *PanicError.
func (rh *RecoveryHandler) Recover(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			rh.logger.Errorf("goroutine: panic: %v\nStack trace:\n%s", r, stack)
			err = &PanicError{Value: r, Stack: stack}
		}
	}()
	return fn()
}

// DefaultRecoveryHandler - глобальный обработчик поверх logger.Log
var DefaultRecoveryHandler = NewRecoveryHandler(logger.Log)

// SafeGo - упрощенная функция для запуска безопасной горутины
func SafeGo(fn func()) {
	DefaultRecoveryHandler.SafeGo(fn)
}

// SafeGoWithContext - упрощенная функция для запуска безопасной горутины с контекстом
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	DefaultRecoveryHandler.SafeGoWithContext(ctx, fn)
}

// Recover - упрощенная функция для синхронного выполнения с перехватом panic
func Recover(fn func() error) error {
	return DefaultRecoveryHandler.Recover(fn)
}
