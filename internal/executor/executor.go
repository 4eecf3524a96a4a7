package executor

import (
	"context"
	"fmt"
	"time"
)

// ActionExecutor — граница с внешним миром: супервизор отдает команду,
// исполнитель возвращает сырой результат. Вся физика полета спрятана за
// этим интерфейсом и ядро о ней ничего не знает.
type ActionExecutor interface {
	Call(ctx context.Context, action string, payload []byte) ([]byte, error)
}

// ThrottleError — исполнитель перегружен и сам сказал, когда приходить
// (аналог Retry-After). Обертка надежности учитывает это время вместо
// стандартного бэкоффа.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error {
	return e.Cause
}
