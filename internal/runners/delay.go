package runners

import (
	"context"
	"fmt"
	"time"
)

// DelayHandler — действие паузы заданной длительности.
//
// Конфигурация:
//   - duration_ms: длительность в миллисекундах
//   - duration_sec: длительность в секундах (если duration_ms не задана)
type DelayHandler struct{}

// NewDelayHandler создаёт действие паузы.
func NewDelayHandler() *DelayHandler {
	return &DelayHandler{}
}

// Action возвращает имя действия.
func (h *DelayHandler) Action() string {
	return "delay"
}

// Run ожидает заданную длительность с учётом отмены контекста.
func (h *DelayHandler) Run(ctx context.Context, req *Request) error {
	var duration time.Duration

	if ms := GetConfigInt(req.Config, "duration_ms"); ms > 0 {
		duration = time.Duration(ms) * time.Millisecond
	} else if sec := GetConfigInt(req.Config, "duration_sec"); sec > 0 {
		duration = time.Duration(sec) * time.Second
	}

	if duration <= 0 {
		return fmt.Errorf("%w: duration_ms or duration_sec is required", ErrInvalidConfig)
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
