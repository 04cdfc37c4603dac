package runners

import (
	"context"
	"errors"
)

// Ошибки выполнения действий.
var (
	// ErrActionNotFound — действие не зарегистрировано в реестре.
	ErrActionNotFound = errors.New("action not found")

	// ErrInvalidConfig — невалидная конфигурация действия.
	ErrInvalidConfig = errors.New("invalid action config")

	// ErrCancelled — выполнение действия отменено.
	ErrCancelled = errors.New("action cancelled")
)

// Handler — реализация одного действия узла.
//
// Действие выбирается полем configuration.action узла. Узлы без
// действия выполняются runner'ом по умолчанию (имитация работы).
type Handler interface {
	// Action возвращает имя действия.
	Action() string

	// Run выполняет действие. Должен проверять ctx.Done()
	// для graceful shutdown.
	Run(ctx context.Context, req *Request) error
}

// Request — входные данные действия.
type Request struct {
	// WorkflowID — workflow выполняемого узла.
	WorkflowID int64

	// NodeID — выполняемый узел.
	NodeID int64

	// Config — configuration узла.
	Config map[string]any
}

// GetConfigString извлекает строковое значение из конфига.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetConfigInt извлекает числовое значение из конфига.
func GetConfigInt(config map[string]any, key string) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// GetConfigMapString извлекает map[string]string из конфига.
func GetConfigMapString(config map[string]any, key string) map[string]string {
	if v, ok := config[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string)
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}
