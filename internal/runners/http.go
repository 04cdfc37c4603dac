package runners

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// Значения по умолчанию HTTP действия.
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 1 * 1024 * 1024 // 1 MB
)

// Ключи конфигурации HTTP действия.
const (
	configMethod     = "method"
	configURL        = "url"
	configHeaders    = "headers"
	configBody       = "body"
	configTimeoutSec = "timeout_sec"
)

// HTTPHandler — действие HTTP запроса к внешнему сервису.
//
// Конфигурация:
//
//	{
//	    "action": "http",
//	    "method": "POST",
//	    "url": "https://api.example.com/hook",
//	    "headers": {"Authorization": "Bearer ..."},
//	    "body": {"event": "node"},
//	    "timeout_sec": 30
//	}
//
// Ответ со статусом >= 400 считается ошибкой выполнения узла
// и проходит обычный путь ретраев.
type HTTPHandler struct {
	client *http.Client
}

// NewHTTPHandler создаёт HTTP действие.
func NewHTTPHandler() *HTTPHandler {
	return &HTTPHandler{
		client: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}
}

// Action возвращает имя действия.
func (h *HTTPHandler) Action() string {
	return "http"
}

// Run выполняет HTTP запрос.
func (h *HTTPHandler) Run(ctx context.Context, req *Request) error {
	url := GetConfigString(req.Config, configURL)
	if url == "" {
		return fmt.Errorf("%w: http: url is required", ErrInvalidConfig)
	}

	method := strings.ToUpper(GetConfigString(req.Config, configMethod))
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := h.buildRequest(ctx, method, url, req.Config)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	client := h.client
	if sec := GetConfigInt(req.Config, configTimeoutSec); sec > 0 {
		client = &http.Client{Timeout: time.Duration(sec) * time.Second}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	// Тело вычитывается для переиспользования соединения
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode >= http.StatusBadRequest {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	return nil
}

// buildRequest создаёт HTTP запрос с body и заголовками из конфига.
func (h *HTTPHandler) buildRequest(ctx context.Context, method, url string, config map[string]any) (*http.Request, error) {
	headers := GetConfigMapString(config, configHeaders)
	if headers == nil {
		headers = make(map[string]string)
	}

	var bodyReader io.Reader
	if raw, ok := config[configBody]; ok && raw != nil {
		bodyBytes, err := serializeBody(raw)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		if _, hasContentType := headers["Content-Type"]; !hasContentType {
			headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// serializeBody сериализует body в bytes.
func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// HTTPError — ответ внешнего сервиса со статусом ошибки.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}
