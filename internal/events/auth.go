package events

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ErrAuthRejected — подписчик не прошёл проверку токена.
var ErrAuthRejected = errors.New("authentication rejected")

// TokenVerifier проверяет bearer-токен подписчика.
type TokenVerifier interface {
	Verify(token string) error
}

// StaticTokenVerifier сверяет токен с одним настроенным значением.
//
// Пустой настроенный токен отключает проверку — все подключения
// принимаются. Удобно для локальной разработки.
type StaticTokenVerifier struct {
	Token string
}

// Verify реализует TokenVerifier.
func (v *StaticTokenVerifier) Verify(token string) error {
	if v.Token == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(v.Token), []byte(token)) != 1 {
		return ErrAuthRejected
	}
	return nil
}

// bearerToken извлекает токен из запроса: заголовок Authorization
// (схема Bearer), затем query-параметр token.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
