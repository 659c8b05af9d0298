// Package auth проверяет учётные данные трёх видов клиентов: пользователя
// (Basic или Bearer), администратора (только Basic) и эмиттера (API-токен).
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/CoolE88/observatory/internal/config"
	"github.com/CoolE88/observatory/internal/domain"
	"github.com/CoolE88/observatory/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	Realm = "observatory"

	// HeaderAPIToken заголовок с токеном эмиттера
	HeaderAPIToken = "api-token"
)

// Challenge значение WWW-Authenticate для ответов 401
var Challenge = fmt.Sprintf("Basic realm=%q", Realm)

type EmitterAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Emitter, error)
}

type Authenticator struct {
	cfg      config.AuthConfig
	emitters EmitterAuthenticator
	logger   *zap.Logger
}

func NewAuthenticator(cfg config.AuthConfig, emitters EmitterAuthenticator, logger *zap.Logger) *Authenticator {
	if cfg.BasicPasswordHash == "" {
		logger.Warn("[Auth] BASIC_AUTH_PASSWORD_HASH is empty, basic auth is disabled")
	}
	return &Authenticator{cfg: cfg, emitters: emitters, logger: logger}
}

// User пропускает Bearer-токен пользователя либо Basic-учётку администратора
func (a *Authenticator) User(r *http.Request) error {
	return a.UserHeader(r.Header.Get("Authorization"))
}

// UserHeader то же по значению заголовка Authorization; нужен для gRPC metadata
func (a *Authenticator) UserHeader(header string) error {
	scheme, credentials, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return a.reject("user", "missing credentials")
	}

	switch strings.ToLower(scheme) {
	case "bearer":
		token := strings.TrimSpace(credentials)
		if a.cfg.UserBearerToken != "" && equal(token, a.cfg.UserBearerToken) {
			return nil
		}
		return a.reject("user", "invalid bearer token")
	case "basic":
		return a.basic(credentials, "user")
	default:
		return a.reject("user", "unsupported scheme")
	}
}

// Admin только Basic-учётка
func (a *Authenticator) Admin(r *http.Request) error {
	scheme, credentials, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "basic") {
		return a.reject("admin", "missing credentials")
	}
	return a.basic(credentials, "admin")
}

// Emitter ищет токен в заголовке api-token, затем в сегменте пути
func (a *Authenticator) Emitter(r *http.Request, pathToken string) (*domain.Emitter, error) {
	token := r.Header.Get(HeaderAPIToken)
	if token == "" {
		token = pathToken
	}

	emitter, err := a.emitters.Authenticate(r.Context(), token)
	if err != nil {
		if domain.IsUnauthorized(err) {
			metrics.AuthFailures.WithLabelValues("emitter").Inc()
			a.logger.Warn("[Auth] Emitter rejected", zap.String("ip", r.RemoteAddr), zap.Error(err))
		}
		return nil, err
	}
	return emitter, nil
}

func (a *Authenticator) basic(encoded, kind string) error {
	user, password, ok := parseBasicAuth(strings.TrimSpace(encoded))
	if !ok {
		return a.reject(kind, "malformed credentials")
	}
	if a.cfg.BasicPasswordHash == "" || !equal(user, a.cfg.BasicUser) {
		return a.reject(kind, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.cfg.BasicPasswordHash), []byte(password)); err != nil {
		return a.reject(kind, "invalid credentials")
	}
	return nil
}

func (a *Authenticator) reject(kind, reason string) error {
	metrics.AuthFailures.WithLabelValues(kind).Inc()
	a.logger.Debug("[Auth] Request rejected", zap.String("kind", kind), zap.String("reason", reason))
	return fmt.Errorf("%w: %s", domain.ErrUnauthorized, reason)
}

// parseBasicAuth разбирает "QWxhZGRpbjpvcGVuIHNlc2FtZQ==" в ("Aladdin", "open sesame", true)
func parseBasicAuth(encoded string) (username, password string, ok bool) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", false
	}
	return strings.Cut(string(decoded), ":")
}

// сравнение за постоянное время
func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type emitterKey struct{}

func WithEmitter(ctx context.Context, e *domain.Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

// EmitterFromContext описание эмиттера, прошедшего проверку, либо пустая строка
func EmitterFromContext(ctx context.Context) string {
	if e, ok := ctx.Value(emitterKey{}).(*domain.Emitter); ok && e != nil {
		return e.Description
	}
	return ""
}
