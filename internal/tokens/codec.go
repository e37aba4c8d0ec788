// tokens - разбор и проверка access-токенов (JWT, HS256) без обращения к сети.
//
// Проверка подписи (Verify) - единственный источник доверия. Небезопасный
// разбор (DecodePayloadUnsafe, IsExpired, RemainingLifetime) нужен клиенту,
// чтобы понять «пора ли обновляться», и никогда не используется для авторизации.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrMissingClaims = errors.New("token payload lacks required claims")
)

// Claims - раскладка полезной нагрузки access-токена.
// Бэкенд исторически кладёт идентификатор в userId, стандартный sub приоритетнее.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Payload - то, что шлюз знает о владельце токена.
// Нулевое время означает отсутствие соответствующего claim.
type Payload struct {
	SubjectID string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Complete сообщает, есть ли обязательные claims (subject и email).
func (p *Payload) Complete() bool {
	return p != nil && p.SubjectID != "" && p.Email != ""
}

func (c *Claims) payload() *Payload {
	p := &Payload{
		SubjectID: c.Subject,
		Email:     c.Email,
	}
	if p.SubjectID == "" {
		p.SubjectID = c.UserID
	}
	if c.IssuedAt != nil {
		p.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}

	return p
}

// Codec проверяет и (для тестов и локальной разработки) выпускает токены.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type Option func(*Codec)

// WithIssuer включает проверку iss.
func WithIssuer(issuer string) Option {
	return func(c *Codec) { c.issuer = issuer }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCodec(secret string, opts ...Option) *Codec {
	c := &Codec{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Verify проверяет подпись и срок действия токена.
//
// Ошибки:
//   - ErrInvalidToken - пустая строка, битая структура, чужой алгоритм,
//     неверная подпись или issuer;
//   - ErrTokenExpired - exp присутствует и не строго в будущем.
//
// Наличие subject/email Verify не требует: это решает вызывающая сторона
// через Payload.Complete.
func (c *Codec) Verify(tokenStr string) (*Payload, error) {
	const op = "tokens.Verify"

	if tokenStr == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	// Сроки проверяем сами, по своим часам: так поведение совпадает
	// с IsExpired и не зависит от порядка проверок внутри jwt.
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (interface{}, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	p := claims.payload()
	if !p.ExpiresAt.IsZero() && !p.ExpiresAt.After(c.now()) {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	return p, nil
}

// Issue подписывает токен с той же раскладкой claims, что ожидает Verify.
func (c *Codec) Issue(subject, email string, ttl time.Duration) (string, error) {
	const op = "tokens.Issue"

	now := c.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// DecodePayloadUnsafe разбирает токен без проверки подписи.
// На любом мусоре возвращает nil.
func DecodePayloadUnsafe(tokenStr string) *Payload {
	if tokenStr == "" {
		return nil
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil
	}

	return claims.payload()
}

// IsExpired - быстрая проверка без подписи. Неразбираемый токен считается
// истёкшим; токен без exp - нет.
func IsExpired(tokenStr string) bool {
	return isExpiredAt(tokenStr, time.Now())
}

func isExpiredAt(tokenStr string, now time.Time) bool {
	p := DecodePayloadUnsafe(tokenStr)
	if p == nil {
		return true
	}
	if p.ExpiresAt.IsZero() {
		return false
	}

	return !p.ExpiresAt.After(now)
}

// RemainingLifetime возвращает остаток жизни токена относительно now.
// ok=false - токен не разбирается или в нём нет exp.
func RemainingLifetime(tokenStr string, now time.Time) (time.Duration, bool) {
	p := DecodePayloadUnsafe(tokenStr)
	if p == nil || p.ExpiresAt.IsZero() {
		return 0, false
	}

	return p.ExpiresAt.Sub(now), true
}
