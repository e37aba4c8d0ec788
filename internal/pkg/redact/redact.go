// redact маскирует чувствительные значения перед записью в лог.
package redact

import "strings"

// Email оставляет первые две руны локальной части и домен.
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := []rune(parts[0]), parts[1]
	if len(local) > 2 {
		return string(local[:2]) + "***@" + domain
	}

	return "***@" + domain
}

// TokenTail оставляет последние 4 символа токена - достаточно, чтобы
// сопоставить записи лога, и недостаточно, чтобы токен использовать.
func TokenTail(s string) string {
	if len(s) <= 8 {
		return Token()
	}

	return "…" + s[len(s)-4:]
}

func Token() string { return "[REDACTED_TOKEN]" }
