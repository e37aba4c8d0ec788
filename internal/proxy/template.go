package proxy

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrMissingParam = errors.New("missing path parameter")

// Config описывает один проксируемый вызов бэкенда. Значения неизменяемы
// после регистрации маршрута.
type Config struct {
	Method string
	// URL - шаблон пути бэкенда с плейсхолдерами вида {id}.
	URL string
	// IncludeBody - пересылать ли тело запроса браузера.
	IncludeBody bool
}

// ResolveTemplate подставляет параметры пути в шаблон.
// Значения экранируются url.PathEscape; плейсхолдер без значения - ErrMissingParam.
func ResolveTemplate(tmpl string, params map[string]string) (string, error) {
	const op = "proxy.ResolveTemplate"

	var b strings.Builder
	b.Grow(len(tmpl))

	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}

		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			// Незакрытая скобка - не плейсхолдер, оставляем как есть.
			b.WriteString(rest)
			break
		}
		end += open

		name := rest[open+1 : end]
		value, ok := params[name]
		if name == "" || !ok || value == "" {
			return "", fmt.Errorf("%s: %q: %w", op, name, ErrMissingParam)
		}

		b.WriteString(rest[:open])
		b.WriteString(url.PathEscape(value))
		rest = rest[end+1:]
	}

	return b.String(), nil
}
