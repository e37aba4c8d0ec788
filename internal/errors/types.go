// errors - единая таксономия ошибок шлюза и клиента.
//
// Любой сырой сбой (сетевое исключение, HTTP-статус бэкенда) превращается здесь
// в AppError: тип × серьёзность × стабильный код. Сообщение для пользователя
// всегда берётся из таблицы Messages по коду; сырой текст остаётся только
// в Details и попадает в лог лишь в не-prod окружениях.
package errors

import (
	"fmt"
	"time"
)

// Type - класс ошибки.
type Type string

const (
	TypeNetwork        Type = "network"
	TypeAuthentication Type = "authentication"
	TypeValidation     Type = "validation"
	TypeServer         Type = "server"
	TypeClient         Type = "client"
	TypeUnknown        Type = "unknown"
)

// Severity - серьёзность; определяет уровень лога.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Code - стабильный машиночитаемый код. Значения менять нельзя:
// на них завязаны клиенты.
type Code string

const (
	CodeNetworkTimeout     Code = "NETWORK_TIMEOUT"
	CodeNetworkOffline     Code = "NETWORK_OFFLINE"
	CodeNetworkUnreachable Code = "NETWORK_UNREACHABLE"

	CodeAuthTokenExpired       Code = "AUTH_TOKEN_EXPIRED"
	CodeAuthTokenInvalid       Code = "AUTH_TOKEN_INVALID"
	CodeAuthRequired           Code = "AUTH_REQUIRED"
	CodeAuthInvalidCredentials Code = "AUTH_INVALID_CREDENTIALS"

	CodeValidationRequired      Code = "VALIDATION_REQUIRED"
	CodeValidationInvalidFormat Code = "VALIDATION_INVALID_FORMAT"
	CodeValidationTooLong       Code = "VALIDATION_TOO_LONG"
	CodeValidationTooShort      Code = "VALIDATION_TOO_SHORT"

	CodeServerInternal    Code = "SERVER_INTERNAL"
	CodeServerUnavailable Code = "SERVER_UNAVAILABLE"
	CodeServerTimeout     Code = "SERVER_TIMEOUT"

	CodeClientNotFound   Code = "CLIENT_NOT_FOUND"
	CodeClientForbidden  Code = "CLIENT_FORBIDDEN"
	CodeClientBadRequest Code = "CLIENT_BAD_REQUEST"

	CodeUnknown Code = "UNKNOWN_ERROR"
)

var codeTypes = map[Code]Type{
	CodeNetworkTimeout:          TypeNetwork,
	CodeNetworkOffline:          TypeNetwork,
	CodeNetworkUnreachable:      TypeNetwork,
	CodeAuthTokenExpired:        TypeAuthentication,
	CodeAuthTokenInvalid:        TypeAuthentication,
	CodeAuthRequired:            TypeAuthentication,
	CodeAuthInvalidCredentials:  TypeAuthentication,
	CodeValidationRequired:      TypeValidation,
	CodeValidationInvalidFormat: TypeValidation,
	CodeValidationTooLong:       TypeValidation,
	CodeValidationTooShort:      TypeValidation,
	CodeServerInternal:          TypeServer,
	CodeServerUnavailable:       TypeServer,
	CodeServerTimeout:           TypeServer,
	CodeClientNotFound:          TypeClient,
	CodeClientForbidden:         TypeClient,
	CodeClientBadRequest:        TypeClient,
	CodeUnknown:                 TypeUnknown,
}

// Type возвращает тип, к которому относится код; ok=false для неизвестных кодов.
func (c Code) Type() (Type, bool) {
	t, ok := codeTypes[c]
	return t, ok
}

// Messages - фиксированные сообщения для пользователя.
var Messages = map[Code]string{
	CodeNetworkTimeout:     "The request timed out. Please try again.",
	CodeNetworkOffline:     "You appear to be offline. Check your connection and try again.",
	CodeNetworkUnreachable: "Unable to reach the server. Please try again later.",

	CodeAuthTokenExpired:       "Your session has expired. Please login again.",
	CodeAuthTokenInvalid:       "Your session is invalid. Please login again.",
	CodeAuthRequired:           "Authentication required",
	CodeAuthInvalidCredentials: "Invalid email or password.",

	CodeValidationRequired:      "Please fill in all required fields.",
	CodeValidationInvalidFormat: "Some fields have an invalid format.",
	CodeValidationTooLong:       "Some fields are too long.",
	CodeValidationTooShort:      "Some fields are too short.",

	CodeServerInternal:    "Something went wrong on our side. Please try again later.",
	CodeServerUnavailable: "The service is temporarily unavailable. Please try again later.",
	CodeServerTimeout:     "The server took too long to respond. Please try again.",

	CodeClientNotFound:   "The requested resource was not found.",
	CodeClientForbidden:  "You do not have permission to perform this action.",
	CodeClientBadRequest: "The request could not be processed.",

	CodeUnknown: "An unexpected error occurred.",
}

// MessageFor - сообщение по коду с запасным вариантом для неизвестных.
func MessageFor(c Code) string {
	if m, ok := Messages[c]; ok {
		return m
	}

	return Messages[CodeUnknown]
}

// ErrorContext - где и у кого произошла ошибка. Все поля опциональны.
type ErrorContext struct {
	URL       string `json:"url,omitempty"`
	Method    string `json:"method,omitempty"`
	Identity  string `json:"identity,omitempty"`
	Component string `json:"component,omitempty"`
}

// AppError - нормализованная запись об ошибке.
// Details (сырой текст) не сериализуется никогда.
type AppError struct {
	ID        string       `json:"id"`
	Type      Type         `json:"type"`
	Severity  Severity     `json:"severity"`
	Code      Code         `json:"code"`
	Message   string       `json:"message"`
	Status    int          `json:"status,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Context   ErrorContext `json:"context"`
	Details   string       `json:"-"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RawFailure - узкий вход классификатора. Вызывающая сторона нормализует
// в него любой сбой (см. FromError), чтобы логика классификации была полной.
type RawFailure struct {
	Status  int
	Message string
	Code    string
	// Network - сбой транспорта: ответа от сервера нет.
	Network bool
	// Timeout - дедлайн/отмена запроса.
	Timeout bool
	// Offline - у хоста нет сети.
	Offline bool
}

// StatusError - ответ бэкенда/шлюза с не-2xx статусом.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http status %d", e.Status)
	}

	return fmt.Sprintf("http status %d: %s", e.Status, e.Message)
}
