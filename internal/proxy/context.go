package proxy

import "context"

type ctxKey string

const ctxRequestID ctxKey = "request_id"

// WithRequestID кладёт идентификатор входящего запроса в контекст;
// транспорт форвардера прокидывает его бэкенду в X-Request-Id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}
