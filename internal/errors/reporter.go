package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Sink принимает пакет ошибок для внешней отчётности.
type Sink interface {
	Report(ctx context.Context, batch []AppError) error
}

// HTTPSink отправляет пакет POST-запросом {"errors": [...]}.
type HTTPSink struct {
	url    string
	client *http.Client
}

func NewHTTPSink(url string, client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	return &HTTPSink{url: url, client: client}
}

func (s *HTTPSink) Report(ctx context.Context, batch []AppError) error {
	const op = "errors.HTTPSink.Report"

	body, err := json.Marshal(struct {
		Errors []AppError `json:"errors"`
	}{Errors: batch})
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: new request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	return nil
}

// LogSink - запасной вариант без коллектора: одна сводная запись на пакет.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default()
	}

	return &LogSink{log: l}
}

func (s *LogSink) Report(ctx context.Context, batch []AppError) error {
	codes := make(map[string]int, len(batch))
	for _, e := range batch {
		codes[string(e.Code)]++
	}

	s.log.InfoContext(ctx, "error_batch",
		slog.Int("count", len(batch)),
		slog.Any("codes", codes),
	)

	return nil
}

// Reporter периодически выгружает очередь в Sink.
type Reporter struct {
	queue    *Queue
	sink     Sink
	interval time.Duration
	log      *slog.Logger
}

func NewReporter(q *Queue, sink Sink, interval time.Duration, l *slog.Logger) *Reporter {
	if l == nil {
		l = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &Reporter{queue: q, sink: sink, interval: interval, log: l}
}

// Flush отправляет накопленное. При сбое batch возвращается в голову
// очереди, перед записями, пришедшими во время отправки.
func (r *Reporter) Flush(ctx context.Context) error {
	batch := r.queue.Drain()
	if len(batch) == 0 {
		return nil
	}

	if err := r.sink.Report(ctx, batch); err != nil {
		r.queue.Requeue(batch)
		r.log.Warn("error_batch_report_failed",
			slog.Int("count", len(batch)),
			slog.String("err", err.Error()),
		)
		return err
	}

	return nil
}

// Run выгружает очередь каждые interval до отмены ctx, затем делает
// финальную выгрузку с собственным коротким дедлайном.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = r.Flush(ctx)
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = r.Flush(finalCtx)
			cancel()
			return
		}
	}
}
