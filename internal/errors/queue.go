package errors

import "sync"

const DefaultQueueCapacity = 100

// Queue - кольцевой буфер AppError фиксированной ёмкости.
// При переполнении вытесняется самая старая запись.
type Queue struct {
	mu      sync.Mutex
	items   []AppError
	start   int
	size    int
	dropped uint64
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}

	return &Queue{items: make([]AppError, capacity)}
}

func (q *Queue) Push(e AppError) {
	q.mu.Lock()
	defer q.mu.Unlock()

	capacity := len(q.items)
	if q.size == capacity {
		q.items[q.start] = e
		q.start = (q.start + 1) % capacity
		q.dropped++
		return
	}

	q.items[(q.start+q.size)%capacity] = e
	q.size++
}

// Requeue возвращает неотправленный batch в голову очереди: он старше
// всего, что пришло за время отправки. Сверх ёмкости вытесняются самые
// старые записи.
func (q *Queue) Requeue(batch []AppError) {
	if len(batch) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	merged := append(append(make([]AppError, 0, len(batch)+q.size), batch...), q.copyLocked()...)

	capacity := len(q.items)
	if over := len(merged) - capacity; over > 0 {
		merged = merged[over:]
		q.dropped += uint64(over)
	}

	q.start = 0
	q.size = copy(q.items, merged)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.size
}

// Dropped - сколько записей вытеснено за время жизни очереди.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.dropped
}

// Snapshot - копия содержимого, от старых к новым.
func (q *Queue) Snapshot() []AppError {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.copyLocked()
}

// Drain забирает всё содержимое и очищает очередь.
func (q *Queue) Drain() []AppError {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.copyLocked()
	q.start, q.size = 0, 0
	return out
}

func (q *Queue) copyLocked() []AppError {
	out := make([]AppError, q.size)
	for i := 0; i < q.size; i++ {
		out[i] = q.items[(q.start+i)%len(q.items)]
	}

	return out
}
