package memory

import "encoding/json"

// FIFO is a fixed-capacity queue of strings. Pushing onto a full queue
// evicts from the front, so Len never exceeds Cap.
type FIFO struct {
	buf   []string
	head  int
	size  int
	limit int
}

// NewFIFO returns an empty queue holding at most capacity items.
func NewFIFO(capacity int) FIFO {
	if capacity < 1 {
		capacity = 1
	}
	return FIFO{buf: make([]string, capacity), limit: capacity}
}

// Push appends item at the back and returns the evicted front item, if any.
func (q *FIFO) Push(item string) (evicted string, ok bool) {
	if q.limit == 0 {
		*q = NewFIFO(PrimarySuggestionLimit)
	}
	if q.size == q.limit {
		evicted = q.buf[q.head]
		q.buf[q.head] = item
		q.head = (q.head + 1) % q.limit
		return evicted, true
	}
	q.buf[(q.head+q.size)%q.limit] = item
	q.size++
	return "", false
}

// Len returns the number of queued items.
func (q FIFO) Len() int {
	return q.size
}

// Cap returns the queue capacity.
func (q FIFO) Cap() int {
	if q.limit == 0 {
		return PrimarySuggestionLimit
	}
	return q.limit
}

// Items returns the queued items front to back. It never returns nil.
func (q FIFO) Items() []string {
	out := make([]string, q.size)
	for i := range out {
		out[i] = q.buf[(q.head+i)%q.limit]
	}
	return out
}

// Clone returns an independent copy of the queue.
func (q FIFO) Clone() FIFO {
	c := NewFIFO(q.Cap())
	for _, item := range q.Items() {
		c.Push(item)
	}
	return c
}

func (q FIFO) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Items())
}

// UnmarshalJSON loads a queue with the default capacity. Inputs longer than
// the capacity keep only their newest items.
func (q *FIFO) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	c := q.Cap()
	*q = NewFIFO(c)
	for _, item := range items {
		q.Push(item)
	}
	return nil
}
