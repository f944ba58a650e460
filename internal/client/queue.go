package client

import "sync"

const defaultQueueLimit = 64

// sendQueue buffers outbound commands while the connection is down. The
// queue is bounded; when full, the oldest entry is dropped so the most
// recent intent survives a long outage.
type sendQueue struct {
	mu      sync.Mutex
	limit   int
	items   [][]byte
	dropped int
}

func newSendQueue(limit int) *sendQueue {
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	return &sendQueue{limit: limit}
}

func (q *sendQueue) push(data []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.limit {
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, data)
}

// pop removes and returns the oldest entry.
func (q *sendQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	data := q.items[0]
	q.items = q.items[1:]
	return data, true
}

// pushFront restores an entry to the head of the queue, ahead of anything
// queued after it was popped. When full, the newest entry is dropped instead
// of the oldest: the restored entry predates everything behind it.
func (q *sendQueue) pushFront(data []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.limit {
		q.items = q.items[:len(q.items)-1]
		q.dropped++
	}
	q.items = append([][]byte{data}, q.items...)
}

func (q *sendQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// droppedCount reports how many entries were discarded to make room.
func (q *sendQueue) droppedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
