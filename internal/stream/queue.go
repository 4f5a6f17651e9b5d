package stream

import "github.com/eapache/queue"

// writeQueue holds bytes accepted by Write that the kernel has not taken yet.
// Chunks are copied on push and leave the queue strictly in order.
type writeQueue struct {
	chunks *queue.Queue
	off    int // bytes of the front chunk already sent
	size   int
}

func newWriteQueue() *writeQueue {
	return &writeQueue{chunks: queue.New()}
}

func (q *writeQueue) push(p []byte) {
	if len(p) == 0 {
		return
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)
	q.chunks.Add(chunk)
	q.size += len(p)
}

func (q *writeQueue) Len() int {
	return q.size
}

// front fills bufs with at most limit chunks from the head of the queue.
func (q *writeQueue) front(bufs [][]byte, limit int) [][]byte {
	bufs = bufs[:0]
	for i := 0; i < q.chunks.Length() && i < limit; i++ {
		chunk := q.chunks.Get(i).([]byte)
		if i == 0 {
			chunk = chunk[q.off:]
		}
		bufs = append(bufs, chunk)
	}
	return bufs
}

// consume drops the first n queued bytes.
func (q *writeQueue) consume(n int) {
	n = min(n, q.size)
	q.size -= n
	for n > 0 {
		chunk := q.chunks.Peek().([]byte)
		rest := len(chunk) - q.off
		if n < rest {
			q.off += n
			return
		}
		n -= rest
		q.chunks.Remove()
		q.off = 0
	}
}

// bytes returns a copy of everything still queued.
func (q *writeQueue) bytes() []byte {
	out := make([]byte, 0, q.size)
	for _, chunk := range q.front(nil, q.chunks.Length()) {
		out = append(out, chunk...)
	}
	return out
}

func (q *writeQueue) reset() {
	q.chunks = queue.New()
	q.off = 0
	q.size = 0
}
