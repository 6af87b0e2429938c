package logic

// readingHistory is a fixed-capacity FIFO of recent fused distance readings,
// used for consistency checking. Oldest reading is evicted on overflow.
// Not safe for concurrent use — the FallbackManager owns it.
type readingHistory struct {
	buf      []float64
	capacity int
	head     int // next write position
	count    int
}

func newReadingHistory(capacity int) *readingHistory {
	return &readingHistory{
		buf:      make([]float64, capacity),
		capacity: capacity,
	}
}

func (h *readingHistory) push(v float64) {
	h.buf[h.head] = v
	h.head = (h.head + 1) % h.capacity
	if h.count < h.capacity {
		h.count++
	}
}

// dropNewest removes the most recently pushed reading. Used when a reading
// fails the consistency check so a single spike suppresses exactly one
// sample instead of poisoning the window.
func (h *readingHistory) dropNewest() {
	if h.count == 0 {
		return
	}
	h.head = (h.head - 1 + h.capacity) % h.capacity
	h.count--
}

func (h *readingHistory) full() bool { return h.count == h.capacity }

func (h *readingHistory) len() int { return h.count }

// spread returns max - min over the stored readings. Zero when empty.
func (h *readingHistory) spread() float64 {
	if h.count == 0 {
		return 0
	}
	start := (h.head - h.count + h.capacity) % h.capacity
	lo := h.buf[start]
	hi := lo
	for i := 1; i < h.count; i++ {
		v := h.buf[(start+i)%h.capacity]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}

// values returns the stored readings oldest-first. For tests and logging.
func (h *readingHistory) values() []float64 {
	if h.count == 0 {
		return nil
	}
	out := make([]float64, h.count)
	start := (h.head - h.count + h.capacity) % h.capacity
	for i := 0; i < h.count; i++ {
		out[i] = h.buf[(start+i)%h.capacity]
	}
	return out
}

func (h *readingHistory) reset() {
	h.head = 0
	h.count = 0
}
