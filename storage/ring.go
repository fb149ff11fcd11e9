package storage

import "tickflow/models"

// tradeRing is a fixed-capacity ring buffer. When full, the oldest entry is
// silently overwritten.
type tradeRing struct {
	buf   []models.NormalizedTrade
	head  int
	count int
}

func newTradeRing(capacity int) *tradeRing {
	return &tradeRing{buf: make([]models.NormalizedTrade, capacity)}
}

func (r *tradeRing) push(t models.NormalizedTrade) {
	idx := (r.head + r.count) % len(r.buf)
	r.buf[idx] = t
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
}

func (r *tradeRing) len() int { return r.count }

// recent returns up to n of the newest entries, oldest first.
func (r *tradeRing) recent(n int) []models.NormalizedTrade {
	if n > r.count {
		n = r.count
	}
	out := make([]models.NormalizedTrade, 0, n)
	start := r.count - n
	for i := start; i < r.count; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

func (r *tradeRing) clear() {
	r.head = 0
	r.count = 0
}

// bookRing mirrors tradeRing for orderbooks.
type bookRing struct {
	buf   []models.NormalizedOrderbook
	head  int
	count int
}

func newBookRing(capacity int) *bookRing {
	return &bookRing{buf: make([]models.NormalizedOrderbook, capacity)}
}

func (r *bookRing) push(b models.NormalizedOrderbook) {
	idx := (r.head + r.count) % len(r.buf)
	r.buf[idx] = b
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
}

func (r *bookRing) len() int { return r.count }

func (r *bookRing) recent(n int) []models.NormalizedOrderbook {
	if n > r.count {
		n = r.count
	}
	out := make([]models.NormalizedOrderbook, 0, n)
	start := r.count - n
	for i := start; i < r.count; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

func (r *bookRing) clear() {
	r.head = 0
	r.count = 0
}
