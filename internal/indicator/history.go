package indicator

// History is a fixed capacity ring of prices. Once full the oldest
// price is overwritten first.
type History struct {
	data  []float64
	index int
	size  int
}

// NewHistory creates a ring with the given capacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &History{data: make([]float64, capacity)}
}

// Append adds a price, evicting the oldest one when full.
func (h *History) Append(price float64) {
	h.data[h.index] = price
	h.index = (h.index + 1) % len(h.data)
	if h.size < len(h.data) {
		h.size++
	}
}

// Len returns the number of retained prices.
func (h *History) Len() int {
	return h.size
}

// Cap returns the ring capacity.
func (h *History) Cap() int {
	return len(h.data)
}

// At returns the i-th retained price, 0 being the oldest.
func (h *History) At(i int) float64 {
	start := h.index - h.size
	if start < 0 {
		start += len(h.data)
	}
	return h.data[(start+i)%len(h.data)]
}

// Values copies the retained prices, oldest first, into dst.
func (h *History) Values(dst []float64) []float64 {
	dst = dst[:0]
	for i := 0; i < h.size; i++ {
		dst = append(dst, h.At(i))
	}
	return dst
}
