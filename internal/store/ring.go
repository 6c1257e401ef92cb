package store

// ring is a fixed-capacity FIFO of readings. Appending to a full ring
// overwrites the oldest entry. Not safe for concurrent use; Store guards it.
type ring struct {
	buf   []Reading
	start int
	size  int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]Reading, capacity)}
}

func (r *ring) push(rd Reading) {
	idx := (r.start + r.size) % len(r.buf)
	r.buf[idx] = rd
	if r.size < len(r.buf) {
		r.size++
		return
	}
	r.start = (r.start + 1) % len(r.buf)
}

// items returns a copy, oldest first.
func (r *ring) items() []Reading {
	out := make([]Reading, r.size)
	for i := range r.size {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring) len() int { return r.size }

func (r *ring) reset() {
	clear(r.buf)
	r.start = 0
	r.size = 0
}
