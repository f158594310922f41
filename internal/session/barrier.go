package session

import "screen-recorder/internal/domain"

// barrier tracks which armed streams still have to flush. Completion does
// not depend on the order flushes arrive in.
type barrier struct {
	pending map[domain.Modality]bool
}

func newBarrier(modalities ...domain.Modality) *barrier {
	b := &barrier{pending: make(map[domain.Modality]bool, len(modalities))}
	for _, m := range modalities {
		b.pending[m] = true
	}
	return b
}

// done marks m flushed and reports whether every armed stream is flushed.
// Repeated calls for the same modality are ignored.
func (b *barrier) done(m domain.Modality) bool {
	delete(b.pending, m)
	return len(b.pending) == 0
}

func (b *barrier) remaining() int {
	return len(b.pending)
}
