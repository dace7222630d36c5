package storage

// stagingBuffer accumulates the bytes of one object between OpenToWrite and
// CloseToWrite. Object stores have no random-access write, so the slab
// writer's offset-addressed writes land here and the whole object is PUT
// once on close.
type stagingBuffer struct {
	data []byte
}

func (b *stagingBuffer) writeAt(p []byte, offset int) {
	end := offset + len(p)
	if end > len(b.data) {
		if end > cap(b.data) {
			grown := make([]byte, end, end*2)
			copy(grown, b.data)
			b.data = grown
		} else {
			b.data = b.data[:end]
		}
	}
	copy(b.data[offset:end], p)
}

func (b *stagingBuffer) append(p []byte) {
	b.data = append(b.data, p...)
}

func (b *stagingBuffer) bytes() []byte { return b.data }
