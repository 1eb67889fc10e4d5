package telemetry

const (
	separator = ':'
	endMarker = "EOT"
)

// Builder assembles a frame field by field without ever exceeding its
// limit. Room for the end marker is always reserved; once a field does not
// fit, it and every later field are dropped so the frame is cut at a field
// boundary.
type Builder struct {
	buf    []byte
	limit  int
	fields int
	full   bool
}

// NewBuilder creates a builder of frames at most limit bytes long, end
// marker included.
func NewBuilder(limit int) *Builder {
	return &Builder{
		buf:   make([]byte, 0, max(limit, 0)),
		limit: limit,
	}
}

// Field appends TAG:value and reports whether it fit
func (b *Builder) Field(tag, value string) bool {
	if b.full {
		return false
	}

	n := len(tag) + 1 + len(value)
	if b.fields > 0 {
		n++
	}

	if len(b.buf)+n+len(endMarker) > b.limit {
		b.full = true
		return false
	}

	if b.fields > 0 {
		b.buf = append(b.buf, separator)
	}
	b.buf = append(b.buf, tag...)
	b.buf = append(b.buf, separator)
	b.buf = append(b.buf, value...)
	b.fields++

	return true
}

// Fields returns the number of fields emitted so far
func (b *Builder) Fields() int {
	return b.fields
}

// Truncated reports whether a field was dropped
func (b *Builder) Truncated() bool {
	return b.full
}

// Bytes returns the frame terminated with the end marker
func (b *Builder) Bytes() []byte {
	out := make([]byte, 0, len(b.buf)+len(endMarker))
	out = append(out, b.buf...)
	return append(out, endMarker...)
}
