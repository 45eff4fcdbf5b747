// Package strings provides pooled string building for statement text that is
// assembled from identifiers, such as the SQL of destination connectors.
package strings

import (
	"strconv"
	"sync"
)

// Builder is an append-only byte buffer
type Builder struct {
	buf []byte
}

// NewBuilder creates a builder with the given initial capacity
func NewBuilder(capacity int) *Builder {
	return &Builder{buf: make([]byte, 0, capacity)}
}

func (b *Builder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

func (b *Builder) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// String copies the buffer, so the result stays valid after Reset
func (b *Builder) String() string {
	return string(b.buf)
}

func (b *Builder) Len() int {
	return len(b.buf)
}

func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

// maxPooledCapacity keeps oversized buffers out of the pool
const maxPooledCapacity = 64 * 1024

var builderPool = sync.Pool{
	New: func() interface{} {
		return NewBuilder(256)
	},
}

// GetBuilder returns an empty builder from the pool
func GetBuilder() *Builder {
	b := builderPool.Get().(*Builder)
	b.Reset()
	return b
}

// PutBuilder returns a builder to the pool
func PutBuilder(b *Builder) {
	if b == nil || cap(b.buf) > maxPooledCapacity {
		return
	}
	b.Reset()
	builderPool.Put(b)
}

// SQLBuilder builds one SQL statement on a pooled builder.
//
//	sb := strings.NewSQLBuilder()
//	defer sb.Close()
//	query := sb.WriteQuery("DELETE FROM ").WriteIdentifier(table).String()
type SQLBuilder struct {
	builder *Builder
}

// NewSQLBuilder creates a new SQL builder
func NewSQLBuilder() *SQLBuilder {
	return &SQLBuilder{builder: GetBuilder()}
}

// WriteQuery writes a SQL fragment verbatim
func (sb *SQLBuilder) WriteQuery(query string) *SQLBuilder {
	sb.builder.WriteString(query)
	return sb
}

// WriteIdentifier writes a double-quoted identifier, doubling embedded quotes
func (sb *SQLBuilder) WriteIdentifier(name string) *SQLBuilder {
	_ = sb.builder.WriteByte('"')
	for i := 0; i < len(name); i++ {
		if name[i] == '"' {
			_ = sb.builder.WriteByte('"')
		}
		_ = sb.builder.WriteByte(name[i])
	}
	_ = sb.builder.WriteByte('"')
	return sb
}

// WriteStringLiteral writes a single-quoted literal, doubling embedded quotes
func (sb *SQLBuilder) WriteStringLiteral(value string) *SQLBuilder {
	_ = sb.builder.WriteByte('\'')
	for i := 0; i < len(value); i++ {
		if value[i] == '\'' {
			_ = sb.builder.WriteByte('\'')
		}
		_ = sb.builder.WriteByte(value[i])
	}
	_ = sb.builder.WriteByte('\'')
	return sb
}

// WriteInt writes an integer value
func (sb *SQLBuilder) WriteInt(value int64) *SQLBuilder {
	sb.builder.WriteString(strconv.FormatInt(value, 10))
	return sb
}

// String returns the built statement
func (sb *SQLBuilder) String() string {
	return sb.builder.String()
}

// Close releases the builder back to the pool
func (sb *SQLBuilder) Close() {
	if sb.builder != nil {
		PutBuilder(sb.builder)
		sb.builder = nil
	}
}

// QuoteIdentifier returns name as a double-quoted SQL identifier
func QuoteIdentifier(name string) string {
	sb := NewSQLBuilder()
	defer sb.Close()
	return sb.WriteIdentifier(name).String()
}
