package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilder(t *testing.T) {
	builder := NewBuilder(2)
	builder.WriteString("hello")
	_ = builder.WriteByte(' ')
	builder.WriteString("world")

	s := builder.String()
	assert.Equal(t, "hello world", s)
	assert.Equal(t, 11, builder.Len())

	builder.Reset()
	builder.WriteString("xxxxx")
	assert.Equal(t, "hello world", s, "String must not alias the buffer")
}

func TestSQLBuilder(t *testing.T) {
	sb := NewSQLBuilder()
	defer sb.Close()

	query := sb.WriteQuery("SELECT * FROM ").
		WriteIdentifier(`we"ird`).
		WriteQuery(" WHERE name = ").
		WriteStringLiteral("o'brien").
		WriteQuery(" LIMIT ").
		WriteInt(10).
		String()
	assert.Equal(t, `SELECT * FROM "we""ird" WHERE name = 'o''brien' LIMIT 10`, query)
}

func TestSQLBuilder_PooledBuilderStartsEmpty(t *testing.T) {
	first := NewSQLBuilder()
	first.WriteQuery("DROP TABLE x")
	first.Close()
	first.Close()

	second := NewSQLBuilder()
	defer second.Close()
	assert.Equal(t, "", second.String())
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"users"`, QuoteIdentifier("users"))
	assert.Equal(t, `"a""b"`, QuoteIdentifier(`a"b`))
}
