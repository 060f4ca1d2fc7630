package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFieldType(t *testing.T) {
	for _, name := range []string{"null", "int", "double", "str", "char", "record"} {
		ft, ok := ParseFieldType(name)
		assert.True(t, ok, name)
		assert.Equal(t, name, ft.String())
	}
	_, ok := ParseFieldType("blob")
	assert.False(t, ok)
	assert.Equal(t, "illegal", IllegalType.String())
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "", Null().String())
	assert.Equal(t, "-7", Int(-7).String())
	assert.Equal(t, "2.5", Double(2.5).String())
	assert.Equal(t, "1e+21", Double(1e21).String())
	assert.Equal(t, "x", Char('x').String())
	assert.Equal(t, "12", Ref(12).String())
	assert.True(t, Null().IsNull())
	assert.True(t, Ref(1).IsRecord())
}

func TestRecordSize(t *testing.T) {
	rec := Record{Fields: []Value{Int(1), Str("abcd")}}
	assert.Equal(t, int64(16+8+12), rec.Size())
}

func TestLevelSatisfies(t *testing.T) {
	assert.True(t, AdminLevel.Satisfies(ReadLevel))
	assert.True(t, WriteLevel.Satisfies(WriteLevel))
	assert.False(t, ReadLevel.Satisfies(WriteLevel))
	assert.False(t, AdminLevel.Satisfies(NoAccess))
	lvl, ok := ParseLevel("write")
	assert.True(t, ok)
	assert.Equal(t, WriteLevel, lvl)
}

func TestFormatAndEscape(t *testing.T) {
	f, ok := ParseFormat("csv")
	assert.True(t, ok)
	assert.Equal(t, "text/csv", f.ContentType())
	assert.Equal(t, "application/json", JSONFormat.ContentType())

	e, ok := ParseEscape("url")
	assert.True(t, ok)
	assert.Equal(t, EscapeURL, e)
	_, ok = ParseEscape("base64")
	assert.False(t, ok)
}
