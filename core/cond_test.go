package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCond(t *testing.T) {
	for i, name := range []string{"equal", "not_equal", "lessthan", "greater", "ltequal", "gtequal"} {
		c, ok := ParseCond(name)
		require.True(t, ok, name)
		assert.Equal(t, Cond(i), c)
		assert.Equal(t, name, c.String())
	}
	_, ok := ParseCond("like")
	assert.False(t, ok)
	assert.Equal(t, "illegal", Cond(42).String())
}

func TestConditionMatches(t *testing.T) {
	rec := Record{ID: 1, Fields: []Value{Int(5), Str("abc"), Double(2.5), Null(), Ref(9)}}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"int equal", Condition{0, Equal, Int(5)}, true},
		{"int not equal", Condition{0, NotEqual, Int(5)}, false},
		{"int vs double", Condition{0, Equal, Double(5)}, true},
		{"int lessthan", Condition{0, LessThan, Int(6)}, true},
		{"int greater", Condition{0, Greater, Int(6)}, false},
		{"int ltequal", Condition{0, LtEqual, Int(5)}, true},
		{"int gtequal", Condition{0, GtEqual, Int(5)}, true},
		{"str equal", Condition{1, Equal, Str("abc")}, true},
		{"str vs char", Condition{1, Greater, Char('a')}, true},
		{"double lessthan", Condition{2, LessThan, Int(3)}, true},
		{"null equal", Condition{3, Equal, Null()}, true},
		{"record equal", Condition{4, Equal, Ref(9)}, true},
		{"str vs int", Condition{1, Equal, Int(5)}, false},
		{"str vs int not equal", Condition{1, NotEqual, Int(5)}, true},
		{"missing field", Condition{10, Equal, Int(5)}, false},
		{"missing field not equal", Condition{10, NotEqual, Int(5)}, true},
		{"negative field", Condition{-1, Equal, Int(5)}, false},
		{"nan", Condition{2, Equal, Double(math.NaN())}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Matches(rec))
		})
	}
}

func TestMatchAll(t *testing.T) {
	rec := Record{Fields: []Value{Int(5), Str("x")}}
	assert.True(t, MatchAll(nil, rec))
	assert.True(t, MatchAll([]Condition{{0, Equal, Int(5)}, {1, Equal, Str("x")}}, rec))
	assert.False(t, MatchAll([]Condition{{0, Equal, Int(5)}, {1, Equal, Str("y")}}, rec))
}

func TestBlobOnlyComparesWithBlob(t *testing.T) {
	rec := Record{Fields: []Value{Blob([]byte("ab"))}}
	assert.True(t, Condition{0, Equal, Blob([]byte("ab"))}.Matches(rec))
	assert.False(t, Condition{0, Equal, Str("ab")}.Matches(rec))
}
