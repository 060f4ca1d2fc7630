package core

type Cond int

const (
	Equal Cond = iota
	NotEqual
	LessThan
	Greater
	LtEqual
	GtEqual
)

var condNames = []string{"equal", "not_equal", "lessthan", "greater", "ltequal", "gtequal"}

func (c Cond) String() string {
	if int(c) >= 0 && int(c) < len(condNames) {
		return condNames[c]
	}
	return "illegal"
}

func ParseCond(name string) (Cond, bool) {
	for i, n := range condNames {
		if n == name {
			return Cond(i), true
		}
	}
	return Equal, false
}

// Condition is one decoded field predicate of a query.
type Condition struct {
	Field int
	Cond  Cond
	Value Value
}

// Matches reports whether the record satisfies the condition. A record that
// is too short for the field, or whose field type cannot be compared with the
// wanted value, only matches not_equal.
func (c Condition) Matches(rec Record) bool {
	if c.Field < 0 || c.Field >= len(rec.Fields) {
		return c.Cond == NotEqual
	}
	cmp, ok := compare(rec.Fields[c.Field], c.Value)
	if !ok {
		return c.Cond == NotEqual
	}
	switch c.Cond {
	case Equal:
		return cmp == 0
	case NotEqual:
		return cmp != 0
	case LessThan:
		return cmp < 0
	case Greater:
		return cmp > 0
	case LtEqual:
		return cmp <= 0
	case GtEqual:
		return cmp >= 0
	}
	return false
}

// MatchAll reports whether the record satisfies every condition.
func MatchAll(conds []Condition, rec Record) bool {
	for _, c := range conds {
		if !c.Matches(rec) {
			return false
		}
	}
	return true
}
