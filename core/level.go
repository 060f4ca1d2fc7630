package core

// Level is an access tier. Higher levels include the lower ones:
// admin implies write implies read.
type Level int

const (
	NoAccess Level = iota
	ReadLevel
	WriteLevel
	AdminLevel
)

func (l Level) String() string {
	switch l {
	case ReadLevel:
		return "read"
	case WriteLevel:
		return "write"
	case AdminLevel:
		return "admin"
	}
	return "none"
}

func ParseLevel(name string) (Level, bool) {
	switch name {
	case "read":
		return ReadLevel, true
	case "write":
		return WriteLevel, true
	case "admin":
		return AdminLevel, true
	}
	return NoAccess, false
}

// Satisfies reports whether a caller holding l may perform an operation
// requiring required.
func (l Level) Satisfies(required Level) bool {
	return required != NoAccess && l >= required
}

// LockMode is the database lock held while a request runs.
type LockMode int

const (
	NoLock LockMode = iota
	ReadLock
	WriteLock
)

func (m LockMode) String() string {
	switch m {
	case ReadLock:
		return "read"
	case WriteLock:
		return "write"
	}
	return "none"
}
