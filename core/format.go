package core

type Format int

const (
	JSONFormat Format = iota
	CSVFormat
)

func ParseFormat(name string) (Format, bool) {
	switch name {
	case "json":
		return JSONFormat, true
	case "csv":
		return CSVFormat, true
	}
	return JSONFormat, false
}

func (f Format) ContentType() string {
	if f == CSVFormat {
		return "text/csv"
	}
	return "application/json"
}

func (f Format) String() string {
	if f == CSVFormat {
		return "csv"
	}
	return "json"
}

// Escape selects how string data is written into the output.
type Escape int

const (
	EscapeNone Escape = iota // copied as is
	EscapeURL                // %, " and non-ascii bytes percent-encoded
	EscapeJSON               // json string escaping, utf-8 kept
	EscapeCSV                // only " doubled
)

func ParseEscape(name string) (Escape, bool) {
	switch name {
	case "no", "none":
		return EscapeNone, true
	case "url":
		return EscapeURL, true
	case "json":
		return EscapeJSON, true
	}
	return EscapeJSON, false
}
