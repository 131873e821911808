package transformer

import "strings"

// Mode tells the transformer how to read a raw code fragment.
type Mode int

const (
	// MethodMode: the fragment is a bare method (or statements) to be wrapped
	// into a class.
	MethodMode Mode = iota
	// ClassMode: the fragment is a whole compilation unit.
	ClassMode
)

func (m Mode) String() string {
	if m == ClassMode {
		return "class"
	}
	return "method"
}

const packageMarker = "package"

// Classify decides the shape of a raw fragment from its first word: fragments
// starting with the package declaration are classes, anything else (including
// malformed headers) is treated as a method. Only surrounding whitespace is
// trimmed and the first word is split on a single space, so "package\np;" is
// method-shaped.
func Classify(code string) Mode {
	first := strings.SplitN(strings.TrimSpace(code), " ", 2)[0]
	if first == packageMarker {
		return ClassMode
	}
	return MethodMode
}
