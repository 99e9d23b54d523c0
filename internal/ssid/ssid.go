package ssid

import (
	"strings"
	"unicode/utf8"
)

// MaxLen is the largest identifier length in bytes.
const MaxLen = 31

// ID is an owned network identifier of at most MaxLen bytes.
type ID string

// New builds an ID from raw input, truncating anything past MaxLen.
func New(raw string) ID {
	id, _ := Truncate(raw)
	return id
}

// Truncate is New that also reports whether the input was shortened.
func Truncate(raw string) (ID, bool) {
	if len(raw) <= MaxLen {
		return ID(strings.Clone(raw)), false
	}
	cut := MaxLen
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}
	return ID(strings.Clone(raw[:cut])), true
}

// String returns the identifier text.
func (id ID) String() string {
	return string(id)
}

// Empty reports whether the identifier has no characters.
func (id ID) Empty() bool {
	return id == ""
}
