// Package advvalidate contains validation utilities.
package advvalidate

import "fmt"

// Unit name constants.
const (
	UnitByte = "bytes"
	UnitRune = "runes"
)

// Inclusion returns an error if n is greater than maxVal or less than minVal.
// unitName is used for error messages, see [UnitByte] and the related
// constants.
func Inclusion(n, minVal, maxVal int, unitName string) (err error) {
	switch {
	case n > maxVal:
		return fmt.Errorf("too long: got %d %s, max %d", n, unitName, maxVal)
	case n < minVal:
		return fmt.Errorf("too short: got %d %s, min %d", n, unitName, minVal)
	default:
		return nil
	}
}

// FirstNonPrintable returns the index of the first rune in s that is a control
// character.  If there are no such runes, i is -1.
func FirstNonPrintable(s string) (i int, r rune) {
	for i, r = range s {
		if r < ' ' || r == 0x7f {
			return i, r
		}
	}

	return -1, 0
}
