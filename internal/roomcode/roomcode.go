// Package roomcode produces the short numeric codes peers share to meet in a
// signaling room.
package roomcode

import (
	"math/rand/v2"
	"strconv"
)

const (
	// Min and Max bound every generated code.
	Min = 100000
	Max = 999999

	// Length is the number of digits in a code.
	Length = 6
)

// Generate returns a uniformly distributed 6-digit code. Codes are not
// checked against live rooms, so two unrelated sessions may collide.
func Generate() string {
	return strconv.Itoa(Min + rand.IntN(Max-Min+1))
}

// Valid reports whether code has the shape Generate produces.
func Valid(code string) bool {
	if len(code) != Length || code[0] == '0' {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
