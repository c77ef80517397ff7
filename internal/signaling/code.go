package signaling

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// CodeLength is the number of decimal digits in a room code.
	CodeLength = 6

	codeSpace    = 1_000_000
	maxCodeDraws = 100

	// Draws at or above this bound are rejected so every code is equally likely.
	codeRejectAbove = (1 << 32) / codeSpace * codeSpace
)

// CodeGenerator draws fixed-width numeric room codes.
type CodeGenerator struct {
	rand io.Reader
}

func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{rand: rand.Reader}
}

// Generate returns a uniformly random code in 000000-999999 for which taken
// reports false. It gives up after a bounded number of draws; with a sparse
// registry that only happens if something is badly wrong.
func (g *CodeGenerator) Generate(taken func(code string) bool) (string, error) {
	var buf [4]byte
	for i := 0; i < maxCodeDraws; i++ {
		if _, err := io.ReadFull(g.rand, buf[:]); err != nil {
			return "", fmt.Errorf("draw room code: %w", err)
		}
		v := binary.BigEndian.Uint32(buf[:])
		if uint64(v) >= codeRejectAbove {
			continue
		}
		code := fmt.Sprintf("%0*d", CodeLength, v%codeSpace)
		if taken == nil || !taken(code) {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// ValidCode reports whether s has the shape of a room code.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
