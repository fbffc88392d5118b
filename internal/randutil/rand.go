// Package randutil provides the random token and number sources used to build
// branch parameters, Call-IDs, tags and CSeq numbers.
package randutil

import (
	"crypto/rand"
	"encoding/binary"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Generator produces opaque tokens and uniformly distributed 32-bit numbers.
// Implementations must be safe for concurrent use.
type Generator interface {
	// NextToken returns a new opaque token that consists only of SIP token characters.
	NextToken() string
	// NextNumber returns a number drawn from [0, 2^32-1].
	NextNumber() uint32
}

type cryptoGen struct{}

func (cryptoGen) NextToken() string { return uuid.NewString() }

func (cryptoGen) NextNumber() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	return binary.BigEndian.Uint32(buf[:])
}

var defGen Generator = cryptoGen{}

// Default returns the generator backed by crypto/rand and random UUIDs.
func Default() Generator { return defGen }

const charset = "0123456789abcdefghijklmnopqrstuvwxyz"

// String returns a random lowercase alphanumeric string of length n.
func String(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = charset[b%byte(len(charset))]
	}
	return string(buf)
}

// Sequence is a deterministic [Generator].
// Tokens are taken from Tokens in order, numbers from Numbers in order.
// When a list is exhausted it wraps around; an empty token list yields "tok1", "tok2", ...
// and an empty number list yields 1, 2, ...
type Sequence struct {
	Tokens  []string
	Numbers []uint32

	mu         sync.Mutex
	tokI, numI int
}

func (s *Sequence) NextToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.tokI
	s.tokI++
	if len(s.Tokens) == 0 {
		return "tok" + strconv.Itoa(i+1)
	}
	return s.Tokens[i%len(s.Tokens)]
}

func (s *Sequence) NextNumber() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.numI
	s.numI++
	if len(s.Numbers) == 0 {
		return uint32(i + 1) //nolint:gosec
	}
	return s.Numbers[i%len(s.Numbers)]
}
