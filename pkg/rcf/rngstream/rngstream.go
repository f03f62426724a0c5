// Package rngstream provides the deterministic, per-tree random streams used
// throughout the forest: sampler coin tosses, cut-factor draws, and the
// forest-level derivation of per-tree seeds are all independent ChaCha20
// keystreams seeded from a single root seed, so that a fixed seed and a fixed
// sequence of updates reproduce bit-identical results (spec §5, §9).
package rngstream

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
)

// Stream is a seedable, reproducible source of uniform draws backed by a
// ChaCha20 keystream. It is not intended for cryptographic use; it is chosen
// because it gives a long-period, well-distributed stream from a small
// integer seed with no platform-dependent behavior.
type Stream struct {
	cipher *chacha20.Cipher
}

// New creates a stream seeded from a single 64-bit value.
func New(seed uint64) *Stream {
	key := expandSeed(seed)
	nonce := make([]byte, chacha20.NonceSize)
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		// key/nonce are fixed-size local constants; this cannot fail.
		panic(err)
	}
	return &Stream{cipher: c}
}

// expandSeed turns a 64-bit seed into a 32-byte ChaCha20 key using a
// splitmix64 expansion, the same technique rand_chacha uses to seed from a
// u64: mix the seed four times to fill the key with well-distributed bits.
func expandSeed(seed uint64) []byte {
	key := make([]byte, chacha20.KeySize)
	state := seed
	for i := 0; i < 4; i++ {
		state += 0x9E3779B97F4A7C15
		z := state
		z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
		z = (z ^ (z >> 27)) * 0x94D049BB133111EB
		z = z ^ (z >> 31)
		binary.LittleEndian.PutUint64(key[i*8:(i+1)*8], z)
	}
	return key
}

// NextUint64 advances the stream and returns the next 64-bit draw.
func (s *Stream) NextUint64() uint64 {
	var buf [8]byte
	s.cipher.XORKeyStream(buf[:], buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

// NextFloat64 returns a uniform draw in [0, 1) using 53 bits of the stream.
func (s *Stream) NextFloat64() float64 {
	const mantissaBits = 53
	v := s.NextUint64() >> (64 - mantissaBits)
	return float64(v) / float64(uint64(1)<<mantissaBits)
}

// Child derives a new, independent stream by drawing a sub-seed from this
// stream. The parent stream is advanced as a side effect, so repeated calls
// to Child never hand out the same sub-stream twice.
func (s *Stream) Child() *Stream {
	return New(s.NextUint64())
}
