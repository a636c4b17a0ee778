package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand/v2"
)

// Seeds is a provably fair seed pair.
type Seeds struct {
	Server string `json:"server"` // ASCII; do NOT hex-decode
	Client string `json:"client"`
}

// ByteGenerator streams HMAC-SHA256 bytes for one (server, client, nonce)
// triple. Each 32-byte round is HMAC(server, "client:nonce:round").
type ByteGenerator struct {
	serverSeed   string
	clientSeed   string
	nonce        uint64
	currentRound uint64
	currentPos   int
	buffer       [32]byte
}

// NewByteGenerator creates a generator positioned at the given byte cursor.
func NewByteGenerator(serverSeed, clientSeed string, nonce uint64, cursor uint64) *ByteGenerator {
	bg := &ByteGenerator{
		serverSeed:   serverSeed,
		clientSeed:   clientSeed,
		nonce:        nonce,
		currentRound: cursor / 32,
		currentPos:   int(cursor % 32),
	}
	bg.generateRound()
	return bg
}

// NewShuffleSource returns a generator usable as a shoe shuffle source.
// The same seeds and nonce always produce the same shoe.
func NewShuffleSource(seeds Seeds, nonce uint64) *ByteGenerator {
	return NewByteGenerator(seeds.Server, seeds.Client, nonce, 0)
}

// Next returns the next byte from the generator
func (bg *ByteGenerator) Next() byte {
	if bg.currentPos >= 32 {
		bg.currentRound++
		bg.currentPos = 0
		bg.generateRound()
	}

	b := bg.buffer[bg.currentPos]
	bg.currentPos++
	return b
}

// NextFloat returns a float in [0, 1) built from the next 4 bytes.
func (bg *ByteGenerator) NextFloat() float64 {
	return bytesToFloat([4]byte{bg.Next(), bg.Next(), bg.Next(), bg.Next()})
}

// IntN returns floor(NextFloat()*n), a value in [0, n).
func (bg *ByteGenerator) IntN(n int) int {
	if n <= 0 {
		panic("engine: IntN called with non-positive n")
	}
	v := int(math.Floor(bg.NextFloat() * float64(n)))
	if v >= n {
		return n - 1
	}
	return v
}

func (bg *ByteGenerator) generateRound() {
	h := hmac.New(sha256.New, []byte(bg.serverSeed))
	message := fmt.Sprintf("%s:%d:%d", bg.clientSeed, bg.nonce, bg.currentRound)
	h.Write([]byte(message))
	copy(bg.buffer[:], h.Sum(nil))
}

// bytesToFloat converts exactly 4 bytes to float64: Σ b[i] / 256^(i+1)
func bytesToFloat(bytes [4]byte) float64 {
	result := 0.0
	for i, b := range bytes {
		divider := math.Pow(256, float64(i+1))
		result += float64(b) / divider
	}
	return result
}

// NewSeededSource returns a reproducible PCG source for Monte Carlo runs.
func NewSeededSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0))
}

// HashServerSeed returns the hex SHA-256 of a server seed. Only the hash is
// ever stored or logged.
func HashServerSeed(serverSeed string) string {
	if serverSeed == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(hash[:])
}
