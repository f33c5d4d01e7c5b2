package pgp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"sync"
)

// entropyPool folds caller-supplied entropy (wall time, stack/heap
// addresses, thread/process ids — whatever the host has handy) into the
// bytes drawn from the system CSPRNG used for keygen. crypto/rand.Reader is
// already a cryptographically secure OS source, so this does not add
// security; it exists because the spec calls for a rand_seed hook invoked at
// mailbox construction and again before every keygen, and every keygen
// caller in this package reads through seededReader rather than
// rand.Reader directly so that hook has somewhere to attach.
var entropyPool struct {
	mu    sync.Mutex
	state [sha256.Size]byte
	ctr   uint64
}

// SeedRNG folds buf into the entropy pool. Safe to call concurrently and as
// often as the caller likes; it never decreases the quality of subsequently
// drawn randomness.
func SeedRNG(buf []byte) {
	entropyPool.mu.Lock()
	defer entropyPool.mu.Unlock()

	h := sha256.New()
	h.Write(entropyPool.state[:])
	h.Write(buf)
	copy(entropyPool.state[:], h.Sum(nil))
}

type seededReader struct{}

// Read draws bytes from crypto/rand.Reader and whitens them against the
// entropy pool via a SHA-256 keystream, so pool contents influence but never
// replace the OS source.
func (seededReader) Read(p []byte) (int, error) {
	n, err := io.ReadFull(rand.Reader, p)
	if err != nil {
		return n, err
	}

	entropyPool.mu.Lock()
	state := entropyPool.state
	ctr := entropyPool.ctr
	entropyPool.ctr++
	entropyPool.mu.Unlock()

	for off := 0; off < n; off += sha256.Size {
		var ctrBuf [8]byte
		binary.LittleEndian.PutUint64(ctrBuf[:], ctr)
		ctr++

		h := sha256.New()
		h.Write(state[:])
		h.Write(ctrBuf[:])
		block := h.Sum(nil)

		end := off + sha256.Size
		if end > n {
			end = n
		}
		for i := off; i < end; i++ {
			p[i] ^= block[i-off]
		}
	}

	return n, nil
}

// rngReader is the source every keygen and nonce draw in this package reads
// from.
var rngReader io.Reader = seededReader{}
