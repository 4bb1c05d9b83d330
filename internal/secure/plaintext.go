// Package secure holds decrypted secret material between the decode
// step and the remote write. Plaintext lives in a memguard enclave so
// it is encrypted at rest in memory and protected from swapping.
package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when a Plaintext is used after Destroy.
var ErrDestroyed = errors.New("plaintext has been destroyed")

// Plaintext is a protected container for one decoded secret value.
// The zero value is not usable; construct with NewPlaintext.
type Plaintext struct {
	enclave *memguard.Enclave
	size    int
	mu      sync.RWMutex
	// destroyed allows idempotent Destroy() and prevents use after destroy
	destroyed bool
}

// NewPlaintext seals the given bytes into a protected buffer. The input
// slice is copied; the caller should zero its own copy afterwards.
func NewPlaintext(data []byte) *Plaintext {
	p := &Plaintext{size: len(data)}
	// memguard rejects zero-length buffers; an empty value needs no
	// enclave anyway.
	if len(data) > 0 {
		p.enclave = memguard.NewEnclave(data)
	}
	return p
}

// Len returns the length of the protected value in bytes.
func (p *Plaintext) Len() int {
	return p.size
}

// Open decrypts the value into a locked buffer. The caller MUST call
// Destroy() on the returned buffer when done to wipe the plaintext.
// Empty values cannot be opened; check Len first or use Reveal.
//
//	locked, err := p.Open()
//	if err != nil {
//	    return err
//	}
//	defer locked.Destroy()
//	use(locked.String())
func (p *Plaintext) Open() (*memguard.LockedBuffer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.destroyed {
		return nil, ErrDestroyed
	}
	if p.enclave == nil {
		return nil, errors.New("plaintext is empty")
	}
	return p.enclave.Open()
}

// Reveal copies the value out as a string for handoff to an API call
// that requires one. Use Open for anything longer-lived.
func (p *Plaintext) Reveal() (string, error) {
	p.mu.RLock()
	empty := p.enclave == nil
	destroyed := p.destroyed
	p.mu.RUnlock()

	if destroyed {
		return "", ErrDestroyed
	}
	if empty {
		return "", nil
	}

	locked, err := p.Open()
	if err != nil {
		return "", err
	}
	// LockedBuffer.String is a view into protected memory; copy before
	// the buffer is wiped.
	value := string(locked.Bytes())
	locked.Destroy()
	return value, nil
}

// Destroy marks the container as destroyed and drops the enclave.
// Idempotent. For complete cleanup of all memguard data at process
// exit, call memguard.Purge() in main.
func (p *Plaintext) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return
	}
	p.enclave = nil
	p.destroyed = true
}
