// Package crypto provides the encryption capability the verification ledger
// is built against: opaque ciphertext handles with per-handle access grants,
// and an asynchronous decryption oracle. Values never leave the vault in
// plaintext except to principals explicitly granted access.
package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"

	dErrors "attestor/pkg/domain-errors"
)

// Handle is an opaque reference to a sealed value.
type Handle string

// Principal names an actor allowed to open a handle. Identity addresses are
// principals; the service and the oracle have fixed internal names.
type Principal string

const (
	PrincipalService Principal = "attestor/service"
	PrincipalOracle  Principal = "attestor/oracle"
)

type sealedValue struct {
	nonce      []byte
	ciphertext []byte
	grants     map[Principal]struct{}
}

// Vault seals small integer values under a process-local key and tracks who
// may open each handle. Safe for concurrent use.
type Vault struct {
	mu     sync.RWMutex
	cipher cipherFn
	values map[Handle]*sealedValue
}

type cipherFn struct {
	seal func(nonce, plaintext []byte) []byte
	open func(nonce, ciphertext []byte) ([]byte, error)
}

// NewVault generates a fresh sealing key. Handles from one vault are
// meaningless to another.
func NewVault() (*Vault, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate vault key")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not initialize vault cipher")
	}
	return &Vault{
		cipher: cipherFn{
			seal: func(nonce, plaintext []byte) []byte {
				return aead.Seal(nil, nonce, plaintext, nil)
			},
			open: func(nonce, ciphertext []byte) ([]byte, error) {
				return aead.Open(nil, nonce, ciphertext, nil)
			},
		},
		values: make(map[Handle]*sealedValue),
	}, nil
}

// Seal encrypts a value and returns its handle. No principal is granted
// access; callers grant explicitly, mirroring the ledger's allow calls.
func (v *Vault) Seal(value uint64) (Handle, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate nonce")
	}
	plaintext := make([]byte, 8)
	binary.BigEndian.PutUint64(plaintext, value)

	handle := Handle(uuid.New().String())

	v.mu.Lock()
	defer v.mu.Unlock()
	v.values[handle] = &sealedValue{
		nonce:      nonce,
		ciphertext: v.cipher.seal(nonce, plaintext),
		grants:     make(map[Principal]struct{}),
	}
	return handle, nil
}

// Grant allows a principal to open the handle. Idempotent.
func (v *Vault) Grant(handle Handle, principal Principal) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	sealed, ok := v.values[handle]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "unknown ciphertext handle")
	}
	sealed.grants[principal] = struct{}{}
	return nil
}

// Open decrypts the handle for a granted principal.
func (v *Vault) Open(handle Handle, principal Principal) (uint64, error) {
	v.mu.RLock()
	sealed, ok := v.values[handle]
	if !ok {
		v.mu.RUnlock()
		return 0, dErrors.New(dErrors.CodeNotFound, "unknown ciphertext handle")
	}
	if _, granted := sealed.grants[principal]; !granted {
		v.mu.RUnlock()
		return 0, dErrors.New(dErrors.CodeUnauthorized, "principal has no access to this handle")
	}
	v.mu.RUnlock()

	plaintext, err := v.cipher.open(sealed.nonce, sealed.ciphertext)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "could not open sealed value")
	}
	return binary.BigEndian.Uint64(plaintext), nil
}

// RandomChallenge returns a fresh pseudo-random 32-bit challenge value.
func RandomChallenge() (uint32, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate challenge")
	}
	return binary.BigEndian.Uint32(buf), nil
}
