// Package crypto provides credential encryption with versioned master keys,
// HMAC request signing for REST venues, and EIP-712 signing for on-chain
// venues.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// aesKeyLen is the AES-256 key length.
	aesKeyLen = 32
)

var (
	ErrInvalidKey        = errors.New("crypto: invalid key")
	ErrUnknownKeyVersion = errors.New("crypto: unknown key version")
	ErrInvalidCiphertext = errors.New("crypto: invalid ciphertext")
	ErrDecryptionFailed  = errors.New("crypto: decryption failed")
)

// ciphertexts look like ENC[v2]:base64(nonce||sealed)
var envelopeRe = regexp.MustCompile(`^ENC\[v(\d+)\]:(.+)$`)

// KeyManager encrypts and decrypts credential strings with versioned
// AES-256-GCM master keys. Keys are held in memguard enclaves and only
// unsealed for the duration of a single operation.
type KeyManager struct {
	mu      sync.RWMutex
	keys    map[int]*memguard.Enclave
	current int
}

// NewKeyManager seals each raw key. keys maps version to a 32-byte key and
// current selects the version used by Encrypt. The caller's key slices are
// wiped.
func NewKeyManager(keys map[int][]byte, current int) (*KeyManager, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no master keys configured", ErrInvalidKey)
	}
	if _, ok := keys[current]; !ok {
		return nil, fmt.Errorf("%w: current version %d", ErrUnknownKeyVersion, current)
	}
	km := &KeyManager{keys: make(map[int]*memguard.Enclave, len(keys)), current: current}
	for v, k := range keys {
		if len(k) != aesKeyLen {
			return nil, fmt.Errorf("%w: version %d is %d bytes, want %d", ErrInvalidKey, v, len(k), aesKeyLen)
		}
		// NewEnclave copies and wipes k.
		km.keys[v] = memguard.NewEnclave(k)
	}
	return km, nil
}

// NewKeyManagerFromConfig builds a KeyManager from base64-encoded keys keyed
// by version string, or from a passphrase when no keys are given.
func NewKeyManagerFromConfig(encoded map[string]string, current int, passphrase, salt string) (*KeyManager, error) {
	raw := make(map[int][]byte, len(encoded))
	for vs, enc := range encoded {
		v, err := strconv.Atoi(vs)
		if err != nil || v < 1 {
			return nil, fmt.Errorf("%w: version %q", ErrInvalidKey, vs)
		}
		k, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("%w: version %d is not base64", ErrInvalidKey, v)
		}
		raw[v] = k
	}
	if len(raw) == 0 && passphrase != "" {
		raw[1] = DeriveKey(passphrase, salt)
		current = 1
	}
	return NewKeyManager(raw, current)
}

// DeriveKey stretches a passphrase into an AES-256 key with
// PBKDF2-HMAC-SHA256.
func DeriveKey(passphrase, salt string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(salt), pbkdf2Iterations, aesKeyLen, sha256.New)
}

// GenerateKey returns a fresh random key encoded for configuration.
func GenerateKey() (string, error) {
	k := make([]byte, aesKeyLen)
	if _, err := rand.Read(k); err != nil {
		return "", fmt.Errorf("crypto: generating key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(k), nil
}

// CurrentVersion returns the version Encrypt uses.
func (km *KeyManager) CurrentVersion() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.current
}

// Versions lists the loaded key versions in ascending order.
func (km *KeyManager) Versions() []int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	out := make([]int, 0, len(km.keys))
	for v := range km.keys {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Encrypt seals plaintext under the current key version.
func (km *KeyManager) Encrypt(plaintext string) (string, error) {
	km.mu.RLock()
	v := km.current
	enclave := km.keys[v]
	km.mu.RUnlock()

	gcm, release, err := openGCM(enclave)
	if err != nil {
		return "", err
	}
	defer release()

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: generating nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return fmt.Sprintf("ENC[v%d]:%s", v, base64.StdEncoding.EncodeToString(sealed)), nil
}

// Decrypt opens a ciphertext produced by Encrypt with whichever key version
// it names. Values without the ENC envelope are rejected; they are never
// returned as plaintext.
func (km *KeyManager) Decrypt(ciphertext string) (string, error) {
	m := envelopeRe.FindStringSubmatch(ciphertext)
	if m == nil {
		return "", ErrInvalidCiphertext
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad base64", ErrInvalidCiphertext)
	}

	km.mu.RLock()
	enclave, ok := km.keys[v]
	km.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: v%d", ErrUnknownKeyVersion, v)
	}

	gcm, release, err := openGCM(enclave)
	if err != nil {
		return "", err
	}
	defer release()

	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: too short", ErrInvalidCiphertext)
	}
	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// Rotate re-encrypts ciphertext under the current version when it was
// sealed with an older one.
func (km *KeyManager) Rotate(ciphertext string) (string, bool, error) {
	m := envelopeRe.FindStringSubmatch(ciphertext)
	if m == nil {
		return "", false, ErrInvalidCiphertext
	}
	if v, _ := strconv.Atoi(m[1]); v == km.CurrentVersion() {
		return ciphertext, false, nil
	}
	plain, err := km.Decrypt(ciphertext)
	if err != nil {
		return "", false, err
	}
	out, err := km.Encrypt(plain)
	return out, err == nil, err
}

// openGCM unseals the enclave and builds an AEAD. release destroys the
// unsealed buffer.
func openGCM(enclave *memguard.Enclave) (cipher.AEAD, func(), error) {
	if enclave == nil {
		return nil, nil, ErrUnknownKeyVersion
	}
	buf, err := enclave.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: unsealing key: %w", err)
	}
	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, buf.Destroy, nil
}
