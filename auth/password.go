package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var ErrPasswordInvalidHash = errors.New("auth: invalid password hash")

// Default password hashing parameters
const (
	DefaultBcryptCost    = 12
	DefaultArgon2Time    = 3
	DefaultArgon2Memory  = 64 * 1024 // 64 MB
	DefaultArgon2Threads = 4
	DefaultArgon2KeyLen  = 32
	DefaultSaltLength    = 16
)

// PasswordHasher hashes and verifies credentials. Length and charset rules
// are the caller's concern.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	// Verify reports whether plain matches hash. It never fails loudly on a
	// mismatch or on a malformed hash.
	Verify(plain, hash string) bool
}

// BcryptHasher implements PasswordHasher using bcrypt.
type BcryptHasher struct {
	cost   int
	pepper []byte
}

// BcryptHasherOption configures BcryptHasher.
type BcryptHasherOption func(*BcryptHasher)

// WithBcryptCost sets the bcrypt cost factor.
func WithBcryptCost(cost int) BcryptHasherOption {
	return func(h *BcryptHasher) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			h.cost = cost
		}
	}
}

// WithBcryptPepper sets a server-side secret that is combined with passwords.
func WithBcryptPepper(pepper []byte) BcryptHasherOption {
	return func(h *BcryptHasher) {
		h.pepper = append([]byte(nil), pepper...)
	}
}

// NewBcryptHasher creates a new bcrypt-based password hasher.
func NewBcryptHasher(opts ...BcryptHasherOption) *BcryptHasher {
	h := &BcryptHasher{cost: DefaultBcryptCost}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Hash returns the bcrypt modular-crypt string for plain.
func (h *BcryptHasher) Hash(plain string) (string, error) {
	combined := combineWithPepper([]byte(plain), h.pepper)
	defer clearBytes(combined)

	hashed, err := bcrypt.GenerateFromPassword(combined, h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: bcrypt hash failed: %w", err)
	}
	return string(hashed), nil
}

func (h *BcryptHasher) Verify(plain, hash string) bool {
	if hash == "" {
		return false
	}
	combined := combineWithPepper([]byte(plain), h.pepper)
	defer clearBytes(combined)

	return bcrypt.CompareHashAndPassword([]byte(hash), combined) == nil
}

// NeedsRehash reports whether hash was produced with a lower cost than the
// hasher's current setting.
func (h *BcryptHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < h.cost
}

// Argon2idHasher implements PasswordHasher using Argon2id and the PHC string
// format $argon2id$v=19$m=MEMORY,t=TIME,p=THREADS$SALT$HASH.
type Argon2idHasher struct {
	time       uint32
	memory     uint32
	threads    uint8
	keyLen     uint32
	saltLength int
	pepper     []byte
}

// Argon2idHasherOption configures Argon2idHasher.
type Argon2idHasherOption func(*Argon2idHasher)

// WithArgon2Time sets the time parameter (iterations).
func WithArgon2Time(t uint32) Argon2idHasherOption {
	return func(h *Argon2idHasher) {
		if t > 0 {
			h.time = t
		}
	}
}

// WithArgon2Memory sets the memory parameter in KB.
func WithArgon2Memory(m uint32) Argon2idHasherOption {
	return func(h *Argon2idHasher) {
		if m > 0 {
			h.memory = m
		}
	}
}

// WithArgon2Threads sets the parallelism parameter.
func WithArgon2Threads(t uint8) Argon2idHasherOption {
	return func(h *Argon2idHasher) {
		if t > 0 {
			h.threads = t
		}
	}
}

// WithArgon2Pepper sets a server-side secret.
func WithArgon2Pepper(pepper []byte) Argon2idHasherOption {
	return func(h *Argon2idHasher) {
		h.pepper = append([]byte(nil), pepper...)
	}
}

// NewArgon2idHasher creates a new Argon2id-based password hasher.
func NewArgon2idHasher(opts ...Argon2idHasherOption) *Argon2idHasher {
	h := &Argon2idHasher{
		time:       DefaultArgon2Time,
		memory:     DefaultArgon2Memory,
		threads:    DefaultArgon2Threads,
		keyLen:     DefaultArgon2KeyLen,
		saltLength: DefaultSaltLength,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *Argon2idHasher) Hash(plain string) (string, error) {
	salt := make([]byte, h.saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("auth: failed to generate salt: %w", err)
	}

	combined := combineWithPepper([]byte(plain), h.pepper)
	defer clearBytes(combined)

	key := argon2.IDKey(combined, salt, h.time, h.memory, h.threads, h.keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *Argon2idHasher) Verify(plain, hash string) bool {
	params, salt, expected, err := decodeArgon2Hash(hash)
	if err != nil {
		return false
	}

	combined := combineWithPepper([]byte(plain), h.pepper)
	defer clearBytes(combined)

	key := argon2.IDKey(combined, salt, params.time, params.memory, params.threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
}

func decodeArgon2Hash(encoded string) (argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return argon2Params{}, nil, nil, ErrPasswordInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argon2Params{}, nil, nil, ErrPasswordInvalidHash
	}

	var p argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil || p.time == 0 || p.threads == 0 {
		return argon2Params{}, nil, nil, ErrPasswordInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argon2Params{}, nil, nil, ErrPasswordInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return argon2Params{}, nil, nil, ErrPasswordInvalidHash
	}
	return p, salt, key, nil
}

func combineWithPepper(plain, pepper []byte) []byte {
	combined := make([]byte, len(plain)+len(pepper))
	copy(combined, plain)
	copy(combined[len(plain):], pepper)
	return combined
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
