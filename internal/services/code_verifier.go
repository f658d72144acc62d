package services

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

type Charset string

const (
	CharsetDigits Charset = "digits"
	CharsetAlnum  Charset = "alnum" // 0-9 and A-Z
)

// CodeShape is the exact form a guess must have before it is worth hashing.
type CodeShape struct {
	Length  int
	Charset Charset
}

func (s CodeShape) Matches(code string) bool {
	if s.Length <= 0 || len(code) != s.Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case ch >= '0' && ch <= '9':
		case s.Charset == CharsetAlnum && ch >= 'A' && ch <= 'Z':
		default:
			return false
		}
	}
	return true
}

// CodeVerifier checks a guess against the configured secret hash.
type CodeVerifier interface {
	Verify(code string) (bool, error)
}

var ErrUnsupportedHash = errors.New("unsupported code hash format")

// NewCodeVerifier accepts an argon2id/argon2i PHC string or a bcrypt hash.
func NewCodeVerifier(encoded string) (CodeVerifier, error) {
	encoded = strings.TrimSpace(encoded)
	switch {
	case strings.HasPrefix(encoded, "$argon2"):
		return parseArgon2(encoded)
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		if _, err := bcrypt.Cost([]byte(encoded)); err != nil {
			return nil, fmt.Errorf("bcrypt code hash: %w", err)
		}
		return bcryptVerifier{hash: []byte(encoded)}, nil
	}
	return nil, ErrUnsupportedHash
}

type bcryptVerifier struct {
	hash []byte
}

func (v bcryptVerifier) Verify(code string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(v.hash, []byte(code))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type argon2Verifier struct {
	variant string
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>, base64 without padding.
func parseArgon2(encoded string) (*argon2Verifier, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, fmt.Errorf("argon2 code hash: want 6 fields, got %d", len(parts))
	}
	v := &argon2Verifier{variant: parts[1]}
	if v.variant != "argon2id" && v.variant != "argon2i" {
		return nil, fmt.Errorf("argon2 code hash: unsupported variant %q", v.variant)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("argon2 code hash version: %w", err)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("argon2 code hash: unsupported version %d", version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &v.memory, &v.time, &v.threads); err != nil {
		return nil, fmt.Errorf("argon2 code hash params: %w", err)
	}
	if v.time == 0 || v.threads == 0 {
		return nil, fmt.Errorf("argon2 code hash: zero time or parallelism")
	}

	var err error
	if v.salt, err = decodeB64(parts[4]); err != nil {
		return nil, fmt.Errorf("argon2 code hash salt: %w", err)
	}
	if v.key, err = decodeB64(parts[5]); err != nil {
		return nil, fmt.Errorf("argon2 code hash key: %w", err)
	}
	if len(v.key) == 0 {
		return nil, fmt.Errorf("argon2 code hash: empty key")
	}
	return v, nil
}

func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func (v *argon2Verifier) Verify(code string) (bool, error) {
	var derived []byte
	if v.variant == "argon2id" {
		derived = argon2.IDKey([]byte(code), v.salt, v.time, v.memory, v.threads, uint32(len(v.key)))
	} else {
		derived = argon2.Key([]byte(code), v.salt, v.time, v.memory, v.threads, uint32(len(v.key)))
	}
	return subtle.ConstantTimeCompare(derived, v.key) == 1, nil
}

type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// 64 MiB, t=3, p=4: the usual argon2id defaults for interactive logins.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// HashCode produces an argon2id PHC string suitable for contest.code_hash.
func HashCode(code string, p Argon2Params) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := argon2.IDKey([]byte(code), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}
