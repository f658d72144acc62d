package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var cheapArgon2 = Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func TestCodeShapeMatches(t *testing.T) {
	alnum := CodeShape{Length: 4, Charset: CharsetAlnum}
	assert.True(t, alnum.Matches("AB12"))
	assert.True(t, alnum.Matches("0000"))
	assert.False(t, alnum.Matches("ab12"), "lowercase is not part of the charset")
	assert.False(t, alnum.Matches("AB1"))
	assert.False(t, alnum.Matches("AB123"))
	assert.False(t, alnum.Matches("AB-2"))
	assert.False(t, alnum.Matches(""))

	digits := CodeShape{Length: 3, Charset: CharsetDigits}
	assert.True(t, digits.Matches("123"))
	assert.False(t, digits.Matches("12A"))
	assert.False(t, digits.Matches("١٢٣"))

	assert.False(t, CodeShape{}.Matches(""))
}

func TestArgon2RoundTrip(t *testing.T) {
	hash, err := HashCode("AB12", cheapArgon2)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=64,t=1,p=1$"))

	v, err := NewCodeVerifier(hash)
	require.NoError(t, err)

	ok, err := v.Verify("AB12")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify("AB13")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2SaltIsRandom(t *testing.T) {
	a, err := HashCode("AB12", cheapArgon2)
	require.NoError(t, err)
	b, err := HashCode("AB12", cheapArgon2)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBcryptVerifier(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("123"), bcrypt.MinCost)
	require.NoError(t, err)

	v, err := NewCodeVerifier(string(hash))
	require.NoError(t, err)

	ok, err := v.Verify("123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify("124")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewCodeVerifierRejectsMalformed(t *testing.T) {
	for _, h := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=64,t=1,p=1$c2FsdA",
		"$argon2d$v=19$m=64,t=1,p=1$c2FsdHNhbHQ$aGFzaA",
		"$argon2id$v=16$m=64,t=1,p=1$c2FsdHNhbHQ$aGFzaA",
		"$argon2id$v=19$m=64,t=0,p=1$c2FsdHNhbHQ$aGFzaA",
		"$argon2id$v=19$m=64,t=1,p=1$!!!$aGFzaA",
		"$2a$99$short",
	} {
		_, err := NewCodeVerifier(h)
		assert.Error(t, err, h)
	}
	_, err := NewCodeVerifier("plaintext")
	assert.ErrorIs(t, err, ErrUnsupportedHash)
}
