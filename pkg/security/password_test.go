package security_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reviewhub-backend/pkg/config"
	"github.com/angelmondragon/reviewhub-backend/pkg/security"
)

var testPasswordCfg = config.PasswordConfig{
	ArgonMemoryKB:    32768,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := security.HashPassword("very-secure-password", testPasswordCfg)
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	ok, err := security.VerifyPassword("very-secure-password", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = security.VerifyPassword("bogus-password", hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashPasswordRejectsShortPassword(t *testing.T) {
	_, err := security.HashPassword("short", testPasswordCfg)
	require.Error(t, err)
}

func TestVerifyPasswordBadHash(t *testing.T) {
	_, err := security.VerifyPassword("irrelevant", "not-a-hash")
	require.ErrorIs(t, err, security.ErrInvalidHash)
}

func TestNeedsRehash(t *testing.T) {
	hash, err := security.HashPassword("very-secure-password", testPasswordCfg)
	require.NoError(t, err)
	require.False(t, security.NeedsRehash(hash, testPasswordCfg))

	stronger := testPasswordCfg
	stronger.ArgonTime = 3
	require.True(t, security.NeedsRehash(hash, stronger))
	require.True(t, security.NeedsRehash("garbage", testPasswordCfg))
}

func TestVerifyPasswordRejectsForeignFormats(t *testing.T) {
	hash, err := security.HashPassword("very-secure-password", testPasswordCfg)
	require.NoError(t, err)

	cases := map[string]string{
		"bcrypt":        "$2a$10$abcdefghijklmnopqrstuv",
		"argon2i":       strings.Replace(hash, "$argon2id$", "$argon2i$", 1),
		"old version":   strings.Replace(hash, "$v=19$", "$v=16$", 1),
		"zero memory":   strings.Replace(hash, "m=32768", "m=0", 1),
		"missing field": strings.Replace(hash, ",p=1", "", 1),
	}
	for name, encoded := range cases {
		_, err := security.VerifyPassword("very-secure-password", encoded)
		require.ErrorIs(t, err, security.ErrInvalidHash, name)
	}
}
