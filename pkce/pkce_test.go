package pkce_test

import (
	"testing"

	"github.com/jrsteele09/go-auth-core/internal/random"
	"github.com/jrsteele09/go-auth-core/pkce"
	"github.com/stretchr/testify/require"
)

const (
	testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testCodeVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

func TestChallenge_RFC7636Vector(t *testing.T) {
	require.Equal(t, testCodeChallenge, pkce.Challenge(testCodeVerifier))
}

func TestVerify(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			verifier := random.MustToken(32)
			require.True(t, pkce.Verify(verifier, pkce.Challenge(verifier)))
		}
	})

	t.Run("one byte change flips the result", func(t *testing.T) {
		verifier := []byte(testCodeVerifier)
		for i := range verifier {
			mutated := make([]byte, len(verifier))
			copy(mutated, verifier)
			mutated[i] ^= 0x01
			require.False(t, pkce.Verify(string(mutated), testCodeChallenge), "position %d", i)
		}
	})

	t.Run("verifier used as challenge is rejected", func(t *testing.T) {
		require.False(t, pkce.Verify(testCodeVerifier, testCodeVerifier))
	})

	t.Run("empty inputs", func(t *testing.T) {
		require.False(t, pkce.Verify("", testCodeChallenge))
		require.False(t, pkce.Verify(testCodeVerifier, ""))
	})
}

func TestValidateMethod(t *testing.T) {
	require.NoError(t, pkce.ValidateMethod(""))
	require.NoError(t, pkce.ValidateMethod("S256"))
	require.ErrorIs(t, pkce.ValidateMethod("plain"), pkce.ErrPlainNotSupported)
	require.ErrorIs(t, pkce.ValidateMethod("s256"), pkce.ErrUnsupportedMethod)
	require.ErrorIs(t, pkce.ValidateMethod("S512"), pkce.ErrUnsupportedMethod)
}

func TestValidateVerifier(t *testing.T) {
	require.NoError(t, pkce.ValidateVerifier(testCodeVerifier))

	t.Run("too short", func(t *testing.T) {
		require.ErrorIs(t, pkce.ValidateVerifier("short"), pkce.ErrInvalidVerifier)
	})

	t.Run("reserved characters", func(t *testing.T) {
		require.ErrorIs(t, pkce.ValidateVerifier(testCodeVerifier[:42]+"="), pkce.ErrInvalidVerifier)
	})
}
