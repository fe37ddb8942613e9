// Package pkce implements the S256 Proof Key for Code Exchange method (RFC 7636).
//
// Only S256 is supported. A "plain" challenge method is a protocol error,
// never a fallback.
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// Method is a code_challenge_method value.
type Method string

const (
	// MethodS256 hashes the verifier with SHA-256 and encodes it base64url without padding.
	MethodS256 Method = "S256"

	// MethodPlain sends the verifier as the challenge. Recognised only so it can be rejected.
	MethodPlain Method = "plain"
)

const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

var (
	ErrPlainNotSupported = errors.New("code_challenge_method plain is not supported")
	ErrUnsupportedMethod = errors.New("unsupported code_challenge_method")
	ErrInvalidVerifier   = errors.New("code_verifier must be 43-128 unreserved characters")
)

// Challenge computes the S256 challenge for verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Verify recomputes the challenge for verifier and compares it with the stored
// challenge in constant time.
func Verify(verifier, storedChallenge string) bool {
	if verifier == "" || storedChallenge == "" {
		return false
	}
	computed := Challenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedChallenge)) == 1
}

// ValidateMethod accepts S256 and the empty string (which defaults to S256).
func ValidateMethod(method string) error {
	switch Method(method) {
	case "", MethodS256:
		return nil
	case MethodPlain:
		return ErrPlainNotSupported
	default:
		return ErrUnsupportedMethod
	}
}

// ValidateVerifier checks the RFC 7636 length and character set rules.
func ValidateVerifier(verifier string) error {
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return ErrInvalidVerifier
	}
	for i := 0; i < len(verifier); i++ {
		if !isUnreserved(verifier[i]) {
			return ErrInvalidVerifier
		}
	}
	return nil
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}
