package random

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/pkg/errors"
)

const (
	// MinTokenBytes keeps every opaque token at 128 bits of entropy or more.
	MinTokenBytes = 16

	minOTPDigits = 4
	maxOTPDigits = 12
)

// Token returns byteLength random bytes encoded as unpadded base64url.
// Lengths below MinTokenBytes are raised to MinTokenBytes.
func Token(byteLength int) (string, error) {
	if byteLength < MinTokenBytes {
		byteLength = MinTokenBytes
	}
	b := make([]byte, byteLength)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[random.Token] rand.Read")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MustToken is Token for callers that cannot recover from a broken CSPRNG.
func MustToken(byteLength int) string {
	t, err := Token(byteLength)
	if err != nil {
		panic(err)
	}
	return t
}

// NumericOTP returns a uniformly random number in [0, 10^digits),
// zero-padded to digits characters.
func NumericOTP(digits int) (string, error) {
	if digits < minOTPDigits || digits > maxOTPDigits {
		return "", errors.Errorf("[random.NumericOTP] digits must be between %d and %d", minOTPDigits, maxOTPDigits)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", errors.Wrap(err, "[random.NumericOTP] rand.Int")
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
