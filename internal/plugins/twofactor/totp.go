package twofactor

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TOTP parameters, fixed to what authenticator apps expect by default:
// SHA-1, 6 digits, 30 second steps.
const (
	totpDigits = 6
	totpPeriod = 30 * time.Second

	// totpSkew is how many steps either side of "now" a code is accepted
	// for, absorbing clock drift between server and phone.
	totpSkew = 1
)

// b32 is the unpadded base32 alphabet authenticator apps use for secrets.
var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// generateTOTPSecret returns a fresh 20-byte secret, base32 encoded.
func generateTOTPSecret() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating totp secret: %w", err)
	}
	return b32.EncodeToString(raw), nil
}

// totpCode computes the RFC 6238 code for the secret at the given time.
func totpCode(secret string, at time.Time) (string, error) {
	key, err := b32.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil {
		return "", fmt.Errorf("decoding totp secret: %w", err)
	}

	counter := uint64(at.Unix()) / uint64(totpPeriod.Seconds())

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226 section 5.3.
	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%0*d", totpDigits, code%1_000_000), nil
}

// validTOTP reports whether the submitted code matches the secret within
// the accepted clock skew window.
func validTOTP(secret, code string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != totpDigits {
		return false
	}

	ok := false
	for step := -totpSkew; step <= totpSkew; step++ {
		expected, err := totpCode(secret, at.Add(time.Duration(step)*totpPeriod))
		if err != nil {
			return false
		}
		// No early exit so every attempt costs the same.
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			ok = true
		}
	}
	return ok
}

// otpauthURL builds the otpauth:// URI encoded into the enrollment QR code.
func otpauthURL(issuer, account, secret string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", fmt.Sprint(totpDigits))
	v.Set("period", fmt.Sprint(int(totpPeriod.Seconds())))

	return fmt.Sprintf("otpauth://totp/%s:%s?%s",
		url.PathEscape(issuer), url.PathEscape(account), v.Encode())
}
