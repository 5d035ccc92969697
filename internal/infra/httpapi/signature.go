package httpapi

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the HMAC-SHA1 of the raw body, hex encoded.
const SignatureHeader = "X-Pyrus-Sig"

// VerifySignature checks header against the HMAC-SHA1 of body keyed by secret.
// Both "sha1=<hex>" and bare "<hex>" are accepted, in either case.
func VerifySignature(body []byte, secret, header string) bool {
	if secret == "" {
		return false
	}
	provided := strings.ToLower(strings.TrimSpace(header))
	provided = strings.TrimPrefix(provided, "sha1=")
	got, err := hex.DecodeString(provided)
	if err != nil || len(got) == 0 {
		return false
	}

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
