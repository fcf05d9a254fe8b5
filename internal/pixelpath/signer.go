package pixelpath

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Signer produces the URL signature for a canonical path.
type Signer interface {
	Sign(path string) string
}

// HMACSigner signs command paths with a keyed HMAC-SHA256, base64 URL
// encoded. Signing the same path always produces the same signature, so
// signed URLs stay cacheable.
type HMACSigner struct {
	secret   []byte
	truncate int
}

// NewHMACSigner builds a signer from the shared secret. A positive truncate
// shortens signatures to that many characters; values below the parser's
// minimum signature length are raised to it.
func NewHMACSigner(secret string, truncate int) *HMACSigner {
	if truncate > 0 && truncate < minSignatureLen {
		truncate = minSignatureLen
	}
	return &HMACSigner{secret: []byte(secret), truncate: truncate}
}

func (s *HMACSigner) Sign(path string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(path))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	if s.truncate > 0 && s.truncate < len(sig) {
		sig = sig[:s.truncate]
	}
	return sig
}

// Verify reports whether signature is valid for path, in constant time.
func (s *HMACSigner) Verify(path, signature string) bool {
	return hmac.Equal([]byte(s.Sign(path)), []byte(signature))
}
