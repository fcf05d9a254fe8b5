// Package id generates request correlation ids.
package id

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns a 32 character random hex id. crypto/rand reads cannot fail
// on supported platforms as of Go 1.24.
func New() string {
	var b [16]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
