package iscc

import (
	"encoding/base64"
	"fmt"
	"sync"
)

// Key is an opaque Base64-encoded HMAC-MD5 key. The decoded bytes are
// computed lazily on first use and cached. There is no key-ID rotation:
// just a bare Base64 secret decoded once and reused for sign/verify.
type Key struct {
	encoded string

	once    sync.Once
	decoded []byte
	err     error
}

// NewKey wraps a Base64-encoded key string. Decoding is deferred until
// the key is first used to sign or verify.
func NewKey(encoded string) *Key {
	return &Key{encoded: encoded}
}

// Bytes returns the decoded key material, decoding (and caching the
// result, including any error) on first call.
func (k *Key) Bytes() ([]byte, error) {
	k.once.Do(func() {
		k.decoded, k.err = base64.StdEncoding.DecodeString(k.encoded)
		if k.err != nil {
			k.err = fmt.Errorf("iscc: decode key: %w", k.err)
		}
	})
	return k.decoded, k.err
}

// String returns the original Base64-encoded key string.
func (k *Key) String() string {
	return k.encoded
}
