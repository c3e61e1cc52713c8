// Package keys generates key material and block ciphers for the local
// oracles. Attacks never see anything produced here.
package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/twofish"
)

// ErrEmptySeed is returned by Derive when there is nothing to derive from.
var ErrEmptySeed = errors.New("empty seed")

// KeySize is the key length used for every cipher this package builds.
const KeySize = 16

// Generate returns n bytes from crypto/rand.
func Generate(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return b, nil
}

// Derive expands seed into n bytes bound to info with HKDF-SHA256, so a
// run can be reproduced from the same seed.
func Derive(seed []byte, info string, n int) ([]byte, error) {
	if len(seed) == 0 {
		return nil, ErrEmptySeed
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, []byte(info)), b); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return b, nil
}

var ciphers = map[string]func(key []byte) (cipher.Block, error){
	"aes": aes.NewCipher,
	"blowfish": func(key []byte) (cipher.Block, error) {
		return blowfish.NewCipher(key)
	},
	"twofish": func(key []byte) (cipher.Block, error) {
		return twofish.NewCipher(key)
	},
}

// Ciphers lists the names accepted by NewBlock.
func Ciphers() []string {
	names := make([]string, 0, len(ciphers))
	for name := range ciphers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBlock returns the named block cipher keyed with key.
func NewBlock(name string, key []byte) (cipher.Block, error) {
	newCipher, ok := ciphers[name]
	if !ok {
		return nil, fmt.Errorf("unknown cipher %q", name)
	}
	b, err := newCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}

// NewRandomBlock returns the named block cipher under a fresh random key.
func NewRandomBlock(name string) (cipher.Block, error) {
	key, err := Generate(KeySize)
	if err != nil {
		return nil, err
	}
	return NewBlock(name, key)
}
