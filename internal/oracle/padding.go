package oracle

import (
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/kgeorgiou/cryptopals/internal/keys"
	"github.com/kgeorgiou/cryptopals/internal/modes"
)

// ErrMalformedQuery is returned by HasValidPadding for inputs a real
// service would reject before decrypting.
var ErrMalformedQuery = errors.New("malformed padding oracle query")

// Padding holds a fixed plaintext under a fixed key. It hands out CBC
// encryptions of it and answers whether a chosen IV and ciphertext decrypt
// to correctly padded plaintext.
type Padding struct {
	block     cipher.Block
	plaintext []byte
}

func NewPadding(block cipher.Block, plaintext []byte) *Padding {
	return &Padding{block: block, plaintext: clone(plaintext)}
}

// NewRandomPadding returns an AES padding oracle with a fresh key.
func NewRandomPadding(plaintext []byte) (*Padding, error) {
	block, err := keys.NewRandomBlock("aes")
	if err != nil {
		return nil, err
	}
	return NewPadding(block, plaintext), nil
}

// Encrypt pads the plaintext and encrypts it in CBC mode under a fresh
// random IV.
func (o *Padding) Encrypt() ([]byte, []byte, error) {
	blockSize := o.block.BlockSize()
	iv, err := keys.Generate(blockSize)
	if err != nil {
		return nil, nil, fmt.Errorf("padding oracle: %w", err)
	}
	ct := modes.Pad(o.plaintext, blockSize)
	cipher.NewCBCEncrypter(o.block, iv).CryptBlocks(ct, ct)
	return iv, ct, nil
}

func (o *Padding) HasValidPadding(iv, ciphertext []byte) (bool, error) {
	blockSize := o.block.BlockSize()
	if len(iv) != blockSize {
		return false, fmt.Errorf("%w: iv is %d bytes, want %d", ErrMalformedQuery, len(iv), blockSize)
	}
	if len(ciphertext) == 0 || len(ciphertext)%blockSize != 0 {
		return false, fmt.Errorf("%w: ciphertext is %d bytes", ErrMalformedQuery, len(ciphertext))
	}
	pt := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(o.block, iv).CryptBlocks(pt, ciphertext)
	return modes.ValidPadding(pt), nil
}
