// Package oracle implements the services the attacks are aimed at. Each
// oracle owns its key material and hidden data; the only way in or out is
// through the query methods. Oracles never change after construction and
// are safe for concurrent use.
package oracle

import (
	"crypto/cipher"
	"fmt"

	"github.com/kgeorgiou/cryptopals/internal/keys"
	"github.com/kgeorgiou/cryptopals/internal/modes"
)

// Mode is the block cipher mode an encryption oracle uses.
type Mode int

const (
	ECBMode Mode = iota
	CBCMode
)

func (m Mode) String() string {
	switch m {
	case ECBMode:
		return "ECB"
	case CBCMode:
		return "CBC"
	default:
		return "Unknown"
	}
}

// ECB encrypts prefix || input || secret under a fixed key in ECB mode.
type ECB struct {
	block  cipher.Block
	prefix []byte
	secret []byte
}

// NewECB returns an ECB oracle. An empty prefix gives the simple variant
// where attacker bytes start the plaintext.
func NewECB(block cipher.Block, prefix, secret []byte) *ECB {
	return &ECB{
		block:  block,
		prefix: clone(prefix),
		secret: clone(secret),
	}
}

// NewRandomECB returns an AES ECB oracle with a fresh key and a random
// prefix of prefixLen bytes.
func NewRandomECB(prefixLen int, secret []byte) (*ECB, error) {
	block, err := keys.NewRandomBlock("aes")
	if err != nil {
		return nil, err
	}
	prefix, err := keys.Generate(prefixLen)
	if err != nil {
		return nil, err
	}
	return NewECB(block, prefix, secret), nil
}

func (o *ECB) Encrypt(input []byte) ([]byte, error) {
	pt := modes.Pad(o.plaintext(input), o.block.BlockSize())
	modes.NewECBEncrypter(o.block).CryptBlocks(pt, pt)
	return pt, nil
}

func (o *ECB) plaintext(input []byte) []byte {
	res := make([]byte, 0, len(o.prefix)+len(input)+len(o.secret)+o.block.BlockSize())
	res = append(res, o.prefix...)
	res = append(res, input...)
	return append(res, o.secret...)
}

// CBC lays out its plaintext like ECB but encrypts in CBC mode under a
// fresh random IV per call. The IV is not returned.
type CBC struct {
	ecb *ECB
}

func NewCBC(block cipher.Block, prefix, secret []byte) *CBC {
	return &CBC{ecb: NewECB(block, prefix, secret)}
}

func (o *CBC) Encrypt(input []byte) ([]byte, error) {
	blockSize := o.ecb.block.BlockSize()
	iv, err := keys.Generate(blockSize)
	if err != nil {
		return nil, fmt.Errorf("cbc oracle: %w", err)
	}
	pt := modes.Pad(o.ecb.plaintext(input), blockSize)
	cipher.NewCBCEncrypter(o.ecb.block, iv).CryptBlocks(pt, pt)
	return pt, nil
}

// Random is an oracle that picked ECB or CBC, a key, and 5 to 10 random
// bytes on either side of the attacker input when it was built.
type Random struct {
	mode Mode
	enc  encrypter
}

type encrypter interface {
	Encrypt(input []byte) ([]byte, error)
}

func NewRandom() (*Random, error) {
	rnd, err := keys.Generate(3)
	if err != nil {
		return nil, err
	}
	before, err := keys.Generate(5 + int(rnd[0])%6)
	if err != nil {
		return nil, err
	}
	after, err := keys.Generate(5 + int(rnd[1])%6)
	if err != nil {
		return nil, err
	}
	block, err := keys.NewRandomBlock("aes")
	if err != nil {
		return nil, err
	}

	if rnd[2]&1 == 0 {
		return &Random{mode: ECBMode, enc: NewECB(block, before, after)}, nil
	}
	return &Random{mode: CBCMode, enc: NewCBC(block, before, after)}, nil
}

// Mode reveals the choice made at construction, for checking a guess.
func (o *Random) Mode() Mode { return o.mode }

func (o *Random) Encrypt(input []byte) ([]byte, error) {
	return o.enc.Encrypt(input)
}

func clone(b []byte) []byte {
	return append([]byte{}, b...)
}
