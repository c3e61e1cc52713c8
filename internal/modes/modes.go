// Package modes holds the block cipher plumbing the oracles are built on:
// ECB, which crypto/cipher deliberately leaves out, PKCS#7 padding and a few
// block helpers.
package modes

import "crypto/cipher"

type ecbEncrypter struct {
	b cipher.Block
}

// NewECBEncrypter returns a BlockMode which encrypts every block
// independently with b.
func NewECBEncrypter(b cipher.Block) cipher.BlockMode {
	return ecbEncrypter{b: b}
}

func (x ecbEncrypter) BlockSize() int { return x.b.BlockSize() }

func (x ecbEncrypter) CryptBlocks(dst, src []byte) {
	blockSize := x.b.BlockSize()
	if len(src)%blockSize != 0 {
		panic("input length is not divisible by block size")
	}
	if len(dst) < len(src) {
		panic("output smaller than input")
	}
	for i := 0; i < len(src); i += blockSize {
		x.b.Encrypt(dst[i:i+blockSize], src[i:i+blockSize])
	}
}

// XOR returns a ^ b. Both inputs must have the same length.
func XOR(a, b []byte) []byte {
	if len(a) != len(b) {
		panic("input length mismatch")
	}
	res := make([]byte, len(a))
	for i := range a {
		res[i] = a[i] ^ b[i]
	}
	return res
}

// Blocks splits input into size-byte chunks. A trailing partial chunk is
// kept. The chunks alias input.
func Blocks(input []byte, size int) [][]byte {
	res := [][]byte{}
	for i := 0; i < len(input); i += size {
		res = append(res, input[i:min(i+size, len(input))])
	}
	return res
}

// MaxRepetitions returns how often the most frequent blockSize-byte chunk
// of input occurs. Deterministic modes such as ECB turn repeated plaintext
// blocks into repeated ciphertext blocks, which this makes visible.
func MaxRepetitions(input []byte, blockSize int) int {
	_, n := MostRepeated(input, blockSize)
	return n
}

// MostRepeated returns the most frequent blockSize-byte chunk of input and
// its count. Ties go to the chunk that reached the count first.
func MostRepeated(input []byte, blockSize int) ([]byte, int) {
	var most []byte
	maxRepetitions := 0
	hist := make(map[string]int)
	for _, block := range Blocks(input, blockSize) {
		k := string(block)
		hist[k]++
		if hist[k] > maxRepetitions {
			most, maxRepetitions = block, hist[k]
		}
	}
	return most, maxRepetitions
}
