package modes

import (
	"bytes"
	"errors"
)

// ErrInvalidPadding is returned by Unpad when the input does not end in
// well-formed PKCS#7 padding.
var ErrInvalidPadding = errors.New("invalid PKCS#7 padding")

// Pad appends n bytes of value n so that len(input)+n is a multiple of k,
// with 1 <= n <= k. The input is never modified in place.
func Pad(input []byte, k int) []byte {
	if !(k > 1) {
		panic("k must be greater than one - RFC5652")
	}
	if !(k < 256) {
		panic("this padding method is well defined if and only if k is less than 256 - RFC5652")
	}

	paddingOctet := k - len(input)%k
	res := make([]byte, len(input), len(input)+paddingOctet)
	copy(res, input)
	return append(res, bytes.Repeat([]byte{byte(paddingOctet)}, paddingOctet)...)
}

// Unpad strips PKCS#7 padding. Only the padding itself is validated; the
// caller decides whether the length has to be block aligned.
func Unpad(input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, ErrInvalidPadding
	}
	paddingOctet := input[len(input)-1]
	n := int(paddingOctet)
	if n == 0 || n > len(input) {
		return nil, ErrInvalidPadding
	}
	for _, b := range input[len(input)-n:] {
		if b != paddingOctet {
			return nil, ErrInvalidPadding
		}
	}
	return input[:len(input)-n], nil
}

// ValidPadding reports whether input ends in well-formed PKCS#7 padding.
func ValidPadding(input []byte) bool {
	_, err := Unpad(input)
	return err == nil
}
