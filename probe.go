package cryptopals

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/kgeorgiou/cryptopals/internal/modes"
)

const (
	// maxProbeInput is the longest input DetectBlockSize sends. It has to
	// push the output across at least two block boundaries.
	maxProbeInput = 64

	// ecbProbeBlocks identical blocks are sent to look for repetition;
	// ecbThreshold of them have to come back identical.
	ecbProbeBlocks = 10
	ecbThreshold   = 5
)

// prefixFillers are tried in order until two of them agree on the prefix
// length. A filler equal to the last prefix bytes or the first secret bytes
// skews its own measurement, and no byte can be both at once.
var prefixFillers = []byte{0x00, 0xff, 0x5a, 0xa5, 0x3c}

// ProbeResult describes an ECB oracle well enough to recover its secret.
type ProbeResult struct {
	BlockSize int
	IsECB     bool

	// PrefixLength is the number of hidden bytes in front of the attacker
	// input.
	PrefixLength int

	// RecoverableBlocks counts the blocks from the first block boundary
	// after the prefix to the end of the shortest aligned encryption,
	// padding included.
	RecoverableBlocks int

	// SecretLength is the length of the hidden suffix.
	SecretLength int
}

// Probe finds the block size, checks for ECB and measures the hidden
// prefix and suffix. An oracle without ECB determinism fails with
// ErrNotECB.
func (a *Attacker) Probe(ctx context.Context, o Oracle) (ProbeResult, error) {
	blockSize, err := DetectBlockSize(ctx, o)
	if err != nil {
		return ProbeResult{}, err
	}
	a.log.Printf("block size: %d", blockSize)

	isECB, err := DetectECB(ctx, o, blockSize)
	if err != nil {
		return ProbeResult{}, err
	}
	if !isECB {
		return ProbeResult{}, ErrNotECB
	}
	a.log.Printf("detected ECB")

	prefixLength, blocks, err := DetectPrefixLength(ctx, o, blockSize)
	if err != nil {
		return ProbeResult{}, err
	}
	secretLength, err := detectSecretLength(ctx, o, blockSize, prefixLength)
	if err != nil {
		return ProbeResult{}, err
	}
	a.log.Printf("prefix length: %d, secret length: %d, plaintext blocks to decrypt: %d",
		prefixLength, secretLength, blocks)

	return ProbeResult{
		BlockSize:         blockSize,
		IsECB:             true,
		PrefixLength:      prefixLength,
		RecoverableBlocks: blocks,
		SecretLength:      secretLength,
	}, nil
}

// DetectBlockSize encrypts inputs of 0 to maxProbeInput bytes and returns
// the step between the distinct output lengths. Every step has to be the
// same.
func DetectBlockSize(ctx context.Context, o Oracle) (int, error) {
	seen := make(map[int]bool)
	var lengths []int
	for i := 0; i <= maxProbeInput; i++ {
		ct, err := encrypt(ctx, o, make([]byte, i))
		if err != nil {
			return 0, err
		}
		if !seen[len(ct)] {
			seen[len(ct)] = true
			lengths = append(lengths, len(ct))
		}
	}
	sort.Ints(lengths)

	if len(lengths) < 2 {
		return 0, violation(InvariantUniformBlockSize,
			"output length %v did not change for inputs up to %d bytes", lengths, maxProbeInput)
	}
	blockSize := lengths[1] - lengths[0]
	for i := 2; i < len(lengths); i++ {
		if gap := lengths[i] - lengths[i-1]; gap != blockSize {
			return 0, violation(InvariantUniformBlockSize,
				"output lengths %v step by %d and %d", lengths, blockSize, gap)
		}
	}
	return blockSize, nil
}

// DetectECB reports whether encrypting ten identical blocks yields at
// least five identical ciphertext blocks.
func DetectECB(ctx context.Context, o Oracle, blockSize int) (bool, error) {
	if blockSize < 1 {
		return false, fmt.Errorf("%w: block size %d", ErrInvalidProbe, blockSize)
	}
	ct, err := encrypt(ctx, o, make([]byte, ecbProbeBlocks*blockSize))
	if err != nil {
		return false, err
	}
	return modes.MaxRepetitions(ct, blockSize) >= ecbThreshold, nil
}

// DetectPrefixLength measures how many hidden bytes the oracle puts in
// front of the input, and how many blocks follow the first block boundary
// after them when the input only fills up the prefix's last block.
func DetectPrefixLength(ctx context.Context, o Oracle, blockSize int) (prefixLength, blocks int, err error) {
	if blockSize < 1 {
		return 0, 0, fmt.Errorf("%w: block size %d", ErrInvalidProbe, blockSize)
	}

	votes := make(map[int]int)
	var estimates []int
	found := false
	for _, filler := range prefixFillers {
		estimate, err := measurePrefix(ctx, o, blockSize, filler)
		if err != nil {
			return 0, 0, err
		}
		estimates = append(estimates, estimate)
		if estimate < 0 {
			continue
		}
		votes[estimate]++
		if votes[estimate] == 2 {
			prefixLength, found = estimate, true
			break
		}
	}
	if !found {
		return 0, 0, violation(InvariantPrefixAgreement,
			"fillers %x gave prefix lengths %v", prefixFillers, estimates)
	}

	align := alignment(prefixLength, blockSize)
	ct, err := encrypt(ctx, o, make([]byte, align))
	if err != nil {
		return 0, 0, err
	}
	blocks = len(ct)/blockSize - (prefixLength+align)/blockSize
	return prefixLength, blocks, nil
}

// measurePrefix finds the smallest number of extra filler bytes that adds
// one more filler block, which is the number needed to fill the prefix's
// last block. The first filler block then starts right after that filler.
func measurePrefix(ctx context.Context, o Oracle, blockSize int, filler byte) (int, error) {
	firsts := make([]int, blockSize)
	counts := make([]int, blockSize)
	for i := range counts {
		first, count, err := fillerRun(ctx, o, blockSize, filler, ecbProbeBlocks*blockSize+i)
		if err != nil {
			return 0, err
		}
		firsts[i], counts[i] = first, count
	}

	align := 0
	for i := 1; i < blockSize; i++ {
		if counts[i] > counts[i-1] {
			align = i
			break
		}
	}
	if firsts[align] < 0 {
		return -1, nil
	}
	return firsts[align]*blockSize - align, nil
}

// fillerRun encrypts n filler bytes and n complementary bytes, and returns
// the index of the first block of the most repeated ciphertext block along
// with its count. Only blocks that change with the filler byte count, so
// repeated blocks in the prefix or the secret are never mistaken for the
// filler.
func fillerRun(ctx context.Context, o Oracle, blockSize int, filler byte, n int) (first, count int, err error) {
	ct, err := encrypt(ctx, o, bytes.Repeat([]byte{filler}, n))
	if err != nil {
		return 0, 0, err
	}
	other, err := encrypt(ctx, o, bytes.Repeat([]byte{^filler}, n))
	if err != nil {
		return 0, 0, err
	}
	if len(ct) != len(other) {
		return 0, 0, violation(InvariantUniformBlockSize,
			"%d byte inputs encrypted to %d and %d bytes", n, len(ct), len(other))
	}

	a, b := modes.Blocks(ct, blockSize), modes.Blocks(other, blockSize)
	counts := make(map[string]int)
	firsts := make(map[string]int)
	for i := range a {
		if bytes.Equal(a[i], b[i]) {
			continue
		}
		key := string(a[i])
		if _, ok := counts[key]; !ok {
			firsts[key] = i
		}
		counts[key]++
	}

	first = -1
	for key, c := range counts {
		if c > count || (c == count && firsts[key] < first) {
			first, count = firsts[key], c
		}
	}
	return first, count, nil
}

// detectSecretLength grows the input past the aligned filler until the
// output gains a block. At that point prefix, input and secret exactly fill
// the shorter output.
func detectSecretLength(ctx context.Context, o Oracle, blockSize, prefixLength int) (int, error) {
	align := alignment(prefixLength, blockSize)
	base, err := encrypt(ctx, o, make([]byte, align))
	if err != nil {
		return 0, err
	}
	for n := 1; n <= blockSize; n++ {
		ct, err := encrypt(ctx, o, make([]byte, align+n))
		if err != nil {
			return 0, err
		}
		if len(ct) > len(base) {
			return len(base) - prefixLength - align - n, nil
		}
	}
	return 0, violation(InvariantUniformBlockSize,
		"output did not grow within %d bytes past %d", blockSize, align)
}

// alignment is the number of bytes needed to fill the prefix's last block.
func alignment(prefixLength, blockSize int) int {
	return (blockSize - prefixLength%blockSize) % blockSize
}

func encrypt(ctx context.Context, o Oracle, input []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ct, err := o.Encrypt(input)
	if err != nil {
		return nil, fmt.Errorf("encrypting %d bytes: %w", len(input), err)
	}
	return ct, nil
}
