package cryptopals

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kgeorgiou/cryptopals/internal/modes"
)

// AttackCBCPaddingOracle decrypts the ciphertext po hands out using only
// padding queries. Each block is attacked on its own with a forged IV:
// once an IV makes the block decrypt to valid padding of length n, the
// block's raw decryption is known at the last n positions. XORing the raw
// decryption with the real previous block gives the plaintext.
//
// The result keeps its PKCS#7 padding.
func (a *Attacker) AttackCBCPaddingOracle(ctx context.Context, po PaddingOracle) ([]byte, error) {
	iv, ct, err := po.Encrypt()
	if err != nil {
		return nil, fmt.Errorf("padding oracle encrypt: %w", err)
	}
	bs := len(iv)
	if bs < 2 || bs > 255 {
		return nil, fmt.Errorf("%w: %d byte IV", ErrInvalidCiphertext, bs)
	}
	if len(ct) == 0 || len(ct)%bs != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d byte blocks",
			ErrInvalidCiphertext, len(ct), bs)
	}

	n := len(ct) / bs
	a.log.Printf("decrypting %d blocks", n)
	pt := make([]byte, len(ct))

	var mu sync.Mutex
	done := 0

	// A block only depends on its own ciphertext and the one before it.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for k := 0; k < n; k++ {
		g.Go(func() error {
			previous := iv
			if k > 0 {
				previous = ct[(k-1)*bs : k*bs]
			}
			block, err := a.recoverCBCBlock(gctx, po, previous, ct[k*bs:(k+1)*bs])
			if err != nil {
				return fmt.Errorf("block %d: %w", k, err)
			}
			copy(pt[k*bs:], block)

			mu.Lock()
			done++
			a.progress(done, n)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	a.log.Printf("recovered %d bytes", len(pt))
	return pt, nil
}

// recoverCBCBlock works from the last byte to the first. zeroizing[i] holds
// the raw decryption of current at every solved position i, so XORing it
// with a padding value pins those positions to that value.
//
// A position with no candidate left sends the search back up to retry the
// next candidate of the position after it. Correct PKCS#7 validation never
// needs this: pinned trailing bytes leave exactly one candidate per
// position, and the last position is disambiguated in findPaddingByte.
func (a *Attacker) recoverCBCBlock(ctx context.Context, po PaddingOracle, previous, current []byte) ([]byte, error) {
	bs := len(current)
	zeroizing := make([]byte, bs)
	next := make([]int, bs)
	trial := make([]byte, bs)

	for pos := bs - 1; pos >= 0; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := findPaddingByte(po, current, zeroizing, trial, pos, next[pos])
		if err != nil {
			return nil, err
		}
		if c < 0 {
			if pos == bs-1 {
				return nil, violation(InvariantPaddingCandidate,
					"no IV byte gives valid padding at position %d", pos)
			}
			next[pos] = 0
			pos++
			a.log.Printf("no candidate at byte %d, retrying byte %d", pos-1, pos)
			continue
		}
		zeroizing[pos] = byte(c) ^ byte(bs-pos)
		next[pos] = c + 1
		pos--
	}
	return modes.XOR(zeroizing, previous), nil
}

// findPaddingByte returns the first IV byte from 'from' on that makes
// position pos and everything after it decrypt to valid padding, or -1.
//
// At the last position a hit may come from the plaintext already ending in
// 0x02 0x02 (or longer padding). Flipping the second to last byte breaks
// such padding but leaves a single 0x01 valid.
func findPaddingByte(po PaddingOracle, current, zeroizing, trial []byte, pos, from int) (int, error) {
	bs := len(current)
	pad := byte(bs - pos)

	for c := from; c < 256; c++ {
		for k := range trial {
			switch {
			case k < pos:
				trial[k] = 0
			case k == pos:
				trial[k] = byte(c)
			default:
				trial[k] = zeroizing[k] ^ pad
			}
		}
		ok, err := po.HasValidPadding(trial, current)
		if err != nil {
			return -1, fmt.Errorf("padding query: %w", err)
		}
		if !ok {
			continue
		}
		if pos == bs-1 {
			trial[pos-1] ^= 0x80
			ok, err = po.HasValidPadding(trial, current)
			if err != nil {
				return -1, fmt.Errorf("padding query: %w", err)
			}
			if !ok {
				continue
			}
		}
		return c, nil
	}
	return -1, nil
}
