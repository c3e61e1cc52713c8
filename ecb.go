package cryptopals

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RecoverECBSecret decrypts the secret o appends to its input one byte at a
// time. ECB maps equal blocks to equal ciphertext, so a block holding
// blockSize-1 known bytes and one unknown secret byte can be matched
// against the 256 blocks that end in each possible byte.
func (a *Attacker) RecoverECBSecret(ctx context.Context, o Oracle, p ProbeResult) ([]byte, error) {
	if !p.IsECB {
		return nil, ErrNotECB
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	r := &ecbRecovery{
		o:         o,
		workers:   a.workers,
		blockSize: p.BlockSize,
		insert:    alignment(p.PrefixLength, p.BlockSize),
		secretLen: p.SecretLength,
	}
	r.offset = (p.PrefixLength + r.insert) / p.BlockSize

	a.log.Printf("decrypting %d blocks", p.RecoverableBlocks)
	secret := make([]byte, 0, p.RecoverableBlocks*p.BlockSize)
	previous := make([]byte, p.BlockSize)
	for block := 0; block < p.RecoverableBlocks; block++ {
		decrypted, done, err := r.recoverBlock(ctx, block, previous)
		if err != nil {
			return nil, err
		}
		secret = append(secret, decrypted...)
		a.progress(block+1, p.RecoverableBlocks)
		if done {
			break
		}
		previous = decrypted
	}
	a.log.Printf("recovered %d bytes", len(secret))
	return secret, nil
}

func (p ProbeResult) validate() error {
	switch {
	case p.BlockSize < 2 || p.BlockSize > 255:
		return fmt.Errorf("%w: block size %d", ErrInvalidProbe, p.BlockSize)
	case p.PrefixLength < 0:
		return fmt.Errorf("%w: prefix length %d", ErrInvalidProbe, p.PrefixLength)
	case p.RecoverableBlocks < 1:
		return fmt.Errorf("%w: %d recoverable blocks", ErrInvalidProbe, p.RecoverableBlocks)
	case p.SecretLength < (p.RecoverableBlocks-1)*p.BlockSize,
		p.SecretLength >= p.RecoverableBlocks*p.BlockSize:
		return fmt.Errorf("%w: secret length %d does not fit %d blocks",
			ErrInvalidProbe, p.SecretLength, p.RecoverableBlocks)
	}
	return nil
}

type ecbRecovery struct {
	o         Oracle
	workers   int
	blockSize int

	// insert filler bytes complete the prefix's last block; offset is the
	// index of the first block after it.
	insert int
	offset int

	secretLen int
}

// recoverBlock decrypts secret block number block given the block before
// it (zeros for the first). It stops early, reporting done, when it
// reaches the padding byte just past the secret.
func (r *ecbRecovery) recoverBlock(ctx context.Context, block int, previous []byte) ([]byte, bool, error) {
	bs := r.blockSize
	window := append([]byte{}, previous...)
	target := (block + r.offset) * bs

	for byteOffset := 1; byteOffset <= bs; byteOffset++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		rotateLeft(window, 1)

		candidates, err := r.candidates(ctx, window)
		if err != nil {
			return nil, false, err
		}

		// One byte short of the window: the next unknown secret byte
		// slides into the last position of the target block.
		input := make([]byte, r.insert+bs-byteOffset)
		copy(input[r.insert:], window)
		ct, err := encrypt(ctx, r.o, input)
		if err != nil {
			return nil, false, err
		}
		if len(ct) < target+bs {
			return nil, false, violation(InvariantCandidateMatch,
				"ciphertext of %d bytes has no block at %d", len(ct), target)
		}

		pos := block*bs + byteOffset - 1
		b, ok := candidates[string(ct[target:target+bs])]
		if !ok {
			return nil, false, violation(InvariantCandidateMatch, "no candidate matches secret byte %d", pos)
		}

		if pos == r.secretLen {
			if b != 0x01 {
				return nil, false, violation(InvariantPaddingBoundary,
					"byte %d past the secret decrypted to %#02x, want 0x01", pos, b)
			}
			rotateLeft(window, bs-byteOffset)
			return window[:byteOffset-1], true, nil
		}
		window[bs-1] = b
	}
	return window, false, nil
}

// candidates encrypts the window with each possible last byte and maps the
// block it lands in back to that byte.
func (r *ecbRecovery) candidates(ctx context.Context, window []byte) (map[string]byte, error) {
	bs := r.blockSize
	start := r.offset * bs
	blocks := make([][]byte, 256)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range blocks {
		g.Go(func() error {
			input := make([]byte, r.insert+bs)
			copy(input[r.insert:], window)
			input[len(input)-1] = byte(i)

			ct, err := encrypt(gctx, r.o, input)
			if err != nil {
				return err
			}
			if len(ct) < start+bs {
				return violation(InvariantCandidateMatch,
					"ciphertext of %d bytes has no block at %d", len(ct), start)
			}
			blocks[i] = ct[start : start+bs]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := make(map[string]byte, len(blocks))
	for i, block := range blocks {
		if j, ok := m[string(block)]; ok {
			return nil, violation(InvariantCandidateCollision,
				"guesses %#02x and %#02x encrypt to the same block", j, i)
		}
		m[string(block)] = byte(i)
	}
	return m, nil
}

func rotateLeft(b []byte, n int) {
	n %= len(b)
	head := append([]byte{}, b[:n]...)
	copy(b, b[n:])
	copy(b[len(b)-n:], head)
}
