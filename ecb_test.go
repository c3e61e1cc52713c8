package cryptopals

import (
	"bytes"
	"context"
	"crypto/aes"
	"encoding/base64"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgeorgiou/cryptopals/internal/keys"
	"github.com/kgeorgiou/cryptopals/internal/oracle"
)

const rollin = `Um9sbGluJyBpbiBteSA1LjAKV2l0aCBteSByYWctdG9wIGRvd24gc28gbXkg
aGFpciBjYW4gYmxvdwpUaGUgZ2lybGllcyBvbiBzdGFuZGJ5IHdhdmluZyBq
dXN0IHRvIHNheSBoaQpEaWQgeW91IHN0b3A/IE5vLCBJIGp1c3QgZHJvdmUg
YnkK`

func rollinSecret(t *testing.T) []byte {
	t.Helper()
	secret, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(rollin, "\n", ""))
	require.NoError(t, err)
	return secret
}

func probeAndRecover(t *testing.T, a *Attacker, o Oracle) []byte {
	t.Helper()
	ctx := context.Background()
	p, err := a.Probe(ctx, o)
	require.NoError(t, err)
	secret, err := a.RecoverECBSecret(ctx, o, p)
	require.NoError(t, err)
	return secret
}

func TestRecoverECBSecretYellowSubmarine(t *testing.T) {
	block, err := aes.NewCipher([]byte("YELLOW SUBMARINE"))
	require.NoError(t, err)
	suffix := randomBytes(t, 48)
	o := oracle.NewECB(block, nil, suffix)

	secret := probeAndRecover(t, NewAttacker(Config{}), o)
	assert.Equal(t, suffix, secret)
}

func TestRecoverECBSecretRollin(t *testing.T) {
	want := rollinSecret(t)
	for prefixLen := 0; prefixLen < aes.BlockSize; prefixLen++ {
		o, err := oracle.NewRandomECB(prefixLen, want)
		require.NoError(t, err)

		got := probeAndRecover(t, NewAttacker(Config{}), o)
		assert.Equal(t, string(want), string(got), "prefix of %d bytes", prefixLen)
	}
}

func TestRecoverECBSecretLengths(t *testing.T) {
	// 0 to 5 blocks, around the block boundaries where the padding
	// byte moves into a new block.
	for _, n := range []int{0, 1, 15, 16, 17, 31, 32, 33, 48, 79, 80} {
		want := randomBytes(t, n)
		o := newECBOracle(t, "aes", randomBytes(t, n%7), want)

		got := probeAndRecover(t, NewAttacker(Config{}), o)
		assert.Equal(t, want, got, "secret of %d bytes", n)
	}
}

func TestRecoverECBSecretPaddingLikeBytes(t *testing.T) {
	// 0x01 inside the secret is data, not the end of it.
	want := []byte("\x01\x01a\x01\x02\x02\x01\x10\x10\x10\x10\x10\x10\x10\x10\x10\x10\x10\x01")
	o := newECBOracle(t, "aes", []byte("pre"), want)

	got := probeAndRecover(t, NewAttacker(Config{}), o)
	assert.Equal(t, want, got)
}

func TestRecoverECBSecretRepeatedBlocks(t *testing.T) {
	want := bytes.Repeat([]byte("A"), 192)
	for _, prefixLen := range []int{0, 5, 40} {
		o := newECBOracle(t, "aes", randomBytes(t, prefixLen), want)

		got := probeAndRecover(t, NewAttacker(Config{}), o)
		assert.Equal(t, want, got, "prefix of %d bytes", prefixLen)
	}
}

func TestRecoverECBSecretBlowfish(t *testing.T) {
	want := []byte("eight byte blocks work the same way")
	o := newECBOracle(t, "blowfish", randomBytes(t, 5), want)

	p, err := Probe(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, 8, p.BlockSize)
	assert.Equal(t, 5, p.PrefixLength)

	got, err := RecoverECBSecret(context.Background(), o, p)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRecoverECBSecretWorkers(t *testing.T) {
	want := rollinSecret(t)
	o, err := oracle.NewRandomECB(11, want)
	require.NoError(t, err)

	var calls []int
	a := NewAttacker(Config{
		Workers: 8,
		Progress: func(done, total int) {
			calls = append(calls, done)
			assert.Equal(t, 9, total)
		},
	})
	got := probeAndRecover(t, a, o)
	assert.Equal(t, want, got)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, calls)
}

func TestRecoverECBSecretLogs(t *testing.T) {
	var buf bytes.Buffer
	a := NewAttacker(Config{Logger: log.New(&buf, "", 0)})
	o := newECBOracle(t, "aes", nil, []byte("secret"))

	got := probeAndRecover(t, a, o)
	assert.Equal(t, "secret", string(got))
	assert.Contains(t, buf.String(), "block size: 16")
	assert.Contains(t, buf.String(), "detected ECB")
	assert.Contains(t, buf.String(), "prefix length: 0")
}

func TestRecoverECBSecretRefusesNonECB(t *testing.T) {
	var queries atomic.Int64
	o := OracleFunc(func(input []byte) ([]byte, error) {
		queries.Add(1)
		return make([]byte, 32), nil
	})
	_, err := RecoverECBSecret(context.Background(), o, ProbeResult{
		BlockSize:         16,
		IsECB:             false,
		RecoverableBlocks: 2,
		SecretLength:      20,
	})
	assert.ErrorIs(t, err, ErrNotECB)
	assert.Zero(t, queries.Load())
}

func TestRecoverECBSecretInvalidProbe(t *testing.T) {
	o := newECBOracle(t, "aes", nil, []byte("secret"))
	tests := []struct {
		name  string
		probe ProbeResult
	}{
		{"zero block size", ProbeResult{IsECB: true, RecoverableBlocks: 1}},
		{"negative prefix", ProbeResult{BlockSize: 16, IsECB: true, PrefixLength: -1, RecoverableBlocks: 1}},
		{"no blocks", ProbeResult{BlockSize: 16, IsECB: true}},
		{"secret too long", ProbeResult{BlockSize: 16, IsECB: true, RecoverableBlocks: 1, SecretLength: 16}},
		{"secret too short", ProbeResult{BlockSize: 16, IsECB: true, RecoverableBlocks: 3, SecretLength: 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RecoverECBSecret(context.Background(), o, tt.probe)
			assert.ErrorIs(t, err, ErrInvalidProbe)
		})
	}
}

func TestRecoverECBSecretWrongSecretLength(t *testing.T) {
	// A probe claiming the secret ends early makes a real secret byte
	// land on the padding boundary.
	o := newECBOracle(t, "aes", nil, []byte("0123456789"))
	p := ProbeResult{BlockSize: 16, IsECB: true, RecoverableBlocks: 1, SecretLength: 4}

	_, err := RecoverECBSecret(context.Background(), o, p)
	assert.ErrorIs(t, err, &ModelViolation{Invariant: InvariantPaddingBoundary})
}

func TestRecoverECBSecretNoCandidate(t *testing.T) {
	// An oracle that changes its key every call breaks the ECB invariant
	// between the candidate queries and the target query.
	secret := []byte("secret")
	o := OracleFunc(func(input []byte) ([]byte, error) {
		block, err := keys.NewRandomBlock("aes")
		if err != nil {
			return nil, err
		}
		return oracle.NewECB(block, nil, secret).Encrypt(input)
	})
	p := ProbeResult{BlockSize: 16, IsECB: true, RecoverableBlocks: 1, SecretLength: len(secret)}

	_, err := RecoverECBSecret(context.Background(), o, p)
	var mv *ModelViolation
	require.True(t, errors.As(err, &mv), "got %v", err)
	assert.Equal(t, InvariantCandidateMatch, mv.Invariant)
}

func TestRecoverECBSecretCollision(t *testing.T) {
	// Ignoring the input makes every guess encrypt to the same block.
	o := OracleFunc(func(input []byte) ([]byte, error) {
		return make([]byte, 32), nil
	})
	p := ProbeResult{BlockSize: 16, IsECB: true, RecoverableBlocks: 1, SecretLength: 3}

	_, err := RecoverECBSecret(context.Background(), o, p)
	assert.ErrorIs(t, err, &ModelViolation{Invariant: InvariantCandidateCollision})
}

func TestRecoverECBSecretOracleError(t *testing.T) {
	broken := errors.New("service unavailable")
	o := OracleFunc(func(input []byte) ([]byte, error) {
		return nil, broken
	})
	p := ProbeResult{BlockSize: 16, IsECB: true, RecoverableBlocks: 1, SecretLength: 3}

	_, err := NewAttacker(Config{Workers: 4}).RecoverECBSecret(context.Background(), o, p)
	assert.ErrorIs(t, err, broken)
}

func TestRecoverECBSecretCanceled(t *testing.T) {
	o := newECBOracle(t, "aes", nil, rollinSecret(t))
	p, err := Probe(context.Background(), o)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	a := NewAttacker(Config{Progress: func(done, total int) {
		if done == 2 {
			cancel()
		}
	}})
	secret, err := a.RecoverECBSecret(ctx, o, p)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, secret)
}

func TestRotateLeft(t *testing.T) {
	b := []byte{1, 2, 3, 4, 5}
	rotateLeft(b, 1)
	assert.Equal(t, []byte{2, 3, 4, 5, 1}, b)
	rotateLeft(b, 3)
	assert.Equal(t, []byte{5, 1, 2, 3, 4}, b)
	rotateLeft(b, 5)
	assert.Equal(t, []byte{5, 1, 2, 3, 4}, b)
}
