// Package cryptopals recovers plaintext from block cipher oracles that
// leak a little on every query: an ECB encryption service that appends a
// secret to attacker input, and a CBC service that tells whether a
// ciphertext decrypts to valid PKCS#7 padding. The key is never learned.
package cryptopals

import (
	"context"
	"io"
	"log"
)

// Oracle encrypts attacker chosen bytes together with whatever it keeps
// hidden. Implementations must give the same answer for the same input for
// the lifetime of an attack, and must be safe for concurrent use when
// Config.Workers is above one.
type Oracle interface {
	Encrypt(input []byte) ([]byte, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(input []byte) ([]byte, error)

func (f OracleFunc) Encrypt(input []byte) ([]byte, error) { return f(input) }

// PaddingOracle hands out one CBC encryption of its hidden plaintext and
// then answers padding queries about chosen IV and ciphertext pairs.
type PaddingOracle interface {
	Encrypt() (iv, ciphertext []byte, err error)
	HasValidPadding(iv, ciphertext []byte) (bool, error)
}

// Config tunes an Attacker. The zero value runs sequentially and silently.
type Config struct {
	// Workers bounds concurrent oracle queries. Only queries with no
	// dependency on each other run in parallel.
	Workers int

	Logger *log.Logger

	// Progress, if set, is called after each recovered block.
	Progress func(done, total int)
}

// Attacker runs the attacks with a fixed Config. It keeps no state between
// calls.
type Attacker struct {
	workers  int
	log      *log.Logger
	progress func(done, total int)
}

func NewAttacker(cfg Config) *Attacker {
	a := &Attacker{
		workers:  cfg.Workers,
		log:      cfg.Logger,
		progress: cfg.Progress,
	}
	if a.workers < 1 {
		a.workers = 1
	}
	if a.log == nil {
		a.log = log.New(io.Discard, "", 0)
	}
	if a.progress == nil {
		a.progress = func(int, int) {}
	}
	return a
}

var defaultAttacker = NewAttacker(Config{})

// Probe characterises o with the default configuration.
func Probe(ctx context.Context, o Oracle) (ProbeResult, error) {
	return defaultAttacker.Probe(ctx, o)
}

// RecoverECBSecret decrypts the secret o appends to its input.
func RecoverECBSecret(ctx context.Context, o Oracle, p ProbeResult) ([]byte, error) {
	return defaultAttacker.RecoverECBSecret(ctx, o, p)
}

// AttackCBCPaddingOracle decrypts the ciphertext po hands out. The result
// still carries its PKCS#7 padding.
func AttackCBCPaddingOracle(ctx context.Context, po PaddingOracle) ([]byte, error) {
	return defaultAttacker.AttackCBCPaddingOracle(ctx, po)
}
