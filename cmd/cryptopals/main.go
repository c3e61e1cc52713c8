// Command cryptopals runs the oracle attacks against local oracles built
// from flags and prints what they recover.
//
//	cryptopals ecb [-cipher aes] [-prefix 5] [-secret base64] [-seed hex] [-workers n] [-v]
//	cryptopals cbc [-cipher aes] [-secret base64] [-seed hex] [-workers n] [-v]
package main

import (
	"context"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/kgeorgiou/cryptopals"
	"github.com/kgeorgiou/cryptopals/internal/keys"
	"github.com/kgeorgiou/cryptopals/internal/modes"
	"github.com/kgeorgiou/cryptopals/internal/oracle"
)

const defaultSecret = "Um9sbGluJyBpbiBteSA1LjAKV2l0aCBteSByYWctdG9wIGRvd24gc28gbXkg" +
	"aGFpciBjYW4gYmxvdwpUaGUgZ2lybGllcyBvbiBzdGFuZGJ5IHdhdmluZyBq" +
	"dXN0IHRvIHNheSBoaQpEaWQgeW91IHN0b3A/IE5vLCBJIGp1c3QgZHJvdmUg" +
	"YnkK"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: cryptopals ecb|cbc [flags]")
	}
	switch args[0] {
	case "ecb":
		return runECB(ctx, args[1:], stdout, stderr)
	case "cbc":
		return runCBC(ctx, args[1:], stdout, stderr)
	default:
		return fmt.Errorf("unknown command %q, want ecb or cbc", args[0])
	}
}

type options struct {
	cipher   string
	seed     string
	secret   string
	workers  int
	verbose  bool
	progress bool
}

func (o *options) register(fs *flag.FlagSet) {
	fs.StringVar(&o.cipher, "cipher", "aes", "block cipher: "+strings.Join(keys.Ciphers(), ", "))
	fs.StringVar(&o.seed, "seed", "", "hex seed for the oracle key and prefix (random if empty)")
	fs.StringVar(&o.secret, "secret", defaultSecret, "base64 secret the oracle hides")
	fs.IntVar(&o.workers, "workers", 1, "concurrent oracle queries")
	fs.BoolVar(&o.verbose, "v", false, "log attack steps to stderr")
	fs.BoolVar(&o.progress, "progress", false, "show a progress bar on stderr")
}

func (o *options) secretBytes() ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(o.secret)
	if err != nil {
		return nil, fmt.Errorf("decoding -secret: %w", err)
	}
	return secret, nil
}

// material returns n bytes for the given use, derived from -seed when set.
func (o *options) material(use string, n int) ([]byte, error) {
	if o.seed == "" {
		return keys.Generate(n)
	}
	seed, err := hex.DecodeString(o.seed)
	if err != nil {
		return nil, fmt.Errorf("decoding -seed: %w", err)
	}
	return keys.Derive(seed, use, n)
}

func (o *options) block() (cipher.Block, error) {
	key, err := o.material("key", keys.KeySize)
	if err != nil {
		return nil, err
	}
	return keys.NewBlock(o.cipher, key)
}

func (o *options) attacker(stderr io.Writer) *cryptopals.Attacker {
	cfg := cryptopals.Config{Workers: o.workers}
	logger := log.New(io.Discard, "", 0)
	if o.verbose {
		logger = log.New(stderr, "", log.LstdFlags)
		cfg.Logger = logger
	}
	if o.progress {
		cfg.Progress = reportProgress(func(total int) progressBar {
			return progressbar.NewOptions(total,
				progressbar.OptionSetWriter(stderr),
				progressbar.OptionSetDescription("blocks"),
				progressbar.OptionShowCount(),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(stderr) }),
			)
		}, logger)
	}
	return cryptopals.NewAttacker(cfg)
}

type progressBar interface {
	Set(n int) error
	Finish() error
}

// reportProgress draws block progress on a bar created at the first call.
// A broken bar never stops the attack; its errors go to logger.
func reportProgress(newBar func(total int) progressBar, logger *log.Logger) func(done, total int) {
	var bar progressBar
	return func(done, total int) {
		if bar == nil {
			bar = newBar(total)
		}
		if err := bar.Set(done); err != nil {
			logger.Printf("progress bar: %v", err)
		}
		if done == total {
			if err := bar.Finish(); err != nil {
				logger.Printf("progress bar: %v", err)
			}
		}
	}
}

func runECB(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options
	var prefixLen int
	fs := flag.NewFlagSet("ecb", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts.register(fs)
	fs.IntVar(&prefixLen, "prefix", 0, "length of the random prefix the oracle adds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if prefixLen < 0 {
		return fmt.Errorf("-prefix must not be negative, got %d", prefixLen)
	}

	secret, err := opts.secretBytes()
	if err != nil {
		return err
	}
	block, err := opts.block()
	if err != nil {
		return err
	}
	prefix, err := opts.material("prefix", prefixLen)
	if err != nil {
		return err
	}
	o := oracle.NewECB(block, prefix, secret)

	a := opts.attacker(stderr)
	p, err := a.Probe(ctx, o)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	recovered, err := a.RecoverECBSecret(ctx, o, p)
	if err != nil {
		return fmt.Errorf("ecb attack: %w", err)
	}
	_, err = stdout.Write(recovered)
	return err
}

func runCBC(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options
	fs := flag.NewFlagSet("cbc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := opts.secretBytes()
	if err != nil {
		return err
	}
	block, err := opts.block()
	if err != nil {
		return err
	}
	po := oracle.NewPadding(block, secret)

	padded, err := opts.attacker(stderr).AttackCBCPaddingOracle(ctx, po)
	if err != nil {
		return fmt.Errorf("padding oracle attack: %w", err)
	}
	recovered, err := modes.Unpad(padded)
	if err != nil {
		return fmt.Errorf("recovered plaintext: %w", err)
	}
	_, err = stdout.Write(recovered)
	return err
}
