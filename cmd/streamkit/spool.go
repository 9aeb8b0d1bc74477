package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/c360/streamkit/errors"
	"github.com/c360/streamkit/exchange"
	"github.com/c360/streamkit/streamcache"
)

type spoolOptions struct {
	threshold  int64
	cipher     string
	directory  string
	bufferSize int
	out        string
}

// spoolReport is what the spool command prints
type spoolReport struct {
	File      string
	Length    int64
	InMemory  bool
	Cipher    string
	Directory string
	Stats     streamcache.Statistics
	Checksum  string
	Verified  bool
}

func newSpoolCmd(root *rootOptions) *cobra.Command {
	opts := &spoolOptions{}

	cmd := &cobra.Command{
		Use:   "spool FILE",
		Short: "Read a file through the stream cache and verify the round trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := spoolFile(root.logger, args[0], opts)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			if !report.Verified {
				return errors.WrapFatal(fmt.Errorf("checksum mismatch for %s", args[0]),
					"spool", "RunE", "verify round trip")
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&opts.threshold, "threshold", streamcache.DefaultSpoolThreshold,
		"Spool to disk above this many bytes, negative disables spooling")
	cmd.Flags().StringVar(&opts.cipher, "cipher", "", "Spool cipher, e.g. AES/CTR/NoPadding")
	cmd.Flags().StringVar(&opts.directory, "dir", "", "Spool directory (default under the system temp dir)")
	cmd.Flags().IntVar(&opts.bufferSize, "buffer-size", streamcache.DefaultBufferSize, "Copy buffer size")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Also write the cached content to this file")

	return cmd
}

// spoolFile converts the file into a stream cache, reads it back twice and
// compares checksums with the source.
func spoolFile(logger *slog.Logger, path string, opts *spoolOptions) (*spoolReport, error) {
	cfg := streamcache.DefaultConfig()
	cfg.SpoolThreshold = opts.threshold
	cfg.SpoolCipher = opts.cipher
	cfg.BufferSize = opts.bufferSize
	if opts.directory != "" {
		cfg.SpoolDirectory = opts.directory
	}

	strategy, err := streamcache.NewStrategy(streamcache.StrategyDeps{Config: cfg, Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := strategy.Start(); err != nil {
		return nil, err
	}
	defer func() { _ = strategy.Stop() }()

	want, err := fileChecksum(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "spool", "spoolFile", "open input")
	}

	ex := exchange.New()
	defer ex.Done()

	cache, err := strategy.Convert(ex, f)
	if err != nil {
		return nil, err
	}

	// WriteTo does not move the cursor, so the sequential read below sees the
	// same content again.
	first := sha256.New()
	dst := io.Writer(first)
	if opts.out != "" {
		out, err := os.Create(opts.out)
		if err != nil {
			return nil, errors.WrapInvalid(err, "spool", "spoolFile", "create output")
		}
		defer out.Close()
		dst = io.MultiWriter(first, out)
	}
	if _, err := cache.WriteTo(dst); err != nil {
		return nil, errors.Wrap(err, "spool", "spoolFile", "write cached content")
	}

	second := sha256.New()
	if _, err := io.Copy(second, io.LimitReader(cache, cache.Length())); err != nil {
		return nil, errors.Wrap(err, "spool", "spoolFile", "read cached content")
	}

	dir, _ := strategy.SpoolDirectory()
	return &spoolReport{
		File:      path,
		Length:    cache.Length(),
		InMemory:  cache.InMemory(),
		Cipher:    opts.cipher,
		Directory: dir,
		Stats:     strategy.Statistics(),
		Checksum:  hex.EncodeToString(want),
		Verified:  bytes.Equal(first.Sum(nil), want) && bytes.Equal(second.Sum(nil), want),
	}, nil
}

func fileChecksum(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "spool", "fileChecksum", "open input")
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, errors.WrapTransient(err, "spool", "fileChecksum", "read input")
	}
	return h.Sum(nil), nil
}

func printReport(w io.Writer, r *spoolReport) {
	cipher := r.Cipher
	if cipher == "" {
		cipher = "none"
	}
	_, _ = fmt.Fprintf(w, "file:           %s\n", r.File)
	_, _ = fmt.Fprintf(w, "length:         %d\n", r.Length)
	_, _ = fmt.Fprintf(w, "in_memory:      %t\n", r.InMemory)
	_, _ = fmt.Fprintf(w, "cipher:         %s\n", cipher)
	_, _ = fmt.Fprintf(w, "spool_dir:      %s\n", r.Directory)
	_, _ = fmt.Fprintf(w, "memory_caches:  %d (%d bytes)\n", r.Stats.MemoryCounter, r.Stats.MemorySize)
	_, _ = fmt.Fprintf(w, "spool_caches:   %d (%d bytes)\n", r.Stats.SpoolCounter, r.Stats.SpoolSize)
	_, _ = fmt.Fprintf(w, "sha256:         %s\n", r.Checksum)
	_, _ = fmt.Fprintf(w, "verified:       %t\n", r.Verified)
}
