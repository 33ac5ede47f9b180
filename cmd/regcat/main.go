// Command regcat reads registry blobs through registryfs and writes
// them to stdout, optionally decompressing layer blobs on the fly.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/meigma/registryfs"
	"github.com/meigma/registryfs/auth"
)

var (
	username   string
	password   string
	timeout    time.Duration
	caCert     string
	accelerate string
	decompress string
	offset     int64
	length     int64
	verbose    bool

	logger = slog.New(slog.DiscardHandler)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "regcat",
		Short: "Read container registry blobs as files",
		PersistentPreRun: func(*cobra.Command, []string) {
			if verbose {
				logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				}))
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", "", "registry username (prompts for a password when set)")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "registry password (otherwise prompted)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "per-operation timeout")
	rootCmd.PersistentFlags().StringVar(&caCert, "ca-cert", "", "path to an extra CA bundle (PEM)")
	rootCmd.PersistentFlags().StringVar(&accelerate, "accelerate", "", "peer-to-peer accelerator prefix")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	readCmd := &cobra.Command{
		Use:   "read <BLOB_URL>",
		Short: "Read a blob to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  runRead,
	}
	readCmd.Flags().Int64Var(&offset, "offset", 0, "byte offset to start reading at")
	readCmd.Flags().Int64Var(&length, "length", -1, "bytes to read (-1 for the rest of the blob)")
	readCmd.Flags().StringVar(&decompress, "decompress", "", "decompress the stream: gzip or zstd")

	statCmd := &cobra.Command{
		Use:   "stat <BLOB_URL>",
		Short: "Print a blob's size",
		Args:  cobra.ExactArgs(1),
		RunE:  runStat,
	}

	rootCmd.AddCommand(readCmd, statCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newFS() (*registryfs.FS, error) {
	opts := []registryfs.Option{
		registryfs.WithTimeout(timeout),
		registryfs.WithCredentials(promptCredentials),
		registryfs.WithLogger(logger),
	}
	if caCert != "" {
		opts = append(opts, registryfs.WithCACert(caCert))
	}
	if accelerate != "" {
		opts = append(opts, registryfs.WithAccelerateAddress(accelerate))
	}
	return registryfs.New(opts...)
}

// promptCredentials returns the flag-provided credential, asking the
// terminal for a password when only a username was given. The token
// cache rate-limits prompts to one per challenge scope.
func promptCredentials(blobURL string) (auth.Credential, error) {
	if username == "" {
		return auth.Credential{}, nil
	}
	if password == "" {
		fmt.Fprintf(os.Stderr, "Password for %s@%s: ", username, blobURL)
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return auth.Credential{}, fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	}
	return auth.Credential{Username: username, Password: password}, nil
}

func runRead(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	fsys, err := newFS()
	if err != nil {
		return err
	}
	defer fsys.Close()

	f, err := fsys.OpenURL(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	size, err := f.Size()
	if err != nil {
		return err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return err
		}
	}

	var src io.Reader = f
	if length >= 0 {
		src = io.LimitReader(f, length)
	}
	src, closeDecompress, err := wrapDecompress(src)
	if err != nil {
		return err
	}
	defer closeDecompress()

	n, err := io.Copy(os.Stdout, src)
	if err != nil {
		return fmt.Errorf("read blob: %w", err)
	}
	logger.Debug("read blob", "bytes", n, "size", size, "url", args[0])
	return nil
}

func runStat(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	fsys, err := newFS()
	if err != nil {
		return err
	}
	defer fsys.Close()

	f, err := fsys.OpenURL(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	size, err := f.Size()
	if err != nil {
		return err
	}
	fmt.Printf("%d\t%s\n", size, args[0])
	return nil
}

// wrapDecompress wraps src per the --decompress flag. Layer blobs are
// usually gzip or zstd compressed tarballs.
func wrapDecompress(src io.Reader) (io.Reader, func(), error) {
	switch strings.ToLower(decompress) {
	case "":
		return src, func() {}, nil
	case "gzip":
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case "zstd":
		zr, err := zstd.NewReader(src)
		if err != nil {
			return nil, nil, fmt.Errorf("open zstd stream: %w", err)
		}
		return zr, zr.Close, nil
	default:
		return nil, nil, errors.New("unsupported --decompress value, want gzip or zstd")
	}
}
