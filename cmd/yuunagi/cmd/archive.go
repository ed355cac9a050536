package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lynzrand/yuunagi/internal/archive"
)

var (
	flagEncrypt bool
	flagDecrypt bool
	flagKey     string
	flagSalt    string
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Create or extract archives of planned sources",
	Long: `Archive writes a tar.gz of the given sources together with a per-file
SHA-256 manifest, optionally wrapped in AES-256-CBC encryption compatible
with "openssl enc -aes-256-cbc -pbkdf2 -md sha256".`,
}

var archiveCreateCmd = &cobra.Command{
	Use:   "create OUTPUT SOURCE...",
	Short: "Archive sources into OUTPUT, writing OUTPUT.sha256 alongside",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := args[0]
		sources := args[1:]

		out, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create archive file: %w", err)
		}
		defer out.Close()

		manifestFile, err := os.Create(output + ".sha256")
		if err != nil {
			return fmt.Errorf("create manifest file: %w", err)
		}
		defer manifestFile.Close()

		var target io.Writer = out
		var closer io.Closer
		if flagEncrypt {
			key, err := secretKey()
			if err != nil {
				return err
			}
			salt, err := secretSalt()
			if err != nil {
				return err
			}
			enc, err := archive.NewEncryptWriter(out, key, salt)
			if err != nil {
				return err
			}
			target = enc
			closer = enc
		}

		if err := archive.Create(cmd.Context(), sources, target,
			archive.ManifestWriter{W: manifestFile}, log); err != nil {
			return err
		}
		if closer != nil {
			if err := closer.Close(); err != nil {
				return fmt.Errorf("finalize encrypted stream: %w", err)
			}
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("close archive file: %w", err)
		}

		color.Green("Archive written to %s.", output)
		return nil
	},
}

var archiveExtractCmd = &cobra.Command{
	Use:   "extract ARCHIVE DEST",
	Short: "Extract an archive produced by \"archive create\"",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open archive file: %w", err)
		}
		defer in.Close()

		var source io.Reader = in
		if flagDecrypt {
			key, err := secretKey()
			if err != nil {
				return err
			}
			source, err = archive.NewDecryptReader(in, key)
			if err != nil {
				return err
			}
		}

		return archive.Extract(cmd.Context(), source, args[1])
	},
}

// secretKey resolves the operator secret from the --key flag or the
// YUUNAGI_KEY environment variable.
func secretKey() ([]byte, error) {
	key := flagKey
	if key == "" {
		key = os.Getenv("YUUNAGI_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("%w: no key given; use --key or YUUNAGI_KEY", archive.ErrMalformedSecret)
	}
	return []byte(key), nil
}

// secretSalt decodes the --salt flag or generates a random salt.
func secretSalt() ([]byte, error) {
	if flagSalt == "" {
		return archive.RandomSalt()
	}
	salt, err := hex.DecodeString(flagSalt)
	if err != nil {
		return nil, fmt.Errorf("%w: salt is not valid hex", archive.ErrMalformedSecret)
	}
	return salt, nil
}

func init() {
	archiveCreateCmd.Flags().BoolVar(&flagEncrypt, "encrypt", false,
		"encrypt the archive with AES-256-CBC")
	archiveCreateCmd.Flags().StringVar(&flagSalt, "salt", "",
		"hex-encoded 8-byte salt (default: random)")
	archiveExtractCmd.Flags().BoolVar(&flagDecrypt, "decrypt", false,
		"decrypt the archive before extracting")
	archiveCmd.PersistentFlags().StringVar(&flagKey, "key", "",
		"encryption key (or set YUUNAGI_KEY)")

	archiveCmd.AddCommand(archiveCreateCmd, archiveExtractCmd)
	rootCmd.AddCommand(archiveCmd)
}
