package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Hidayat0507/tradebot/internal/config"
	"github.com/Hidayat0507/tradebot/internal/crypto"
)

// keyManager builds the key manager from the crypto section alone so the
// secret commands work without a database.
func keyManager() (*crypto.KeyManager, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgFile, err)
	}
	return crypto.NewKeyManagerFromConfig(cfg.Crypto.Keys, cfg.Crypto.CurrentVersion, cfg.Crypto.Passphrase, cfg.Crypto.Salt)
}

// readLine reads one line from r. Secrets come from stdin so they stay out
// of shell history.
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty input")
	}
	return line, nil
}

func encryptSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt-secret",
		Short: "Encrypt an exchange credential read from stdin for storage on a bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			km, err := keyManager()
			if err != nil {
				return err
			}
			plain, err := readLine(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read secret: %w", err)
			}
			ct, err := km.Encrypt(plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ct)
			return nil
		},
	}
}

func rotateSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-secret",
		Short: "Re-encrypt a stored ciphertext (stdin) under the current key version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			km, err := keyManager()
			if err != nil {
				return err
			}
			ct, err := readLine(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read ciphertext: %w", err)
			}
			out, changed, err := km.Rotate(ct)
			if err != nil {
				return err
			}
			if !changed {
				cmd.PrintErrln("already on the current key version")
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func genKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key",
		Short: "Print a new random base64 master key for crypto.keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), k)
			return nil
		},
	}
}
