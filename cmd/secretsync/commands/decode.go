package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vaultfold/secretsync/internal/config"
	"github.com/vaultfold/secretsync/internal/decode"
)

func NewDecodeCommand(cfg *config.Config) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "decode <name>",
		Short: "Decode a declared secret and print the plaintext",
		Long: `Decode runs only the decode step for one declared secret: fetch the
encrypted source, decrypt it, check the declared content format, trim
surrounding whitespace, and print the result to stdout. No remote
secret store call is made.

Printing plaintext to a terminal is refused unless --force is given;
pipe the output instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force && stdoutIsTerminal() {
				return fmt.Errorf("refusing to print plaintext to a terminal; pipe the output or pass --force")
			}

			ctx := context.Background()
			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}

			def, err := cfg.Find(args[0])
			if err != nil {
				return err
			}
			decrypter, err := newDecrypter(cfg, def)
			if err != nil {
				return err
			}

			decoder := decode.New(rt.blobs, decrypter, cfg.Logger)
			plaintext, err := decoder.Decode(ctx, def)
			if err != nil {
				return err
			}
			defer plaintext.Destroy()

			locked, err := plaintext.Open()
			if err != nil {
				return err
			}
			defer locked.Destroy()

			_, err = os.Stdout.Write(locked.Bytes())
			if err == nil {
				fmt.Fprintln(os.Stdout)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Allow printing plaintext to a terminal")

	return cmd
}

func stdoutIsTerminal() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
