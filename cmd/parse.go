package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/deck-harvester/internal/deckfile"
	"github.com/JakeFAU/deck-harvester/internal/harvest"
)

// newParseCmd creates the 'parse' subcommand: pasted deck text on stdin in,
// one normalized deck out.
func newParseCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Normalizes a pasted deck list read from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := deckfile.ParseFormat(format)
			if err != nil {
				return err
			}
			text, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			if strings.TrimSpace(string(text)) == "" {
				return errors.New("no deck text on stdin")
			}

			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			out, err := appInstance.Harvester.Process(cmd.Context(), string(text))
			if err != nil {
				return err
			}
			if out.Status != harvest.StatusOK || len(out.Decks) == 0 {
				if out.Err != nil {
					return fmt.Errorf("parse failed: %w", out.Err)
				}
				return fmt.Errorf("parse failed: status %s", out.Status)
			}
			for _, w := range out.Decks[0].Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s %s\n", w.Kind, w.Subject)
			}
			return deckfile.Write(cmd.OutOrStdout(), out.Decks[0], f)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(deckfile.FormatArena), "export format: arena, forge, plain, json or qr")
	return cmd
}
