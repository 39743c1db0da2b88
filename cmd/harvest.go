package cmd

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/deck-harvester/internal/deck"
	"github.com/JakeFAU/deck-harvester/internal/deckfile"
	"github.com/JakeFAU/deck-harvester/internal/harvest"
)

type harvestOptions struct {
	inputFile string
	format    string
	outDir    string
}

// newHarvestCmd creates the 'harvest' subcommand, which runs one batch over
// URL arguments and an optional input file.
func newHarvestCmd() *cobra.Command {
	var opts harvestOptions
	cmd := &cobra.Command{
		Use:   "harvest [url...]",
		Short: "Harvests decks from URLs",
		Long: `Runs one batch over the given URLs and the lines of --input (one URL per
line, blank lines and lines starting with # ignored). Each new deck is written
in --format, to --out when set or to stdout otherwise, followed by a summary
table on stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.inputFile, "input", "i", "", "file with one input per line")
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(deckfile.FormatArena), "export format: arena, forge, plain, json or qr")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "directory to write one file per deck (default stdout)")
	return cmd
}

func runHarvest(cmd *cobra.Command, args []string, opts harvestOptions) error {
	format, err := deckfile.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	if format == deckfile.FormatQR && opts.outDir == "" {
		return errors.New("qr export needs --out")
	}

	inputs := append([]string(nil), args...)
	if opts.inputFile != "" {
		lines, err := readInputFile(opts.inputFile)
		if err != nil {
			return err
		}
		inputs = append(inputs, lines...)
	}
	if len(inputs) == 0 {
		return errors.New("no inputs: pass URLs as arguments or use --input")
	}

	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	report, runErr := appInstance.Harvester.Run(cmd.Context(), inputs)
	if opts.outDir != "" {
		paths, err := writeDeckFiles(opts.outDir, report.Decks(), format)
		if err != nil {
			return err
		}
		appInstance.Logger.Info("decks written", zap.String("dir", opts.outDir), zap.Int("files", len(paths)))
	} else {
		if err := writeDecks(cmd.OutOrStdout(), report.Decks(), format); err != nil {
			return err
		}
	}
	renderSummary(cmd.ErrOrStderr(), report)
	return runErr
}

func readInputFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	var inputs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		inputs = append(inputs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}
	return inputs, nil
}

func writeDecks(w io.Writer, decks []deck.Deck, format deckfile.Format) error {
	for i, d := range decks {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := deckfile.Write(w, d, format); err != nil {
			return fmt.Errorf("export %q: %w", d.Name, err)
		}
	}
	return nil
}

func writeDeckFiles(dir string, decks []deck.Deck, format deckfile.Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	used := make(map[string]struct{}, len(decks))
	paths := make([]string, 0, len(decks))
	for _, d := range decks {
		stem := fileStem(d)
		name := stem
		for n := 2; ; n++ {
			if _, taken := used[name]; !taken {
				break
			}
			name = fmt.Sprintf("%s-%d", stem, n)
		}
		used[name] = struct{}{}
		var buf bytes.Buffer
		if err := deckfile.Write(&buf, d, format); err != nil {
			return paths, fmt.Errorf("export %q: %w", d.Name, err)
		}
		path := filepath.Join(dir, name+format.Extension())
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

const maxStem = 64

func fileStem(d deck.Deck) string {
	stem := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(d.Name), "-"), "-")
	if len(stem) > maxStem {
		stem = strings.TrimRight(stem[:maxStem], "-")
	}
	if stem == "" {
		stem = "deck"
		if d.ID != "" {
			stem += "-" + d.ID
		}
	}
	return stem
}

func renderSummary(w io.Writer, report harvest.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Input", "Status", "Adapter", "Decks", "Warnings", "Error"})
	for _, o := range report.Outcomes {
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		t.AppendRow(table.Row{abbreviate(o.Input, 60), o.Status, o.Adapter, len(o.Decks), o.Warnings(), abbreviate(errText, 60)})
	}
	counts := report.Counts()
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d inputs", len(report.Outcomes)),
		fmt.Sprintf("%d ok", counts[harvest.StatusOK]),
		"",
		len(report.Decks()),
		"",
		"",
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func abbreviate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
