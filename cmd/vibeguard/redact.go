package main

import (
	"fmt"
	"io"
	"os"

	"github.com/raaihank/vibeguard/internal/privacy"
	"github.com/spf13/cobra"
)

var (
	redactFile     string
	redactJSON     bool
	redactForce    bool
	redactFindings bool
)

var redactCmd = &cobra.Command{
	Use:   "redact [text]",
	Short: "Redact text or a JSON document and print the result",
	Long: `Redact applies the configured rules once and prints the redacted output.
Input comes from the argument, --file, or stdin. Placeholders are bound to a
one-off session, so they cannot be restored later.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg, true)
		if err != nil {
			return err
		}
		defer log.Sync()

		input, err := readInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		enabled := cfg.Enabled || redactForce
		if !enabled {
			fmt.Fprintln(cmd.ErrOrStderr(), "redaction is disabled in config; output is unchanged (use --force)")
		}

		detector := privacy.New(enabled, privacy.ParsePatternConfig(cfg.Patterns), log.WithComponent("privacy"))
		session := privacy.NewSession(privacy.SessionOptions{
			Prefix:      cfg.Prefix(),
			TTL:         cfg.Session.TTLDuration(),
			MaxMappings: cfg.Session.MappingLimit(),
		})

		var output string
		var findings []privacy.Finding
		if redactJSON {
			value, err := privacy.DecodeDocument([]byte(input))
			if err != nil {
				return fmt.Errorf("input is not valid JSON: %w", err)
			}
			value, findings = detector.RedactValue(value, session)
			out, err := privacy.EncodeDocument(value, "  ")
			if err != nil {
				return err
			}
			output = string(out) + "\n"
		} else {
			result := detector.RedactText(input, session)
			output = result.Text
			findings = privacy.Summarize(result.Matches)
		}

		fmt.Fprint(cmd.OutOrStdout(), output)

		if redactFindings {
			for _, f := range findings {
				fmt.Fprintf(cmd.ErrOrStderr(), "%-20s %d\n", f.Category, f.Count)
			}
		}
		return nil
	},
}

func init() {
	redactCmd.Flags().StringVarP(&redactFile, "file", "f", "", "read input from file")
	redactCmd.Flags().BoolVar(&redactJSON, "json", false, "treat input as a JSON document and redact every string in it")
	redactCmd.Flags().BoolVar(&redactForce, "force", false, "redact even when the config leaves redaction disabled")
	redactCmd.Flags().BoolVar(&redactFindings, "findings", false, "print per-category counts to stderr")
}

func readInput(stdin io.Reader, args []string) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case redactFile != "":
		data, err := os.ReadFile(redactFile)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", redactFile, err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
}
