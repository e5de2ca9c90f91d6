package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/moodjournal/insight-api/internal/extract"
	"github.com/moodjournal/insight-api/internal/prompt"
	"github.com/moodjournal/insight-api/internal/sanitize"
)

var extractFile string

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run a raw model payload through extraction and sanitizing",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			raw []byte
			err error
		)
		if extractFile == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(extractFile)
		}
		if err != nil {
			return eris.Wrap(err, "extract: read payload")
		}
		return runExtract(cmd.OutOrStdout(), raw)
	},
}

func runExtract(w io.Writer, raw []byte) error {
	res := extract.Extract(raw)
	text := sanitize.Sanitize(res.Text)

	fmt.Fprintf(w, "# source: %s\n", res.Source)
	for _, v := range prompt.Violations(text) {
		fmt.Fprintf(w, "# violation: %s\n", v)
	}
	if err := sanitize.Validate(text); err != nil {
		return err
	}
	fmt.Fprintln(w, text)
	return nil
}

func init() {
	extractCmd.Flags().StringVarP(&extractFile, "file", "f", "-", "payload file, or - for stdin")
	rootCmd.AddCommand(extractCmd)
}
