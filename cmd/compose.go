package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/moodjournal/insight-api/internal/chrono"
	"github.com/moodjournal/insight-api/internal/model"
	"github.com/moodjournal/insight-api/internal/prompt"
	"github.com/moodjournal/insight-api/internal/tone"
)

var composeFile string

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Print the prompt composed for a request file",
	Long:  "Reads an insight request JSON file, validates and normalizes it, and prints the composed prompt and sampling temperature without calling a model.",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(composeFile)
		if err != nil {
			return eris.Wrap(err, "compose: read request")
		}
		return runCompose(cmd.OutOrStdout(), raw, cfg.Model.MaxTemperature)
	},
}

func runCompose(w io.Writer, raw []byte, maxTemp float64) error {
	var req model.InsightRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return eris.Wrap(err, "compose: parse request")
	}
	payload, err := req.DecodePayload()
	if err != nil {
		return eris.Wrap(err, "compose: validate request")
	}
	norm, err := chrono.Normalize(req.Type, payload)
	if err != nil {
		return eris.Wrap(err, "compose: normalize")
	}
	td := tone.Resolve(req.Tone, req.CustomTonePrompt)
	p, err := prompt.Compose(norm, td, maxTemp)
	if err != nil {
		return eris.Wrap(err, "compose: build prompt")
	}

	fmt.Fprintf(w, "# type: %s\n# tone: %s\n# temperature: %.2f\n\n", p.Type, td.ID, p.Temperature)
	fmt.Fprint(w, p.Text)
	return nil
}

func init() {
	composeCmd.Flags().StringVarP(&composeFile, "file", "f", "", "path to an insight request JSON file")
	_ = composeCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(composeCmd)
}
