package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/realtime-ai/realtime-coach/pkg/engine"
)

var recoverOutput bool

var validateCmd = &cobra.Command{
	Use:   "validate <input|output>",
	Short: "Check a payload against the coaching contract",
	Long: `Check an EngineInput or EngineResponse payload against the strict
coaching contract. Every violation is listed. On success the payload is
printed with defaults applied.

With --recover the output payload is first extracted from free-form model
text (code fences, surrounding prose, truncation).`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"input", "output"},
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd)
		if err != nil {
			return err
		}

		var v any
		switch args[0] {
		case "input":
			v, err = engine.ValidateInput(raw)
		case "output":
			if recoverOutput {
				raw, err = engine.ExtractJSON(string(raw))
				if err != nil {
					return err
				}
			}
			v, err = engine.ValidateOutput(raw)
		default:
			return fmt.Errorf("unknown payload kind %q, want input or output", args[0])
		}

		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			for _, issue := range verr.Issues {
				fmt.Fprintln(cmd.ErrOrStderr(), issue.String())
			}
			return fmt.Errorf("%d contract violation(s)", len(verr.Issues))
		}
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		return writeOutput(cmd, append(out, '\n'))
	},
}

func init() {
	validateCmd.Flags().BoolVar(&recoverOutput, "recover", false, "extract the JSON object from model text before validating output")
}
