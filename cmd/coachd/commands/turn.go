package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/realtime-ai/realtime-coach/pkg/coach"
	"github.com/realtime-ai/realtime-coach/pkg/engine"
	"github.com/realtime-ai/realtime-coach/pkg/llm"
)

var replyFile string

var turnCmd = &cobra.Command{
	Use:   "turn",
	Short: "Run one coaching turn from an EngineInput JSON file",
	Long: `Run one coaching turn from an EngineInput JSON file.

The input is validated first; an invalid input is reported and no model
call is made. With --reply the model is replaced by the contents of the
given file, which is useful for testing output recovery offline.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd)
		if err != nil {
			return err
		}
		in, err := engine.ValidateInput(raw)
		if err != nil {
			return err
		}

		var completer llm.Completer
		if replyFile != "" {
			reply, err := os.ReadFile(replyFile)
			if err != nil {
				return fmt.Errorf("failed to read reply %s: %w", replyFile, err)
			}
			completer = llm.NewStaticCompleter(string(reply))
		}
		runner, err := newRunner(completer)
		if err != nil {
			return err
		}

		res, err := runner.Turn(cmd.Context(), in.CallID, in)
		if err != nil {
			return err
		}
		if res.UsedFallback {
			log.Warn("turn used the safe fallback", "error", res.FallbackCause)
		}

		out, err := json.MarshalIndent(coach.NewTurnReply(res), "", "  ")
		if err != nil {
			return err
		}
		return writeOutput(cmd, append(out, '\n'))
	},
}

func init() {
	turnCmd.Flags().StringVar(&replyFile, "reply", "", "use this file as the model's reply instead of calling the LLM")
}

// newRunner builds a coaching runner. A nil completer means the configured
// OpenAI model.
func newRunner(completer llm.Completer) (*coach.Runner, error) {
	cfg := globalConfig
	if completer == nil {
		if err := cfg.RequireLLM(); err != nil {
			return nil, err
		}
		oc, err := llm.NewOpenAICompleter(llm.OpenAIConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			MaxRetries:  -1,
		})
		if err != nil {
			return nil, err
		}
		completer = oc
	}

	prompt, err := cfg.SystemPrompt()
	if err != nil {
		return nil, err
	}
	return coach.NewRunner(completer, coach.Config{
		SystemPrompt: prompt,
		LLMTimeout:   cfg.LLM.Timeout,
		IdleTimeout:  cfg.Coach.IdleTimeout,
	}, log), nil
}
