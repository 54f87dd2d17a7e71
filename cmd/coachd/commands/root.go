package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/realtime-ai/realtime-coach/pkg/config"
	"github.com/realtime-ai/realtime-coach/pkg/logger"
	"github.com/realtime-ai/realtime-coach/pkg/trace"
)

var (
	// Global flags
	cfgFile    string
	inputFile  string
	outputFile string
	logMode    string

	// Set up by PersistentPreRunE.
	globalConfig *config.Config
	log          *logger.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "coachd",
	Short: "Real-time sales coaching core",
	Long: `coachd runs the real-time sales coaching core.

It bridges Twilio Media Streams (mu-law 8 kHz) to AI audio (PCM16 16 kHz),
runs coaching turns against an LLM under a strict input/output contract,
and tracks per-call coaching memory.

Configuration is layered: defaults, then --config YAML, then .env, then
environment variables (OPENAI_API_KEY, COACH_MODEL, COACH_LLM_TIMEOUT, ...).

Examples:
  # Serve Twilio streams and the turn API
  coachd serve --config coachd.yaml

  # Run one turn offline with a canned model reply
  coachd turn -f input.json --reply reply.txt

  # Check a payload against the contract
  coachd validate input -f input.json
`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	defer teardown()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&inputFile, "file", "f", "", "input file (default: stdin)")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "log mode: development or production (overrides LOG_MODE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(turnCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(transcodeCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logMode != "" {
		cfg.Log.Mode = logMode
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	globalConfig = cfg

	log, err = logger.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	if err := trace.Initialize(cmd.Context(), cfg.TracingConfig()); err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	return nil
}

// teardown runs after every command, including failed ones.
func teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := trace.Shutdown(ctx); err != nil && log != nil {
		log.Warn("trace shutdown failed", "error", err)
	}
	if log != nil {
		log.Sync()
	}
}

// readInput reads the -f file, or stdin when none is given.
func readInput(cmd *cobra.Command) ([]byte, error) {
	if inputFile == "" || inputFile == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(inputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", inputFile, err)
	}
	return data, nil
}

// writeOutput writes to the -o file, or stdout when none is given.
func writeOutput(cmd *cobra.Command, data []byte) error {
	if outputFile == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(outputFile, data, 0o644)
}
