package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/realtime-ai/realtime-coach/pkg/audio"
)

var strictFrames bool

var transcodeCmd = &cobra.Command{
	Use:   "transcode <to-ai|to-telephony>",
	Short: "Convert base64 audio between telephony and AI formats",
	Long: `Convert one base64 audio payload.

  to-ai         mu-law 8 kHz  ->  PCM16 LE 16 kHz
  to-telephony  PCM16 LE 16 kHz  ->  mu-law 8 kHz

The payload is read from -f or stdin and written to -o or stdout.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"to-ai", "to-telephony"},
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd)
		if err != nil {
			return err
		}
		payload := strings.TrimSpace(string(raw))

		var convert func(string) (string, error)
		switch args[0] {
		case "to-ai":
			convert = audio.TelephonyToAI
			if strictFrames {
				convert = audio.TelephonyToAIStrict
			}
		case "to-telephony":
			convert = audio.AIToTelephony
			if strictFrames {
				convert = audio.AIToTelephonyStrict
			}
		default:
			return fmt.Errorf("unknown direction %q, want to-ai or to-telephony", args[0])
		}

		out, err := convert(payload)
		if err != nil {
			return err
		}
		return writeOutput(cmd, []byte(out+"\n"))
	},
}

func init() {
	transcodeCmd.Flags().BoolVar(&strictFrames, "strict", false, "reject malformed frames instead of truncating")
}
