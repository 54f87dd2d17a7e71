// Command coachd runs the real-time sales coaching core.
//
// Usage:
//
//	coachd [flags] <command> [args]
//
// Commands:
//
//	serve      - Twilio media stream bridge and coaching turn API
//	turn       - run one coaching turn from an EngineInput file
//	validate   - check an EngineInput or EngineResponse against the contract
//	transcode  - convert base64 audio between telephony and AI formats
package main

import (
	"fmt"
	"os"

	"github.com/realtime-ai/realtime-coach/cmd/coachd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
