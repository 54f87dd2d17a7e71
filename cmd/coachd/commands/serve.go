package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/realtime-ai/realtime-coach/pkg/coach"
	"github.com/realtime-ai/realtime-coach/pkg/twilio"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve Twilio media streams and the coaching turn API",
	Long: `Serve Twilio media streams and the coaching turn API.

Routes:
  /media                          Twilio Media Streams WebSocket (loopback sink)
  /twiml                          TwiML webhook answering with <Connect><Stream>
  /health                         health check
  POST /v1/calls/{callID}/turns   run a coaching turn
  GET  /v1/calls/{callID}/memory  current coaching memory
  DELETE /v1/calls/{callID}       end a call`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := globalConfig
		if err := cfg.RequireServer(); err != nil {
			return err
		}
		runner, err := newRunner(nil)
		if err != nil {
			return err
		}

		srv := twilio.NewServer(twilio.ServerConfig{
			Address:         cfg.Server.ListenAddr,
			StreamURL:       cfg.Server.StreamURL,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, twilio.LoopbackFactory, log)
		srv.Mount("/v1/", coach.Handler(runner))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go runner.RunIdleSweeper(ctx)

		log.Info("coachd serving", "addr", cfg.Server.ListenAddr, "model", cfg.LLM.Model)
		return srv.ListenAndServe(ctx)
	},
}
