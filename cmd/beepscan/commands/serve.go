package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/beep-sonar/logging"
	"github.com/RyanBlaney/beep-sonar/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the beep detection HTTP API.

Endpoints (also served under /api):
  GET  /health
  POST /detect-frequency-beeps
  POST /detect-template-matches
  POST /detect-cross-correlation-beeps
  POST /generate-report

Audio is uploaded as the multipart field "file"; parameters are form or
query values.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr      string
	serveTemplate  string
	serveReportDir string
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to BEEP_ADDR or :8000)")
	serveCmd.Flags().StringVarP(&serveTemplate, "template", "t", "", "default reference beep")
	serveCmd.Flags().StringVar(&serveReportDir, "report-dir", "", "directory for generated reports")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	flagOverride(cmd, "addr", serveAddr, &settings.Server.Addr)
	flagOverride(cmd, "template", serveTemplate, &settings.Server.DefaultTemplatePath)
	flagOverride(cmd, "report-dir", serveReportDir, &settings.Server.ReportDir)

	srv, err := server.New(settings, logging.GetGlobalLogger())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}
