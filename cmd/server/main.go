package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aivideotool",
	Short: "AI video tool API server and background workers",
	Long: `aivideotool serves the HTTP API and runs the background jobs that compose
b-roll videos and generate scene images.

Examples:
  aivideotool serve                 # API plus an embedded worker
  aivideotool serve --worker=false  # API only, jobs run on separate workers
  aivideotool worker                # asynq worker and cleanup scheduler
  aivideotool doctor                # check ffmpeg, redis and optional services`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd, doctorCmd, tokenCmd)
}

// @title          AI Video Tool API
// @version        1.0
// @description    Uploads, b-roll composition and scene image generation with pollable background jobs.
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Enter your bearer token in the format **Bearer &lt;token&gt;**
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
