package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aivideotool/api/internal/logging"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the asynq worker and the cleanup scheduler",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.cfg.Queue.IsInline() {
		return errors.New("queue.mode=inline runs jobs inside serve; no separate worker is needed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Startup("worker", map[string]string{
		"redis":       rt.cfg.Redis.Addr,
		"output_dir":  rt.cfg.Storage.OutputDir,
		"concurrency": strconv.Itoa(rt.cfg.Queue.Concurrency),
		"cleanup":     rt.cfg.Storage.CleanupCron,
	}, map[string]bool{
		"images":    rt.images.IsConfigured(),
		"r2_mirror": rt.mirror != nil,
	})

	// no websocket subscribers live in this process
	return rt.runWorkerServer(ctx, rt.newMux(nil))
}
