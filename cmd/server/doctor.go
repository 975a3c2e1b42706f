package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/aivideotool/api/internal/handler"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that ffmpeg, ffprobe, Redis and optional services are usable",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	required, optional := rt.checks()
	out := cmd.OutOrStdout()

	failed := report(ctx, out, required, "FAIL")
	report(ctx, out, optional, "SKIP")

	if failed > 0 {
		return fmt.Errorf("%d required check(s) failed", failed)
	}
	fmt.Fprintln(out, "all required checks passed")
	return nil
}

func report(ctx context.Context, out io.Writer, checks map[string]handler.Check, failLabel string) int {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := 0
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			fmt.Fprintf(out, "%-4s %-8s %v\n", failLabel, name, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "%-4s %-8s\n", "OK", name)
	}
	return failed
}
