package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/comic-archiver/internal/app"
	"github.com/JakeFAU/comic-archiver/internal/comics"
	"github.com/JakeFAU/comic-archiver/internal/pipeline"
	progresssinks "github.com/JakeFAU/comic-archiver/internal/progress/sinks"
)

// progressOutput is where the progress bar goes; nil disables it.
var progressOutput = func() io.Writer {
	if progresssinks.IsTerminal(os.Stderr) {
		return os.Stderr
	}
	return nil
}

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Archive every strip in the date range",
		Long: `Walks the date range, resolving each strip through the web archive,
extracting its tags and transcript, and saving the image. Dates already
archived are skipped, so an interrupted run can simply be started again.`,
		RunE: runFetchCommand,
	}
	cmd.Flags().String("start", "", "first date to archive (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "last date to archive (YYYY-MM-DD)")
	cmd.Flags().Int("concurrency", 0, "number of concurrent workers")
	return cmd
}

func runFetchCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, runErr := appInstance.Fetch(ctx, app.FetchOptions{Progress: progressOutput()})
	if summary.Total > 0 {
		fmt.Fprint(cmd.OutOrStdout(), renderSummary(summary))
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			appInstance.Logger().Warn("fetch interrupted; rerun to resume", zap.Error(runErr))
		}
		return fmt.Errorf("fetch: %w", runErr)
	}
	appInstance.Logger().Info("fetch command finished", zap.String("run_id", summary.RunID))
	return nil
}

func renderSummary(summary pipeline.Summary) string {
	rows := make([][]string, 0, len(comics.ItemOutcomes)+1)
	for _, outcome := range comics.ItemOutcomes {
		rows = append(rows, []string{string(outcome), strconv.Itoa(summary.Count(outcome))})
	}
	rows = append(rows, []string{"total", strconv.Itoa(summary.Total)})
	return renderTable([]string{"Outcome", "Dates"}, rows, []columnAlignment{alignLeft, alignRight}) +
		fmt.Sprintf("run %s finished in %s\n", summary.RunID, summary.Elapsed.Round(time.Millisecond))
}
