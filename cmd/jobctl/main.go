package main

import (
	"context"
	"fmt"
	"os"

	"github.com/storyprint/printqueue/internal/config"
	"github.com/storyprint/printqueue/internal/job"
	"github.com/storyprint/printqueue/internal/logging"
	"github.com/storyprint/printqueue/internal/storage/postgres"
	"github.com/storyprint/printqueue/internal/wake"
	"go.uber.org/zap"
)

func main() {
	var notifier *wake.HTTPNotifier

	open := func(ctx context.Context) (job.JobServiceInterface, error) {
		appCfg, err := config.LoadAppFromEnv(ctx)
		if err != nil {
			return nil, err
		}

		// operator output goes to stdout; keep library logs quiet
		logger, err := logging.New("warn", "console")
		if err != nil {
			return nil, err
		}

		db, err := postgres.ConnectDB(ctx, nil, logger)
		if err != nil {
			return nil, err
		}

		var n job.Notifier
		if appCfg.WakeURL != "" {
			notifier = wake.NewHTTPNotifier(appCfg.WakeURL, appCfg.WakeToken, appCfg.WakeTimeout, nil, logger)
			n = notifier
		}
		return job.NewJobService(postgres.NewJobRepository(db), n, zap.NewNop()), nil
	}

	err := NewRootCmd(open).ExecuteContext(context.Background())

	// let a pending wake request finish before exiting
	if notifier != nil {
		notifier.Close()
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
