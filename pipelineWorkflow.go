package main

import (
	"context"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/reservations_backend/config"
	"bitbucket.org/mmdatafocus/reservations_backend/extract"
	"bitbucket.org/mmdatafocus/reservations_backend/notify"
	"bitbucket.org/mmdatafocus/reservations_backend/pipeline"
	"bitbucket.org/mmdatafocus/reservations_backend/workflow"
	"github.com/sirupsen/logrus"
)

func buildNotifier(logger *logrus.Logger) notify.Notifier {
	notifier, err := notify.NewTelegramNotifier()
	if err != nil {
		// Alerts are best-effort; a service without a chat channel still
		// reconciles and audits.
		config.LogError(logger, "pipelineWorkflow.go", "buildNotifier", "Telegram notifier disabled", nil, err)
		return nil
	}
	return notifier
}

func buildRunner(logger *logrus.Logger) (*pipeline.Runner, error) {
	store := workflow.NewGormStore(config.GetDB())
	settings := config.GetPipelineSettings()
	engine := workflow.NewEngine(store, logger, settings)

	texts, err := extract.NewTikaExtractor()
	if err != nil {
		return nil, err
	}
	fields, err := extract.NewChatExtractor()
	if err != nil {
		return nil, err
	}

	return pipeline.NewRunner(store, engine, texts, fields, buildNotifier(logger), logger, settings), nil
}

// RunBatch is the process_batch entry point shared by the Pub/Sub push
// handler, the manual endpoint and the CLI.
func RunBatch(ctx context.Context, logger *logrus.Logger, sourceDir string, maxCount int) (pipeline.RunSummary, error) {
	runner, err := buildRunner(logger)
	if err != nil {
		return pipeline.RunSummary{}, err
	}

	if sourceDir == "" {
		sourceDir = os.Getenv("SOURCE_DIR")
	}
	if sourceDir == "" {
		sourceDir = "downloads"
	}

	return runner.ProcessBatch(ctx, pipeline.DirSource{Dir: sourceDir}, maxCount)
}

// RunDigest is the send_digest entry point.
func RunDigest(ctx context.Context, logger *logrus.Logger) error {
	store := workflow.NewGormStore(config.GetDB())
	settings := config.GetPipelineSettings()

	notifier := buildNotifier(logger)
	if notifier == nil {
		config.LogPipelineEvent(logger, "pipelineWorkflow", "digest_skipped", 0, 0, "no notifier configured")
		return nil
	}

	return notify.SendDailyDigest(ctx, logger, store, notifier, time.Now(), settings.Timezone)
}
