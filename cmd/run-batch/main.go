package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/reservations_backend/config"
	"bitbucket.org/mmdatafocus/reservations_backend/extract"
	"bitbucket.org/mmdatafocus/reservations_backend/models"
	"bitbucket.org/mmdatafocus/reservations_backend/notify"
	"bitbucket.org/mmdatafocus/reservations_backend/pipeline"
	"bitbucket.org/mmdatafocus/reservations_backend/utils"
	"bitbucket.org/mmdatafocus/reservations_backend/workflow"
	"github.com/google/uuid"
)

func main() {
	dir := flag.String("dir", "downloads", "Directory of purchase-order PDFs to process.")
	max := flag.Int("max", 0, "Limit documents processed this run (0 = configured default).")
	digestOnly := flag.Bool("digest-only", false, "Skip document processing; send the daily digest only.")
	enqueue := flag.Bool("enqueue", false, "Publish a trigger to Pub/Sub instead of running locally.")
	flag.Parse()

	logger := config.GetLogger()
	correlationID := uuid.NewString()
	ctx := utils.SetCorrelationIdInContext(context.Background(), correlationID)

	if *enqueue {
		action := config.TriggerActionProcessBatch
		if *digestOnly {
			action = config.TriggerActionSendDigest
		}
		err := config.PublishTrigger(config.TriggerMessage{
			Action:        action,
			MaxCount:      *max,
			SourceDir:     *dir,
			CorrelationId: correlationID,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to publish trigger: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("trigger published")
		return
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedis(ctx)
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	if err := db.AutoMigrate(&models.Reservation{}, &models.AuditEntry{}); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}

	store := workflow.NewGormStore(db)
	settings := config.GetPipelineSettings()

	var notifier notify.Notifier
	if n, err := notify.NewTelegramNotifier(); err == nil {
		notifier = n
	} else {
		fmt.Fprintf(os.Stderr, "alerts disabled: %v\n", err)
	}

	if *digestOnly {
		if notifier == nil {
			fmt.Fprintln(os.Stderr, "digest requires a configured notifier")
			os.Exit(1)
		}
		if err := notify.SendDailyDigest(ctx, logger, store, notifier, time.Now(), settings.Timezone); err != nil {
			fmt.Fprintf(os.Stderr, "digest failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	texts, err := extract.NewTikaExtractor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "text extractor: %v\n", err)
		os.Exit(1)
	}
	fields, err := extract.NewChatExtractor()
	if err != nil {
		fmt.Fprintf(os.Stderr, "field extractor: %v\n", err)
		os.Exit(1)
	}

	engine := workflow.NewEngine(store, logger, settings)
	runner := pipeline.NewRunner(store, engine, texts, fields, notifier, logger, settings)

	summary, err := runner.ProcessBatch(ctx, pipeline.DirSource{Dir: *dir}, *max)
	if err != nil {
		fmt.Fprintf(os.Stderr, "batch failed: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
	if summary.NeedsRerun() {
		fmt.Fprintln(os.Stderr, "some documents were deferred; re-run after the store recovers")
		os.Exit(1)
	}
}
