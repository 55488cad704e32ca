package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/reservations_backend/config"
	"bitbucket.org/mmdatafocus/reservations_backend/models"
	"bitbucket.org/mmdatafocus/reservations_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("reservations-pipeline")

// PubSubPushMessage is the push-delivery envelope Cloud Scheduler wraps
// around a TriggerMessage.
type PubSubPushMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func main() {
	logger := config.GetLogger()

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"POST", "GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "X-Trigger-Key"},
		MaxAge:       12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/pubsub/trigger", pubsubTriggerHandler(logger))

	manual := r.Group("/pipeline", triggerKeyAuth(logger))
	manual.POST("/run", runBatchHandler(logger))
	manual.POST("/digest", digestHandler(logger))

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// Listen first; Cloud Run wants the port open before slow dependencies.
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithField("module", "server").Fatal("http server: " + err.Error())
		}
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedis(context.Background())
	config.GetPipelineSettings()

	if err := config.GetDB().AutoMigrate(&models.Reservation{}, &models.AuditEntry{}); err != nil {
		config.LogError(logger, "server.go", "main", "Running migrations", nil, err)
	}

	logger.WithFields(logrus.Fields{"module": "server", "port": port}).Info("pipeline service ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		config.LogError(logger, "server.go", "main", "Graceful shutdown", nil, err)
	}
}

// triggerKeyAuth guards the manual endpoints with a bcrypt-hashed shared
// key; the scheduled path authenticates at the Pub/Sub layer instead.
func triggerKeyAuth(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := os.Getenv("TRIGGER_KEY_HASH")
		if hash == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "manual triggers not configured"})
			return
		}
		if err := utils.CompareTriggerKey(hash, c.GetHeader("X-Trigger-Key")); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid trigger key"})
			return
		}
		c.Next()
	}
}

func pubsubTriggerHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var envelope PubSubPushMessage
		if err := c.ShouldBindJSON(&envelope); err != nil {
			config.LogError(logger, "server.go", "pubsubTriggerHandler", "Unmarshal push envelope", nil, err)
			// Malformed request: ack/drop to avoid infinite retries.
			c.Status(http.StatusNoContent)
			return
		}

		var msg config.TriggerMessage
		if err := utils.UnmarshalFromJSON(envelope.Message.Data, &msg); err != nil {
			config.LogError(logger, "server.go", "pubsubTriggerHandler", "Unmarshal trigger message", envelope.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}

		correlationID := msg.CorrelationId
		if correlationID == "" {
			correlationID = envelope.Message.ID
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationID)
		ctx, span := tracer.Start(ctx, "pubsub."+msg.Action)
		defer span.End()

		switch msg.Action {
		case config.TriggerActionProcessBatch:
			summary, err := RunBatch(ctx, logger, msg.SourceDir, msg.MaxCount)
			if err != nil {
				// Non-2xx tells Pub/Sub to retry.
				c.Status(http.StatusInternalServerError)
				return
			}
			if summary.NeedsRerun() {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.Status(http.StatusNoContent)
		case config.TriggerActionSendDigest:
			if err := RunDigest(ctx, logger); err != nil {
				c.Status(http.StatusInternalServerError)
				return
			}
			c.Status(http.StatusNoContent)
		default:
			config.LogError(logger, "server.go", "pubsubTriggerHandler", "Unknown trigger action", msg, errors.New("unknown action"))
			c.Status(http.StatusNoContent)
		}
	}
}

func runBatchHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			SourceDir string `json:"source_dir"`
			MaxCount  int    `json:"max_count"`
		}
		// Body is optional; defaults come from the pipeline settings.
		_ = c.ShouldBindJSON(&req)

		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), uuid.NewString())
		ctx = utils.SetActorInContext(ctx, "manual")
		summary, err := RunBatch(ctx, logger, req.SourceDir, req.MaxCount)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func digestHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), uuid.NewString())
		ctx = utils.SetActorInContext(ctx, "manual")
		if err := RunDigest(ctx, logger); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "sent"})
	}
}
