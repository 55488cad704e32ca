package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// PipelineSettings holds the fixed knobs of the reconciliation pipeline.
// It is resolved from env once at startup and validated before anything
// touches the store; a bad value fails the process instead of producing
// half-configured records.
type PipelineSettings struct {
	// VatRate is the fixed VAT rate applied when a candidate's net amount
	// excludes VAT. Expressed as a fraction (0.17 = 17%).
	VatRate decimal.Decimal `validate:"required"`
	// Timezone anchors the "today"/"tomorrow" digest window.
	Timezone *time.Location `validate:"required"`
	// MaxDocsPerRun bounds one batch; 0 means unlimited.
	MaxDocsPerRun int `validate:"gte=0"`
	// ActorTag is stamped on audit entries written by this service.
	ActorTag string `validate:"required"`
}

var (
	settings     *PipelineSettings
	settingsOnce = false
)

// GetPipelineSettings resolves settings on first use and panics on invalid
// configuration; the trigger surface calls this during startup, so a bad
// deployment never reaches the first document.
func GetPipelineSettings() *PipelineSettings {
	if settingsOnce {
		return settings
	}
	s, err := loadPipelineSettings()
	if err != nil {
		panic(fmt.Sprintf("invalid pipeline configuration: %v", err))
	}
	settings = s
	settingsOnce = true
	return settings
}

func loadPipelineSettings() (*PipelineSettings, error) {
	vatRate := decimal.NewFromFloat(0.17)
	if v := strings.TrimSpace(os.Getenv("VAT_RATE")); v != "" {
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("VAT_RATE %q: %w", v, err)
		}
		if parsed.IsNegative() || parsed.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("VAT_RATE %q out of range [0,1)", v)
		}
		vatRate = parsed
	}

	tzName := strings.TrimSpace(os.Getenv("RESERVATION_TZ"))
	if tzName == "" {
		tzName = "Asia/Jerusalem"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("RESERVATION_TZ %q: %w", tzName, err)
	}

	maxDocs := 20
	if v := strings.TrimSpace(os.Getenv("PIPELINE_MAX_DOCS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("PIPELINE_MAX_DOCS %q must be a non-negative integer", v)
		}
		maxDocs = n
	}

	actor := strings.TrimSpace(os.Getenv("PIPELINE_ACTOR_TAG"))
	if actor == "" {
		actor = "pipeline"
	}

	s := &PipelineSettings{
		VatRate:       vatRate,
		Timezone:      loc,
		MaxDocsPerRun: maxDocs,
		ActorTag:      actor,
	}
	if err := validator.New().Struct(s); err != nil {
		return nil, err
	}
	return s, nil
}
