package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/reservations_backend/config"
	"github.com/kaptinlin/jsonrepair"
)

const extractionSystemPrompt = "You are a JSON extraction engine for purchase-order documents. " +
	"Return only a valid JSON object matching the requested schema. " +
	"Rules: reservation_number is the order number; edition is 0 for the initial issue and increments per re-send; " +
	"event_date is the event date as dd/mm/yyyy; net_amount is the order value; " +
	"vat_included is true only when the stated amount already contains VAT; " +
	"status is \"cancelled\" when the order is cancelled, otherwise \"future_order\"; " +
	"guest_count may be null when absent. Do not add explanations."

const extractionUserTemplate = `Extract the following JSON structure from the purchase-order text.

Return ONLY the JSON:
{
  "reservation_number": <int>,
  "edition": <int>,
  "event_date": "dd/mm/yyyy",
  "event_time": "HH:MM or empty",
  "guest_count": <int or null>,
  "net_amount": <number>,
  "vat_included": <true/false>,
  "status": "future_order | cancelled",
  "contact_name": "str",
  "contact_email": "str",
  "description": "str"
}

DOCUMENT TEXT:
%s`

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// ChatExtractor calls an OpenAI-compatible chat-completions endpoint to
// pull candidate fields out of document text. Output is untrusted; the
// validator decides what survives.
type ChatExtractor struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	retries int
}

func NewChatExtractor() (*ChatExtractor, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is empty")
	}
	baseURL := strings.TrimSpace(os.Getenv("OPENAI_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &ChatExtractor{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: 60 * time.Second},
		retries: 3,
	}, nil
}

func (e *ChatExtractor) ExtractFields(ctx context.Context, text string) (CandidateFields, error) {
	raw, tokens, err := e.chatCompletion(ctx, []chatMessage{
		{Role: "system", Content: extractionSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(extractionUserTemplate, strings.TrimSpace(text))},
	})
	if err != nil {
		return CandidateFields{}, err
	}

	var fields CandidateFields
	if err := decodeModelJSON(raw, &fields); err != nil {
		return CandidateFields{}, fmt.Errorf("model returned invalid JSON: %w", err)
	}

	logger := config.GetLogger()
	config.LogPipelineEvent(logger, "extract", "fields_extracted", 0, 0,
		fmt.Sprintf("tokens=%d", tokens))
	return fields, nil
}

func (e *ChatExtractor) chatCompletion(ctx context.Context, messages []chatMessage) (string, int, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       e.model,
		Messages:    messages,
		Temperature: 0,
	})
	if err != nil {
		return "", 0, err
	}

	delay := 2 * time.Second
	var lastErr error
	for attempt := 1; attempt <= e.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return "", 0, err
		}
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.http.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				lastErr = fmt.Errorf("chat api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			} else if resp.StatusCode != http.StatusOK {
				return "", 0, fmt.Errorf("chat api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			} else {
				var parsed chatResponse
				if err := json.Unmarshal(body, &parsed); err != nil {
					return "", 0, err
				}
				if len(parsed.Choices) == 0 {
					return "", 0, errors.New("chat api returned no choices")
				}
				return parsed.Choices[0].Message.Content, parsed.Usage.TotalTokens, nil
			}
		}

		if attempt < e.retries {
			select {
			case <-ctx.Done():
				return "", 0, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return "", 0, lastErr
}

// decodeModelJSON handles the usual chat-model sloppiness: code fences and
// slightly broken JSON, repaired via jsonrepair before giving up.
func decodeModelJSON(raw string, out *CandidateFields) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	if err := dec.Decode(out); err == nil {
		return nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(cleaned)
	if repairErr != nil {
		return fmt.Errorf("repair failed: %w", repairErr)
	}
	dec = json.NewDecoder(strings.NewReader(repaired))
	dec.UseNumber()
	return dec.Decode(out)
}
