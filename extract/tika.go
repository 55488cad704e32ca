package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// TikaExtractor pulls plain text out of PDF content through an Apache Tika
// server. The parser itself is an external collaborator; this is only the
// wire call.
type TikaExtractor struct {
	baseURL string
	http    *http.Client
}

func NewTikaExtractor() (*TikaExtractor, error) {
	baseURL := strings.TrimSpace(os.Getenv("TIKA_SERVER_URL"))
	if baseURL == "" {
		return nil, errors.New("TIKA_SERVER_URL is empty")
	}
	return &TikaExtractor{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (t *TikaExtractor) ExtractText(ctx context.Context, content []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.baseURL+"/tika", bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Accept", "text/plain")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("tika error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", errors.New("tika returned empty text")
	}
	return text, nil
}
