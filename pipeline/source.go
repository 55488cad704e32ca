package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Document is one raw purchase-order file with its source metadata.
type Document struct {
	Filename   string
	Content    []byte
	Sender     string
	ReceivedAt time.Time
}

// Source yields documents for one batch in discovery order. The mailbox
// implementation lives with the mail collaborator; this package ships the
// directory source used for local re-runs.
type Source interface {
	Fetch(ctx context.Context, maxCount int) ([]Document, error)
}

// DirSource reads *.pdf files from a local directory, sorted by name so
// runs are deterministic.
type DirSource struct {
	Dir string
}

func (s DirSource) Fetch(ctx context.Context, maxCount int) ([]Document, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	if maxCount > 0 && len(names) > maxCount {
		names = names[:maxCount]
	}

	docs := make([]Document, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := os.ReadFile(filepath.Join(s.Dir, name))
		if err != nil {
			return nil, err
		}
		info, _ := os.Stat(filepath.Join(s.Dir, name))
		receivedAt := time.Now()
		if info != nil {
			receivedAt = info.ModTime()
		}
		docs = append(docs, Document{
			Filename:   name,
			Content:    content,
			ReceivedAt: receivedAt,
		})
	}
	return docs, nil
}
