package ingest

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mudler/xlog"
)

// Inserter is the engine operation the importer feeds.
type Inserter interface {
	Insert(ctx context.Context, text string) error
}

type Importer struct {
	engine Inserter
	client *http.Client
}

func NewImporter(engine Inserter, client *http.Client) *Importer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Importer{engine: engine, client: client}
}

// ImportFiles inserts every readable file under root, one document per file.
// It returns the number of documents inserted.
func (im *Importer) ImportFiles(ctx context.Context, root string) (int, error) {
	xlog.Info("importing local docs", "path", root)

	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsTextFile(path) {
			return nil
		}

		content, err := readDocument(path)
		if err != nil {
			return err
		}
		if content == "" {
			return nil
		}

		if err := im.engine.Insert(ctx, withHeader(filenameToTitle(path), path, content)); err != nil {
			return fmt.Errorf("insert %s: %w", path, err)
		}
		count++
		xlog.Info("document imported", "path", path, "len", len(content))
		return nil
	})
	return count, err
}

func readDocument(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err := ExtractTextFromPDF(path)
		if err != nil {
			return "", fmt.Errorf("read pdf %s: %w", path, err)
		}
		return sanitize(text), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return sanitize(ExtractMainText(string(data))), nil
	default:
		return sanitize(string(data)), nil
	}
}

// ImportURL crawls same-host pages breadth first from baseURL, inserting the
// text of each page. Pages that fail to download are logged and skipped.
func (im *Importer) ImportURL(ctx context.Context, baseURL string, maxPages int) (int, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return 0, fmt.Errorf("invalid base url %q", baseURL)
	}
	xlog.Info("crawling", "base", baseURL, "maxPages", maxPages)

	visited := make(map[string]bool)
	queue := []string{base.String()}
	pages, count := 0, 0

	for len(queue) > 0 && pages < maxPages {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		pages++

		body, err := im.fetch(ctx, current)
		if err != nil {
			xlog.Warn("skipping page", "url", current, "error", err)
			continue
		}

		if text := sanitize(ExtractMainText(body)); text != "" {
			if err := im.engine.Insert(ctx, withHeader(urlToTitle(current, base), current, text)); err != nil {
				return count, fmt.Errorf("insert %s: %w", current, err)
			}
			count++
			xlog.Info("page imported", "url", current, "len", len(text))
		}

		for _, link := range ExtractLinks(body, base) {
			if !visited[link] {
				queue = append(queue, link)
			}
		}
	}

	return count, nil
}

func (im *Importer) fetch(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := im.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func withHeader(title, source, content string) string {
	return fmt.Sprintf("Title: %s\nSource: %s\n\n%s", title, source, content)
}

func sanitize(s string) string {
	return strings.TrimSpace(strings.ToValidUTF8(s, ""))
}
