package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/grantwise/coach-backend/internal/entity"
	"github.com/unidoc/unioffice/document"
)

// Loader resolves file references and extracts their plain text.
type Loader struct {
	httpClient *http.Client
}

func NewLoader(httpClient *http.Client) *Loader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Loader{httpClient: httpClient}
}

// Load fetches the referenced file and extracts its text by extension.
// Unsupported extensions return entity.ErrInvalidExtension so callers
// can skip them.
func (l *Loader) Load(ctx context.Context, ref entity.FileReference) (string, error) {
	ext := strings.ToLower(filepath.Ext(ref.Name))

	switch ext {
	case ".txt", ".md", ".markdown":
		raw, err := l.fetch(ctx, ref.URI)
		if err != nil {
			return "", err
		}
		return string(raw), nil

	case ".docx":
		raw, err := l.fetch(ctx, ref.URI)
		if err != nil {
			return "", err
		}
		return extractDocxText(raw)

	default:
		return "", fmt.Errorf("%q: %w", ref.Name, entity.ErrInvalidExtension)
	}
}

func (l *Loader) fetch(ctx context.Context, uri string) ([]byte, error) {
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := l.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", entity.ErrFileUnresolvable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: HTTP %d fetching %s", entity.ErrFileUnresolvable, resp.StatusCode, uri)
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		return raw, nil

	case strings.HasPrefix(uri, "file://"):
		return l.readFile(strings.TrimPrefix(uri, "file://"))

	default:
		return l.readFile(uri)
	}
}

func (l *Loader) readFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrFileUnresolvable, err)
	}
	return raw, nil
}

// extractDocxText pulls the run text out of every paragraph of a .docx
// document, one line per paragraph.
func extractDocxText(raw []byte) (string, error) {
	doc, err := document.Read(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("read docx: %w", err)
	}
	defer doc.Close()

	var sb strings.Builder
	for _, par := range doc.Paragraphs() {
		for _, run := range par.Runs() {
			sb.WriteString(run.Text())
		}
		sb.WriteString("\n")
	}

	return sb.String(), nil
}
