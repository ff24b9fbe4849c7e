package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/medassistd/internal/logging"
)

const ingestConcurrency = 4

// Ingestor loads a directory of .md/.txt documents into the knowledge
// store: split into overlapping chunks, tagged with a citation source
// (file name plus section heading), added per file with bounded
// concurrency.
type Ingestor struct {
	store    Store
	splitter textsplitter.TextSplitter
	logger   *logging.Logger
}

// NewIngestor wires a store to a recursive-character splitter.
func NewIngestor(store Store, chunkSize, chunkOverlap int, logger *logging.Logger) (*Ingestor, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, chunk size)")
	}

	return &Ingestor{
		store: store,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
		logger: logger.Named("ingest"),
	}, nil
}

// IngestDir walks dir, ingesting every .md and .txt file. It returns the
// number of chunks added.
func (ing *Ingestor) IngestDir(ctx context.Context, dir string) (int, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".txt":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking %s: %w", dir, err)
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no .md or .txt documents under %s", dir)
	}

	var added atomic.Int64
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(ingestConcurrency)
	for _, path := range files {
		eg.Go(func() error {
			n, err := ing.ingestFile(egCtx, dir, path)
			if err != nil {
				return fmt.Errorf("ingesting %s: %w", path, err)
			}
			added.Add(int64(n))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return int(added.Load()), err
	}

	ing.logger.Info(ctx, "ingestion complete",
		zap.Int("files", len(files)),
		zap.Int64("chunks", added.Load()),
	)
	return int(added.Load()), nil
}

func (ing *Ingestor) ingestFile(ctx context.Context, root, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	name, err := filepath.Rel(root, path)
	if err != nil {
		name = filepath.Base(path)
	}
	name = filepath.ToSlash(name)

	var docs []Document
	chunkNo := 0
	for _, sec := range splitSections(string(content)) {
		chunks, err := ing.splitter.SplitText(sec.body)
		if err != nil {
			return 0, fmt.Errorf("splitting text: %w", err)
		}
		source := name
		if sec.heading != "" {
			source = name + "#" + sec.heading
		}
		for _, chunk := range chunks {
			if strings.TrimSpace(chunk) == "" {
				continue
			}
			docs = append(docs, Document{
				ID:      fmt.Sprintf("%s#%d", name, chunkNo),
				Content: chunk,
				Source:  source,
			})
			chunkNo++
		}
	}
	if len(docs) == 0 {
		ing.logger.Warn(ctx, "document produced no chunks", zap.String("file", name))
		return 0, nil
	}

	if err := ing.store.Add(ctx, docs); err != nil {
		return 0, err
	}
	ing.logger.Debug(ctx, "ingested file", zap.String("file", name), zap.Int("chunks", len(docs)))
	return len(docs), nil
}

// section is a heading-scoped run of a markdown document. Plain text files
// are a single unheaded section.
type section struct {
	heading string
	body    string
}

// splitSections groups content under its most recent markdown heading so
// citations can point at a section, not just a file.
func splitSections(content string) []section {
	var (
		sections []section
		current  section
		body     strings.Builder
	)

	flush := func() {
		current.body = strings.TrimSpace(body.String())
		if current.body != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			heading := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if heading != "" {
				flush()
				current = section{heading: heading}
				continue
			}
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return sections
}
