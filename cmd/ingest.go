package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lorebot/lore/internal/corpus"
	"github.com/lorebot/lore/internal/scrape"
)

var ingestURL string

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Ingest files, directories, or a website into the index",
	Long: `Ingest adds documents to the vector index and persists a new snapshot.

Pass file or directory paths to ingest local text files, or --url to crawl a
website. Re-ingesting the same source replaces its previous passages.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "crawl a website instead of reading local paths")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if ingestURL == "" && len(args) == 0 {
		return fmt.Errorf("nothing to ingest: pass paths or --url")
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	docs, err := collectDocuments(ctx, a, args)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no ingestable documents found")
	}

	report, err := a.engine.Ingest(ctx, docs)
	if err != nil {
		return err
	}

	fmt.Printf("Ingested %d documents (%d passages). Index now holds %d passages.\n",
		report.Documents, report.Passages, a.engine.PassageCount())
	return nil
}

// collectDocuments gathers documents from the crawler and local paths.
func collectDocuments(ctx context.Context, a *app, paths []string) ([]corpus.Document, error) {
	var docs []corpus.Document

	if ingestURL != "" {
		crawler := scrape.NewCrawler(scrape.Config{
			MaxDepth:         a.cfg.CrawlMaxDepth,
			MaxPages:         a.cfg.CrawlMaxPages,
			Parallelism:      a.cfg.CrawlParallelism,
			Delay:            time.Duration(a.cfg.CrawlDelayMS) * time.Millisecond,
			MinContentLength: a.cfg.CrawlMinContentLength,
		}, a.logger.With("component", "crawler"))

		crawled, err := crawler.Crawl(ctx, ingestURL)
		if err != nil {
			return nil, err
		}
		docs = append(docs, crawled...)
	}

	for _, path := range paths {
		fromPath, err := readPath(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, fromPath...)
	}
	return docs, nil
}

// readPath loads one file, or every text file under a directory.
func readPath(path string) ([]corpus.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}

	if !info.IsDir() {
		doc, ok, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%q is not a supported text file", path)
		}
		return []corpus.Document{doc}, nil
	}

	var docs []corpus.Document
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != path {
				return filepath.SkipDir
			}
			return nil
		}
		doc, ok, err := readFile(p)
		if err != nil {
			return err
		}
		if ok {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %q: %w", path, err)
	}
	return docs, nil
}

// textExtensions are the file types treated as ingestable text.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true,
	".rst": true, ".adoc": true, ".org": true,
}

func readFile(path string) (corpus.Document, bool, error) {
	if !textExtensions[strings.ToLower(filepath.Ext(path))] {
		return corpus.Document{}, false, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the CLI user
	if err != nil {
		return corpus.Document{}, false, fmt.Errorf("reading %q: %w", path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return corpus.Document{}, false, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return corpus.NewDocument(abs, text, map[string]string{
		"ingested_at": time.Now().UTC().Format(time.RFC3339),
	}), true, nil
}
