package main

import (
	"context"
	"flag"
	"os"

	"github.com/josinaldojr/gemini-graph-rag/internal/app"
	"github.com/josinaldojr/gemini-graph-rag/internal/config"
	"github.com/josinaldojr/gemini-graph-rag/internal/ingest"
	"github.com/mudler/xlog"
)

func main() {
	fromFiles := flag.Bool("from-files", false, "import local files (.md/.txt/.html/.pdf)")
	pathFlag := flag.String("path", "", "base directory for local files")
	fromURL := flag.Bool("from-url", false, "import by crawling a site over HTTP")
	baseURLFlag := flag.String("base-url", "", "base URL to crawl (same host only)")
	maxPagesFlag := flag.Int("max-pages", 50, "page limit for the HTTP crawl")
	flag.Parse()

	if !*fromFiles && !*fromURL {
		fatal("use at least one mode: --from-files or --from-url")
	}
	if *fromFiles && *pathFlag == "" {
		fatal("--path is required with --from-files")
	}
	if *fromURL && *baseURLFlag == "" {
		fatal("--base-url is required with --from-url")
	}

	ctx := context.Background()

	// config.Load also reads .env
	cfg, err := config.Load()
	if err != nil {
		fatal("invalid configuration", "error", err)
	}

	engine, err := app.NewEngine(ctx, cfg)
	if err != nil {
		fatal("failed to init rag engine", "error", err)
	}
	defer engine.Close()

	importer := ingest.NewImporter(engine, nil)

	if *fromFiles {
		n, err := importer.ImportFiles(ctx, *pathFlag)
		if err != nil {
			fatal("importing files", "error", err, "imported", n)
		}
		xlog.Info("files imported", "count", n)
	}

	if *fromURL {
		n, err := importer.ImportURL(ctx, *baseURLFlag, *maxPagesFlag)
		if err != nil {
			fatal("importing url", "error", err, "imported", n)
		}
		xlog.Info("pages imported", "count", n)
	}

	xlog.Info("import finished")
}

func fatal(msg string, args ...any) {
	xlog.Error(msg, args...)
	os.Exit(1)
}
