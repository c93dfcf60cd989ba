// Package main implements a one-shot retrieval CLI for inspecting routing
// decisions from the terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/CareWellAI/carewell-mvp/engine/domain"
	"github.com/CareWellAI/carewell-mvp/engine/metadata"
	"github.com/CareWellAI/carewell-mvp/engine/rag"
	"github.com/CareWellAI/carewell-mvp/engine/rewrite"
	"github.com/CareWellAI/carewell-mvp/engine/semantic"
	"github.com/CareWellAI/carewell-mvp/pkg/embed"
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

const refusalNotice = `I could not find reliable information for this question in the knowledge base.
Please consult a healthcare professional for medical advice.
Alzheimer's Association 24/7 Helpline: 1-800-272-3900`

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	k := flag.Int("k", domain.DefaultTopK, "number of neighbors to retrieve")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: query [-k N] <question>")
		os.Exit(2)
	}
	question := strings.Join(flag.Args(), " ")

	if err := run(context.Background(), question, *k, logger); err != nil {
		logger.Error("query failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, question string, k int, logger *slog.Logger) error {
	if err := domain.ValidateQuery(domain.Query{Text: question, K: k}); err != nil {
		return err
	}

	index, err := semantic.LoadFile(envOr("INDEX_PATH", "data/chunks.index"))
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	meta, err := metadata.Open(envOr("METADATA_PATH", "data/chunks.db"))
	if err != nil {
		return fmt.Errorf("open metadata: %w", err)
	}

	enc := embed.NewOllamaEncoder(envOr("OLLAMA_URL", "http://localhost:11434"), envOr("EMBED_MODEL", "nomic-embed-text"))
	router := rag.New(enc, index, meta, rag.DefaultOptions(), logger)

	if rewritten, ok := rewrite.Rewrite(question); ok {
		fmt.Printf("(interpreting as: %s)\n\n", rewritten)
		question = rewritten
	}

	decision, err := router.Search(ctx, question, k)
	if err != nil {
		return err
	}

	fmt.Printf("method:         %s\n", decision.Method)
	fmt.Printf("confidence:     %s\n", decision.Confidence)
	fmt.Printf("recommendation: %s\n\n", decision.Recommendation)

	if decision.Recommendation == rag.DoNotAnswer {
		fmt.Println(refusalNotice)
		return nil
	}

	// Top two results are enough to judge a decision by eye.
	show := decision.Results
	if len(show) > 2 {
		show = show[:2]
	}
	for i, res := range show {
		fmt.Printf("[%d] %s (%s)\n", i+1, res.Title, res.Source)
		if res.Distance != nil {
			fmt.Printf("    distance: %.4f, tier: %s\n", *res.Distance, res.Confidence)
		} else {
			fmt.Printf("    tier: %s\n", res.Confidence)
		}
		fmt.Printf("    %s\n\n", snippet(res.Content, 240))
	}
	return nil
}

func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
