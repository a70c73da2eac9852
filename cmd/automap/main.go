// Package main provides an offline auto-map tool.
//
// It loads the three catalogs, optionally restores a saved snapshot, runs the
// matching engine, applies its proposals and writes the resulting snapshot.
//
// Usage:
//
//	go run ./cmd/automap -catalog-dir ./catalogs -out mapping.json
//	go run ./cmd/automap -catalog-dir ./catalogs -in previous.json -threshold 0.8 -out mapping.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopzz/catmap/internal/catalog"
	"github.com/shopzz/catmap/internal/domain"
	"github.com/shopzz/catmap/internal/id"
	"github.com/shopzz/catmap/internal/logger"
	"github.com/shopzz/catmap/internal/matcher"
	"github.com/shopzz/catmap/internal/session"
	"github.com/shopzz/catmap/internal/validation"
)

var (
	catalogDir = flag.String("catalog-dir", ".", "Directory containing the catalog files")
	inPath     = flag.String("in", "", "Snapshot to restore before matching (v2 or legacy)")
	outPath    = flag.String("out", "mapping.json", "Where to write the resulting snapshot; - for stdout")
	threshold  = flag.Float64("threshold", 0.7, "Fuzzy acceptance threshold in (0, 1)")
	logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	log := logger.New(logger.Config{
		Writer: os.Stderr,
		Level:  logger.ParseLevel(*logLevel),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.WithError(err).Fatal("auto-map failed")
	}
}

func run(ctx context.Context, log *logger.Logger) error {
	loader := catalog.NewLoader(*catalogDir, nil, validation.New(), log.Logger)
	cats, err := loader.Load(ctx)
	if err != nil {
		return err
	}

	sessionID := id.MustGenerate(id.PrefixSession)
	sess := session.New(sessionID, nil, log.Logger)
	log = log.WithSession(sessionID)
	sess.Initialize(cats.Canonical, cats.SourceA, cats.SourceB)

	if *inPath != "" {
		data, err := os.ReadFile(*inPath)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		format, err := sess.ImportState(data)
		if err != nil {
			return err
		}
		log.WithField("format", format).Info("snapshot restored", "path", *inPath)
	}

	progress := make(chan domain.MatchProgress)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			log.Info(p.Message, "status", p.Status, "percent", p.Percent)
		}
	}()

	result, err := matcher.Match(ctx, matcher.Input{
		Canonical: sess.Available(domain.PlatformCanonical),
		SourceA:   sess.Available(domain.PlatformSourceA),
		SourceB:   sess.Available(domain.PlatformSourceB),
		Threshold: *threshold,
	}, progress)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	applied := sess.ApplyProposals(result.Proposals)
	stats := sess.Stats()
	log.Info("proposals applied",
		"proposals", len(result.Proposals),
		"applied", applied.Applied,
		"failed", applied.Failed,
		"exact", result.Stats.ExactMatchCount,
		"avg_similarity", result.Stats.AvgSimilarityPercent,
		"resolved", stats.ResolvedCount,
		"canonical", stats.CanonicalTotal,
		"elapsed_ms", result.ElapsedMs)

	out, err := json.MarshalIndent(sess.ExportState(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if *outPath == "-" {
		_, err = os.Stdout.Write(append(out, '\n'))
		return err
	}
	if err := os.WriteFile(*outPath, out, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	log.Info("snapshot written", "path", *outPath)
	return nil
}
