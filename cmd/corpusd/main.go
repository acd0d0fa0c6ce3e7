// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	corpus "github.com/poiesic/corpus"
	"github.com/poiesic/corpus/ai"
	"github.com/poiesic/corpus/core"
	"github.com/poiesic/corpus/ingestion"
	"github.com/poiesic/corpus/queue"
	"github.com/poiesic/corpus/recovery"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "corpusd",
		Usage: "Document ingestion and content-addressable storage engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "worker",
				Usage:  "Run ingestion workers and the recovery loop",
				Action: workerCommand,
				Flags: append(dataFlags(),
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
						Value: "http://localhost:11434/v1",
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name",
						Value: "embeddinggemma",
					},
					&cli.StringFlag{
						Name:  "chunker-host",
						Usage: "Boundary detection service host URL (defaults to embedding-host)",
					},
					&cli.StringFlag{
						Name:  "chunker-model",
						Usage: "Boundary detection model name",
						Value: "qwen2.5:3b",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Number of concurrent ingestion workers",
						Value: 2,
					},
					&cli.DurationFlag{
						Name:  "lease",
						Usage: "Job lease duration; must exceed the longest job",
						Value: 10 * time.Minute,
					},
					&cli.DurationFlag{
						Name:  "stuck-after",
						Usage: "How long an asset may process before it is considered stuck",
						Value: 15 * time.Minute,
					},
					&cli.DurationFlag{
						Name:  "sweep-interval",
						Usage: "Period between stuck-asset sweeps",
						Value: 5 * time.Minute,
					},
				),
			},
			{
				Name:      "ingest",
				Usage:     "Register a document and enqueue it for ingestion",
				ArgsUsage: "FILE",
				Action:    ingestCommand,
				Flags: append(dataFlags(),
					&cli.StringFlag{
						Name:     "tenant",
						Aliases:  []string{"t"},
						Usage:    "Owning tenant",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "environment",
						Usage: "Deployment environment",
						Value: "prod",
					},
					&cli.StringFlag{
						Name:  "strategy",
						Usage: "Chunking strategy (simple, semantic, llm)",
						Value: "simple",
					},
				),
			},
			{
				Name:      "status",
				Usage:     "Show an asset's ingestion status",
				ArgsUsage: "ASSET_ID",
				Action:    statusCommand,
				Flags:     dataFlags(),
			},
			{
				Name:   "jobs",
				Usage:  "List queue jobs by status",
				Action: jobsCommand,
				Flags: append(dataFlags(),
					&cli.StringFlag{
						Name:  "status",
						Usage: "Job status (waiting, active, delayed, completed, failed)",
						Value: "failed",
					},
				),
			},
			{
				Name:      "retry-job",
				Usage:     "Reset a failed job back to waiting",
				ArgsUsage: "JOB_KEY",
				Action:    retryJobCommand,
				Flags:     dataFlags(),
			},
			{
				Name:   "recover",
				Usage:  "Run one stuck-asset sweep",
				Action: recoverCommand,
				Flags: append(dataFlags(),
					&cli.DurationFlag{
						Name:  "stuck-after",
						Usage: "How long an asset may process before it is considered stuck",
						Value: 15 * time.Minute,
					},
				),
			},
			{
				Name:   "gc",
				Usage:  "Run one garbage collection pass over unreferenced blobs",
				Action: gcCommand,
				Flags: append(dataFlags(),
					&cli.DurationFlag{
						Name:  "grace",
						Usage: "How long a blob must be unreferenced before collection",
						Value: 24 * time.Hour,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Maximum orphans deleted per pass",
						Value: 100,
					},
				),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func dataFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "data",
			Aliases:  []string{"d"},
			Usage:    "Path to the data directory",
			Required: true,
		},
	}
}

func openEngine(c *cli.Context, extra ...corpus.EngineOption) (*corpus.Engine, error) {
	engine, err := corpus.NewEngine(c.String("data"), extra...)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

func workerCommand(c *cli.Context) error {
	chunkerHost := c.String("chunker-host")
	if chunkerHost == "" {
		chunkerHost = c.String("embedding-host")
	}
	config := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithChunkerHost(chunkerHost),
		ai.WithChunkerModel(c.String("chunker-model")),
	)
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}

	engine, err := openEngine(c,
		corpus.WithAIConfig(config),
		corpus.WithQueueOptions(
			queue.WithConcurrency(c.Int("concurrency")),
			queue.WithLease(c.Duration("lease")),
		),
		corpus.WithDetectorOptions(
			recovery.WithStaleness(c.Duration("stuck-after")),
			recovery.WithSweepInterval(c.Duration("sweep-interval")),
		),
	)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	slog.Info("shutting down", "signal", sig.String())

	engine.Stop()

	usage := engine.Usage()
	if usage.Texts > 0 {
		fmt.Fprintf(os.Stderr, "Embedded %d texts, %d tokens\n", usage.Texts, usage.Tokens)
	}
	return nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one file argument")
	}
	path := c.Args().First()

	strategy, err := parseStrategy(c.String("strategy"))
	if err != nil {
		return err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	res, err := engine.Ingestion().RegisterAndEnqueue(c.Context, ingestion.RegisterRequest{
		Tenant:      c.String("tenant"),
		Environment: c.String("environment"),
		Filename:    path,
		Content:     content,
		Strategy:    strategy,
		Actor:       "cli",
	})
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	fmt.Printf("asset %d registered (%d bytes, blob %s)\n",
		res.Asset.Id, len(content), res.Asset.ContentHash[:12])
	if !res.BlobCreated {
		fmt.Printf("content already stored, reference count now %d\n", res.Blob.RefCount)
	}
	if !res.Enqueued {
		fmt.Println("an unresolved job already covers this document")
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one asset id argument")
	}
	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid asset id: %w", err)
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	asset, err := engine.Ingestion().GetStatus(c.Context, core.ID(id))
	if err != nil {
		return err
	}

	fmt.Printf("asset:       %d\n", asset.Id)
	fmt.Printf("tenant:      %s\n", asset.Tenant)
	fmt.Printf("filename:    %s\n", asset.Filename)
	fmt.Printf("status:      %s\n", asset.Status)
	fmt.Printf("progress:    %d%%\n", asset.Progress)
	fmt.Printf("attempts:    %d\n", asset.Attempts)
	fmt.Printf("chunks:      %d\n", asset.TotalChunks)
	fmt.Printf("hash:        %s\n", asset.ContentHash)
	fmt.Printf("updated:     %s\n", asset.UpdatedAt.Format(time.RFC3339))
	if asset.LastError != "" {
		fmt.Printf("last error:  %s\n", asset.LastError)
	}
	if asset.Deleted {
		fmt.Println("deleted:     true")
	}
	return nil
}

func jobsCommand(c *cli.Context) error {
	status, err := parseJobStatus(c.String("status"))
	if err != nil {
		return err
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	jobs, err := engine.Queue().ListJobs(c.Context, status)
	if err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Printf("no %s jobs\n", status)
		return nil
	}
	for _, job := range jobs {
		fmt.Printf("%s  asset=%d attempts=%d enqueued=%s",
			job.Key, job.AssetId, job.Attempts, job.EnqueuedAt.Format(time.RFC3339))
		if job.LastError != "" {
			fmt.Printf(" error=%q", job.LastError)
		}
		fmt.Println()
	}
	return nil
}

func retryJobCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one job key argument")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	job, err := engine.Queue().RetryJob(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	fmt.Printf("job %s reset to %s\n", job.Key, job.Status)
	return nil
}

func recoverCommand(c *cli.Context) error {
	engine, err := openEngine(c,
		corpus.WithDetectorOptions(recovery.WithStaleness(c.Duration("stuck-after"))))
	if err != nil {
		return err
	}
	defer engine.Close()

	result, err := engine.Detector().Sweep(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("scanned=%d requeued=%d failed=%d errors=%d\n",
		result.Scanned, result.Requeued, result.Failed, result.Errors)
	return nil
}

func gcCommand(c *cli.Context) error {
	engine, err := openEngine(c,
		corpus.WithCollectorOptions(
			recovery.WithGraceWindow(c.Duration("grace")),
			recovery.WithBatchSize(c.Int("batch-size")),
		))
	if err != nil {
		return err
	}
	defer engine.Close()

	result, err := engine.GarbageCollector().Execute(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("found=%d deleted=%d freed=%d bytes skipped=%d errors=%d in %s\n",
		result.OrphansFound, result.OrphansDeleted, result.BytesFreed,
		result.Skipped, result.Errors, result.Duration.Round(time.Millisecond))
	return nil
}

func parseStrategy(s string) (core.ChunkStrategy, error) {
	switch strings.ToLower(s) {
	case "simple":
		return core.StrategySimple, nil
	case "semantic":
		return core.StrategySemantic, nil
	case "llm":
		return core.StrategyLLM, nil
	default:
		return 0, fmt.Errorf("invalid strategy %q: must be one of simple, semantic, llm", s)
	}
}

func parseJobStatus(s string) (core.JobStatus, error) {
	switch strings.ToLower(s) {
	case "waiting":
		return core.JobWaiting, nil
	case "active":
		return core.JobActive, nil
	case "delayed":
		return core.JobDelayed, nil
	case "completed":
		return core.JobCompleted, nil
	case "failed":
		return core.JobFailed, nil
	default:
		return 0, fmt.Errorf("invalid job status %q", s)
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
