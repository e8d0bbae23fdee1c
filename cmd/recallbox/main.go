// Copyright 2025 Halcyonic Labs
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
	"strings"
	"time"

	"github.com/halcyonic/recallbox"
	"github.com/halcyonic/recallbox/ai"
	"github.com/halcyonic/recallbox/backfill"
	"github.com/halcyonic/recallbox/core"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "recallbox",
		Usage: "Personal knowledge base with hybrid retrieval",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:     "db",
				Aliases:  []string{"d"},
				Usage:    "Path to BadgerDB database directory",
				Required: true,
			},
			&cli.Uint64Flag{
				Name:    "tenant",
				Aliases: []string{"t"},
				Usage:   "Tenant ID scoping all operations",
				Value:   1,
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "OpenAI-compatible service host URL",
				Value: "http://localhost:11434/v1",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name",
				Value: "embeddinggemma",
			},
			&cli.StringFlag{
				Name:  "generator-model",
				Usage: "Answer generation model name",
				Value: "qwen2.5:3b",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a note",
				ArgsUsage: "<content>",
				Action:    addCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "tag",
						Usage: "Extra tag to attach (repeatable)",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "Category overriding automatic extraction",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search notes with hybrid retrieval",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   20,
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from stored notes",
				ArgsUsage: "<question>",
				Action:    askCommand,
			},
			{
				Name:   "backfill",
				Usage:  "Compute embeddings for notes stored without one",
				Action: backfillCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of notes to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed embeddings",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openAssistant wires the assistant from the global flags.
func openAssistant(c *cli.Context) (*recallbox.Assistant, error) {
	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithGeneratorModel(c.String("generator-model")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	assistant, err := recallbox.Open(c.String("db"), recallbox.WithAIConfig(aiConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return assistant, nil
}

func tenantArg(c *cli.Context) core.TenantID {
	return core.TenantID(c.Uint64("tenant"))
}

func addCommand(c *cli.Context) error {
	content := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if content == "" {
		return fmt.Errorf("note content is required")
	}

	assistant, err := openAssistant(c)
	if err != nil {
		return err
	}
	defer assistant.Close()

	note, err := assistant.AddNote(context.Background(), tenantArg(c), content, &recallbox.AddNoteOptions{
		Tags:     c.StringSlice("tag"),
		Category: c.String("category"),
	})
	if err != nil {
		return fmt.Errorf("failed to add note: %w", err)
	}

	fmt.Printf("Added note %d", note.Id)
	if note.Category != "" {
		fmt.Printf(" [%s]", note.Category)
	}
	if len(note.Tags) > 0 {
		fmt.Printf(" tags: %s", strings.Join(note.Tags, ", "))
	}
	if !note.HasVector() {
		fmt.Printf(" (embedding pending)")
	}
	fmt.Println()
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("search query is required")
	}

	assistant, err := openAssistant(c)
	if err != nil {
		return err
	}
	defer assistant.Close()

	result, err := assistant.Search(context.Background(), tenantArg(c), query, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(result.Notes) == 0 {
		fmt.Println("No matching notes.")
		return nil
	}

	fmt.Printf("Found %d notes (showing %d):\n", result.TotalFound, len(result.Notes))
	for i, note := range result.Notes {
		fmt.Printf("%2d. [%d] %s\n", i+1, note.Id, note.Content)
	}
	return nil
}

func askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("question is required")
	}

	assistant, err := openAssistant(c)
	if err != nil {
		return err
	}
	defer assistant.Close()

	answer, err := assistant.Ask(context.Background(), tenantArg(c), question)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, source := range answer.Sources {
			fmt.Printf("  - %s\n", source)
		}
	}
	return nil
}

func backfillCommand(c *cli.Context) error {
	if c.Int("batch-size") <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if c.Int("max-retries") <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	assistant, err := openAssistant(c)
	if err != nil {
		return err
	}
	defer assistant.Close()

	pipeline, err := assistant.NewBackfillPipeline(
		backfill.WithRetryPolicy(c.Int("max-retries"), c.Duration("retry-delay")),
	)
	if err != nil {
		return fmt.Errorf("failed to create backfill pipeline: %w", err)
	}
	defer pipeline.Release()

	start := time.Now()
	processed, err := pipeline.ProcessNotesWithoutEmbeddings(
		context.Background(), tenantArg(c), c.Int("batch-size"))
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	fmt.Printf("Backfill complete. Embedded %d notes in %v\n",
		processed, time.Since(start).Round(time.Second))
	return nil
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
