package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/anvilworks/anvil/internal/config"
	"github.com/anvilworks/anvil/internal/index"
	"github.com/anvilworks/anvil/internal/safety"
	"github.com/anvilworks/anvil/internal/scan"
)

// =============================================================================
// Semantic index and secret scan
// =============================================================================

func indexPath(workDir string) string {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		abs = workDir
	}
	name := filepath.Base(abs)
	return filepath.Join(config.DataDir(), "index", name+".json")
}

func buildEmbedder(cfg *config.Config) (index.Embedder, error) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return index.NewOpenAIEmbedder(key, "")
	}
	// No API key: fall back to a local Ollama embedding model.
	return index.NewOllamaEmbedder(os.Getenv("OLLAMA_HOST"), ""), nil
}

func buildIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Build the semantic index for the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			embedder, err := buildEmbedder(cfg)
			if err != nil {
				return err
			}

			store := index.NewStore(indexPath(flags.workDir), embedder.Dimension())
			count := 0
			err = index.Walk(flags.workDir, index.WalkOptions{}, func(chunk index.Chunk) error {
				vector, embedErr := embedder.Embed(cmd.Context(), chunk.Text)
				if embedErr != nil {
					return embedErr
				}
				count++
				return store.Add(&index.Entry{
					ID:        fmt.Sprintf("%s:%d", chunk.Path, chunk.StartLine),
					Text:      chunk.Text,
					Embedding: vector,
					Metadata: map[string]string{
						"path":     chunk.Path,
						"language": chunk.Language,
					},
				})
			})
			if err != nil {
				return err
			}
			if err := store.Save(); err != nil {
				return err
			}
			fmt.Printf("[OK] indexed %d chunk(s) with %s embeddings\n", count, embedder.Name())
			return nil
		},
	}
}

func buildSearchCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the semantic index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := index.LoadStore(indexPath(flags.workDir))
			if err != nil {
				return fmt.Errorf("no index for this workspace, run 'anvil index' first: %w", err)
			}
			embedder, err := buildEmbedder(cfg)
			if err != nil {
				return err
			}

			matches, err := store.SearchText(context.Background(), embedder, args[0], topK)
			if err != nil {
				return err
			}
			for _, match := range matches {
				fmt.Printf("%.3f  %s\n", match.Score, match.Entry.ID)
			}
			if len(matches) == 0 {
				fmt.Println("no matches")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top", 10, "Number of results")
	return cmd
}

func buildScanCmd() *cobra.Command {
	var (
		minSeverity   string
		format        string
		failOnSecrets bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the workspace for leaked secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold, err := parseSeverity(minSeverity)
			if err != nil {
				return err
			}
			findings, err := scan.Run(scan.Options{
				Root:        flags.workDir,
				MinSeverity: threshold,
			})
			if err != nil {
				return err
			}

			if format == "json" {
				if err := scan.WriteJSON(os.Stdout, findings); err != nil {
					return err
				}
			} else {
				scan.WriteText(os.Stdout, findings)
			}

			if failOnSecrets && len(findings) > 0 {
				// Exit 1 without an extra error line; JSON mode must keep
				// stdout clean.
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&minSeverity, "min-severity", "low", "Lowest severity to report (low|medium|high|critical)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text|json)")
	cmd.Flags().BoolVar(&failOnSecrets, "fail-on-secrets", false, "Exit 1 when findings exist")
	return cmd
}

func parseSeverity(s string) (safety.Severity, error) {
	switch s {
	case "", "low":
		return safety.SeverityLow, nil
	case "medium":
		return safety.SeverityMedium, nil
	case "high":
		return safety.SeverityHigh, nil
	case "critical":
		return safety.SeverityCritical, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", s)
	}
}
