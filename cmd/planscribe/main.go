package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/planscribe/planscribe/config"
	srv "github.com/planscribe/planscribe/internal/server"
	"github.com/planscribe/planscribe/tools/ragindex"
)

func main() {
	var cfgPath string
	var root = &cobra.Command{Use: "planscribe"}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path")

	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if serveAddr != "" {
				cfg.General.Listen = serveAddr
			}
			return srv.Run(cfg)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")

	var migDir string
	var direction string
	var steps int
	var migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				if env := os.Getenv("DATABASE_URL"); env != "" {
					dsn = env
				} else {
					return err
				}
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrateCmd.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source")
	migrateCmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrateCmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	var indexCmd = &cobra.Command{
		Use:   "index [files...]",
		Short: "Add documents to the internal research corpus",
		Long:  "Indexes plain-text files into the on-disk corpus used for internal retrieval. The file name becomes the document title.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if cfg.RAG.IndexPath == "" {
				return fmt.Errorf("rag.index_path must be set to index documents persistently")
			}
			idx, err := ragindex.Open(cfg.RAG.IndexPath)
			if err != nil {
				return err
			}
			defer idx.Close()
			for _, path := range args {
				if err := indexFile(idx, path); err != nil {
					return fmt.Errorf("index %s: %w", path, err)
				}
				fmt.Printf("indexed %s\n", path)
			}
			count, err := idx.Count()
			if err != nil {
				return err
			}
			fmt.Printf("corpus now holds %d documents\n", count)
			return nil
		},
	}

	root.AddCommand(serve, migrateCmd, indexCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func indexFile(idx *ragindex.Index, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	name := filepath.Base(path)
	return idx.AddDocument(ragindex.Document{
		ID:    name,
		Title: strings.TrimSuffix(name, filepath.Ext(name)),
		Text:  b.String(),
	})
}
