// Package main provides the MuninDB CLI entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/orneryd/munindb/pkg/auth"
	"github.com/orneryd/munindb/pkg/blockstore"
	"github.com/orneryd/munindb/pkg/config"
	"github.com/orneryd/munindb/pkg/csr"
	"github.com/orneryd/munindb/pkg/idmap"
	"github.com/orneryd/munindb/pkg/ingest"
	"github.com/orneryd/munindb/pkg/log"
	"github.com/orneryd/munindb/pkg/query"
	"github.com/orneryd/munindb/pkg/server"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "munindb",
		Short: "MuninDB - Read-Mostly Graph Analytics Engine",
		Long: `MuninDB is a single-node graph analytics engine written in Go.

A batch importer turns an edge-list CSV into a memory-mapped CSR
artifact; the query server answers k-hop, common-neighbor,
connected-component, reachability and subgraph-isomorphism counts
over it.`,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("MuninDB v%s (%s)\n", version, commit)
		},
	})

	importCmd := &cobra.Command{
		Use:   "import [edge-list.csv]",
		Short: "Import an edge list into a graph artifact",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	importCmd.Flags().String("data-dir", "", "Artifact directory (overrides config)")
	importCmd.Flags().Bool("block-mode", false, "Write block-partitioned adjacency instead of a flat CSR")
	importCmd.Flags().Bool("sort-adjacency", true, "Sort adjacency slices by destination id")
	importCmd.Flags().String("max-import-mem", "", "Import memory watermark, e.g. 4GB (0 = unlimited)")
	rootCmd.AddCommand(importCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve queries over the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().String("data-dir", "", "Artifact directory (overrides config)")
	serveCmd.Flags().Int("port", 0, "HTTP port (overrides config)")
	serveCmd.Flags().Bool("block-mode", false, "Serve adjacency from the block store")
	rootCmd.AddCommand(serveCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print artifact statistics",
		RunE:  runStats,
	}
	statsCmd.Flags().String("data-dir", "", "Artifact directory (overrides config)")
	statsCmd.Flags().Bool("block-mode", false, "Read adjacency from the block store")
	rootCmd.AddCommand(statsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers defaults, the optional config file, environment
// variables, then command-line flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.LoadFromEnv()

	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("block-mode") {
		cfg.Storage.BlockMode, _ = cmd.Flags().GetBool("block-mode")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.SetLevel(log.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := ingest.Options{
		SortAdjacency: cfg.Import.SortAdjacency,
		MaxMemBytes:   cfg.Import.MaxMemBytes,
	}
	if cmd.Flags().Changed("sort-adjacency") {
		opts.SortAdjacency, _ = cmd.Flags().GetBool("sort-adjacency")
	}
	if memStr, _ := cmd.Flags().GetString("max-import-mem"); memStr != "" {
		mem, err := humanize.ParseBytes(memStr)
		if err != nil {
			return fmt.Errorf("parsing --max-import-mem: %w", err)
		}
		opts.MaxMemBytes = mem
	}
	if blockMode, _ := cmd.Flags().GetBool("block-mode"); blockMode || cfg.Storage.BlockMode {
		width := cfg.Import.BlockWidth
		opts.SinkFactory = func(stage string) (ingest.EdgeSink, error) {
			return blockstore.NewWriter(filepath.Join(stage, blockstore.BlocksDir), width)
		}
	}

	fmt.Printf("📥 Importing %s into %s\n", args[0], cfg.Storage.DataDir)
	stats, err := ingest.Import(args[0], cfg.Storage.DataDir, opts)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("✅ Imported %d nodes, %d edges in %v\n", stats.Nodes, stats.Edges, stats.Duration)
	fmt.Printf("   Node labels: %d, edge labels: %d\n", stats.NodeLabels, stats.EdgeLabels)
	if stats.SkippedLines > 0 {
		fmt.Printf("   ⚠️  Skipped %d malformed lines\n", stats.SkippedLines)
	}
	return nil
}

// openEngine loads the artifact and builds a query engine over the
// configured backend.
func openEngine(cfg *config.Config) (*query.Engine, server.CacheStatsFunc, io.Closer, error) {
	dir := cfg.Storage.DataDir

	n, _, err := csr.ReadMeta(filepath.Join(dir, csr.MetaFile))
	if err != nil {
		return nil, nil, nil, err
	}
	ids, err := idmap.Load(dir, n)
	if err != nil {
		return nil, nil, nil, err
	}
	nodeLabels, err := csr.LoadLabelTable(filepath.Join(dir, csr.NodeLabelStrings))
	if err != nil {
		ids.Close()
		return nil, nil, nil, err
	}
	edgeLabels, err := csr.LoadLabelTable(filepath.Join(dir, csr.EdgeLabelStrings))
	if err != nil {
		ids.Close()
		return nil, nil, nil, err
	}

	if cfg.Storage.BlockMode {
		g, err := blockstore.Open(dir, cfg.Storage.CacheBytes)
		if err != nil {
			ids.Close()
			return nil, nil, nil, err
		}
		closer := multiCloser{g, ids}
		return query.New(g, ids, nodeLabels, edgeLabels), g.CacheStats, closer, nil
	}

	g, err := csr.Load(dir)
	if err != nil {
		ids.Close()
		return nil, nil, nil, err
	}
	closer := multiCloser{g, ids}
	return query.New(g, ids, nodeLabels, edgeLabels), nil, closer, nil
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("🚀 Starting MuninDB v%s\n", version)
	fmt.Printf("   Artifact:  %s\n", cfg.Storage.DataDir)
	fmt.Printf("   HTTP API:  http://localhost:%d\n", cfg.Server.Port)
	if cfg.Storage.BlockMode {
		fmt.Printf("   Backend:   block store (cache %s)\n", humanize.Bytes(cfg.Storage.CacheBytes))
	} else {
		fmt.Println("   Backend:   memory-mapped CSR")
	}
	fmt.Println()

	engine, cacheStats, closer, err := openEngine(cfg)
	if err != nil {
		return fmt.Errorf("opening graph: %w", err)
	}
	defer closer.Close()

	serverConfig := server.Config{
		Address:      cfg.Server.Address,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		EnableCORS:   cfg.Server.EnableCORS,
		CORSOrigins:  cfg.Server.CORSOrigins,
	}
	var opts []server.Option
	if cfg.Auth.Enabled {
		authn, err := auth.New(cfg.Auth.Password)
		if err != nil {
			return fmt.Errorf("setting up auth: %w", err)
		}
		opts = append(opts, server.WithAuth(authn))
		fmt.Println("🔐 Authentication enabled")
	}
	if cacheStats != nil {
		opts = append(opts, server.WithCacheStats(cacheStats))
	}

	httpServer := server.New(engine, serverConfig, opts...)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	fmt.Printf("✅ MuninDB is ready: %d nodes, %d edges\n", engine.NumNodes(), engine.NumEdges())
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\n🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Stop(ctx); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}
	fmt.Println("✅ Server stopped gracefully")
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	engine, _, closer, err := openEngine(cfg)
	if err != nil {
		return fmt.Errorf("opening graph: %w", err)
	}
	defer closer.Close()

	maxOut, maxIn, err := engine.DegreeSummary(context.Background())
	if err != nil {
		return fmt.Errorf("scanning degrees: %w", err)
	}

	n := engine.NumNodes()
	avg := 0.0
	if n > 0 {
		avg = float64(engine.NumEdges()) / float64(n)
	}

	fmt.Printf("📊 Graph statistics for %s\n", cfg.Storage.DataDir)
	fmt.Printf("   Nodes:        %d\n", n)
	fmt.Printf("   Edges:        %d\n", engine.NumEdges())
	fmt.Printf("   Node labels:  %d\n", engine.NodeLabelCount())
	fmt.Printf("   Edge labels:  %d\n", engine.EdgeLabelCount())
	fmt.Printf("   Avg degree:   %.2f\n", avg)
	fmt.Printf("   Max out/in:   %d / %d\n", maxOut, maxIn)
	return nil
}
