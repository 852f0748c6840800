// Package main is the entry point for the plate grid server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joris-gentinetta/vizarr/internal/api"
	"github.com/joris-gentinetta/vizarr/internal/cache"
	"github.com/joris-gentinetta/vizarr/internal/catalog"
	"github.com/joris-gentinetta/vizarr/internal/config"
	"github.com/joris-gentinetta/vizarr/internal/loader"
	"github.com/joris-gentinetta/vizarr/internal/metrics"
	"github.com/joris-gentinetta/vizarr/internal/render"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage:\n")
	fmt.Fprintf(flag.CommandLine.Output(), "  %s [-config path]                      serve plates\n", os.Args[0])
	fmt.Fprintf(flag.CommandLine.Output(), "  %s [-config path] import <plate.zarr> [id]  catalog a plate\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Usage = usage
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Open the plate catalog (shared by serving and import)
	store, err := catalog.NewStore(cfg.Catalog.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to open plate catalog: %v", err)
	}
	defer store.Close()

	if flag.Arg(0) == "import" {
		if flag.NArg() < 2 {
			flag.Usage()
			os.Exit(2)
		}
		b := &plateBuilder{cfg: cfg, store: store}
		id, err := b.importPlate(context.Background(), flag.Arg(1), flag.Arg(2))
		if err != nil {
			log.Fatalf("Failed to import %s: %v", flag.Arg(1), err)
		}
		log.Printf("Imported %s as plate %q", flag.Arg(1), id)
		return
	}

	serve(cfg, store)
}

func serve(cfg *config.Config, store *catalog.Store) {
	log.Printf("Starting plate grid server on port %d", cfg.Server.Port)

	ctx := context.Background()

	// Metrics registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize cache manager (shared across all plates)
	cacheManager, err := cache.NewManager(cache.Config{
		TileCacheSizeMB:   cfg.Cache.TileSizeMB,
		TileTTL:           time.Duration(cfg.Cache.TileTTLMinutes) * time.Minute,
		ChunkCacheEntries: cfg.Cache.ChunkCacheEntries,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	registry := api.NewPlateRegistry(cfg.Server.Title)
	b := &plateBuilder{
		cfg:      cfg,
		chunks:   cacheManager,
		loader:   loader.New(loader.Config{Cache: cacheManager, Metrics: m}),
		metrics:  m,
		registry: registry,
		store:    store,
	}
	defer b.close()

	// Configured plates first, in file order
	plateIDs := cfg.Plates.IDs()
	log.Printf("Initializing %d configured plate(s)", len(plateIDs))
	for _, id := range plateIDs {
		s, _ := cfg.Plate(id)
		if err := b.register(ctx, s); err != nil {
			log.Fatalf("Failed to initialize plate %q: %v", id, err)
		}
	}

	// Then catalogued plates not shadowed by configuration
	catalogued, err := store.ListPlates()
	if err != nil {
		log.Fatalf("Failed to list catalogued plates: %v", err)
	}
	for _, p := range catalogued {
		if registry.Has(p.ID) {
			log.Printf("  [%s] catalogued plate shadowed by configuration", p.ID)
			continue
		}
		rec, err := store.GetPlate(p.ID)
		if err == nil && rec != nil {
			err = b.registerCatalogued(ctx, rec)
		}
		if err != nil {
			log.Printf("  [%s] skipped: %v", p.ID, err)
		}
	}

	if len(registry.PlateIDs()) == 0 {
		if err := b.registerDemo(); err != nil {
			log.Fatalf("Failed to initialize demo plate: %v", err)
		}
	}

	// Background imports
	importManager := api.NewImportManager(api.ImportManagerConfig{Workers: 1})
	importManager.Executor = b.importPlate
	importManager.Start()
	defer importManager.Stop()

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Registry:      registry,
		Catalog:       store,
		CORSOrigins:   cfg.Server.CORSOrigins,
		ImportManager: importManager,
		Renderer:      render.NewPreviewRenderer(render.Config{Margin: 8}),
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CacheStats:    cacheManager.Stats,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
