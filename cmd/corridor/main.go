package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/corridor.report/internal/api"
	"github.com/banshee-data/corridor.report/internal/config"
	"github.com/banshee-data/corridor.report/internal/db"
	"github.com/banshee-data/corridor.report/internal/engine"
	"github.com/banshee-data/corridor.report/internal/report"
	"github.com/banshee-data/corridor.report/internal/sim"
	"github.com/banshee-data/corridor.report/internal/units"
	"github.com/banshee-data/corridor.report/internal/version"
)

var (
	configFile  = flag.String("config", config.ExampleConfigPath, "Path to the run configuration (JSON)")
	dbFile      = flag.String("db", "corridor.db", "Path to the SQLite run database")
	outDir      = flag.String("out", "", "Directory for PNG plots and the HTML report (empty disables)")
	devMode     = flag.Bool("dev", false, "Run against the in-memory demo engine instead of the bridge")
	comment     = flag.String("comment", "", "Comment stored with the run (overrides the config)")
	displayUnit = flag.String("units", units.KMPH, "Travel speed units served by the API")
	listen      = flag.String("listen", "", "Serve the API on this address after the run")
	serveOnly   = flag.Bool("serve-only", false, "Skip the run and only serve stored runs")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

type options struct {
	ConfigPath string
	OutDir     string
	Dev        bool
	Comment    string
}

// connect returns the engine for cfg: the demo fake in dev mode, the TCP
// bridge otherwise. The demo network carries controllers as given.
func connect(ctx context.Context, cfg *config.RunConfig, controllers []engine.Controller, dev bool) (engine.Engine, error) {
	if dev {
		f := engine.NewFake(engine.DemoNetwork(controllers))
		f.Fill = engine.DemoReadings
		return f, nil
	}
	c, err := engine.Dial(ctx, cfg.GetEngineAddress(), cfg.GetEngineTimeout())
	if err != nil {
		return nil, err
	}
	return c, nil
}

// runOnce executes one configured run and stores it.
func runOnce(ctx context.Context, store *db.DB, opts options) (*sim.Result, error) {
	cfg, err := config.LoadRunConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	plans, err := cfg.Plans()
	if err != nil {
		return nil, err
	}

	eng, err := connect(ctx, cfg, sim.Controllers(plans), opts.Dev)
	if err != nil {
		return nil, fmt.Errorf("connect engine: %w", err)
	}
	defer eng.Close()

	drv, err := sim.NewDriver(eng, plans, cfg.EngineSettings())
	if err != nil {
		return nil, err
	}
	res, err := drv.Run(ctx)
	if err != nil {
		return nil, err
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	meta := db.RunMeta{Comment: cfg.GetComment(), Version: version.String(), Config: cfgJSON}
	if opts.Comment != "" {
		meta.Comment = opts.Comment
	}
	if err := store.SaveRun(ctx, res, meta); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	log.Printf("stored run %s (%d schedule instants, horizon %ds)", res.ID, res.ScheduleLength, res.Horizon)

	if opts.OutDir != "" {
		if err := render(opts.OutDir, res, meta.Comment); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func render(dir string, res *sim.Result, runComment string) error {
	files, err := report.SavePNGs(dir, res.Layout, res.Summary)
	if err != nil {
		return fmt.Errorf("render plots: %w", err)
	}

	htmlPath := filepath.Join(dir, "report.html")
	f, err := os.Create(htmlPath)
	if err != nil {
		return err
	}
	info := report.RunInfo{ID: res.ID, Comment: runComment, Horizon: res.Horizon}
	if err := report.RenderHTML(f, info, res.Layout, res.Summary); err != nil {
		f.Close()
		return fmt.Errorf("render report: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Printf("wrote %d plots and %s", len(files), htmlPath)
	return nil
}

func serve(ctx context.Context, store *db.DB, addr, unit string) error {
	mux := http.NewServeMux()
	if err := store.AttachAdminRoutes(mux); err != nil {
		return fmt.Errorf("attach admin routes: %w", err)
	}
	mux.Handle("/api/", api.NewServer(store, unit).ServeMux())

	server := &http.Server{
		Addr:    addr,
		Handler: api.LoggingMiddleware(mux),
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("serving runs on %s", addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *serveOnly && *listen == "" {
		log.Fatal("-serve-only requires -listen")
	}
	if !units.IsValid(*displayUnit) {
		log.Fatalf("invalid -units %q, must be one of: %s", *displayUnit, units.GetValidUnitsString())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if args := flag.Args(); len(args) > 0 {
		if args[0] != "migrate" {
			log.Fatalf("unknown command %q", args[0])
		}
		if err := runMigrate(args[1:], store, os.Stdout); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		return
	}

	if !*serveOnly {
		opts := options{ConfigPath: *configFile, OutDir: *outDir, Dev: *devMode, Comment: *comment}
		if _, err := runOnce(ctx, store, opts); err != nil {
			log.Fatalf("run failed: %v", err)
		}
	}

	if *listen != "" {
		if err := serve(ctx, store, *listen, *displayUnit); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}
}
