package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/senas-lab/senas/internal/app"
	"github.com/senas-lab/senas/internal/config"
	"github.com/senas-lab/senas/internal/dataset"
	"github.com/senas-lab/senas/internal/detector"
	"github.com/senas-lab/senas/internal/knn"
	"github.com/senas-lab/senas/internal/metrics"
	"github.com/senas-lab/senas/internal/plugin"
	"github.com/senas-lab/senas/internal/server"
	"github.com/senas-lab/senas/internal/tray"
)

// runServe loads the dataset and serves the HTTP API. With -camera the
// recognizer runs headless and feeds the websocket, stream, plugins and tray.
func runServe(args []string) {
	f := newFlags("serve")
	useTray := f.set.Bool("tray", false, "show a system tray icon")
	cfg := f.load(args)
	live := f.passed("camera")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := openStore(cfg)
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	static := newDetector(cfg, 1, true)
	defer static.Close()

	ds, report, err := loadDataset(ctx, cfg, static, st, os.Stdout)
	switch {
	case errors.Is(err, dataset.ErrNoClasses):
		log.Printf("No valid classes in %s yet; serving an empty dataset", cfg.Dataset.Dir)
		ds = knn.NewDataset()
	case err != nil:
		log.Fatalf("Failed to load dataset: %v", err)
	}
	observeDataset(m, ds, report)

	// Without -camera the recognizer is only the model behind the API and
	// Run is never called.
	var liveDet detector.Detector
	if live {
		liveDet = newDetector(cfg, cfg.Classifier.MaxHands, false)
		defer liveDet.Close()
	}
	rec := app.NewRecognizer(newCamera(cfg), liveDet, nil, ds, app.RecognizerConfig{
		Mirror:           cfg.Camera.Mirror,
		K:                cfg.Classifier.K,
		UnknownThreshold: cfg.Classifier.UnknownThreshold,
		SmoothWindow:     cfg.Classifier.SmoothWindow,
		FPSWindow:        cfg.Overlay.FPSWindow,
	})

	var t *tray.Tray
	if *useTray {
		t = tray.New()
		t.SetDataset(len(ds.Labels()), ds.Len())
	}

	var reloadMu sync.Mutex
	reload := func(ctx context.Context) (*dataset.Report, error) {
		reloadMu.Lock()
		defer reloadMu.Unlock()

		ds, report, err := loadDataset(ctx, cfg, static, st, log.Writer())
		if err != nil {
			return report, err
		}
		rec.SetDataset(ds)
		observeDataset(m, ds, report)
		if t != nil {
			t.SetDataset(len(ds.Labels()), ds.Len())
		}
		log.Printf("Reloaded dataset: %d classes, %d samples", len(ds.Labels()), ds.Len())
		return report, nil
	}

	srvConfig := server.Config{
		StaticDir: staticDir(cfg),
		Store:     st,
		Model:     rec,
		Detector:  static,
		Reload:    reload,
		StreamFPS: cfg.Server.StreamFPS,
		Gatherer:  reg,
		Metrics:   m,
	}

	if live {
		preds := server.NewPredictionsHandler(cfg.Server.StreamFPS)
		frames := server.NewFrameBuffer()
		srvConfig.Predictions = preds
		srvConfig.Frames = frames

		rec.OnFrame(frames.Put)
		rec.Subscribe(preds.Publish)
		rec.Subscribe(func(ev app.Event) {
			m.ObserveFrame(ev.Smoothed, ev.DetectLatency, ev.FPS)
		})
		if d := newDispatcher(cfg); d != nil {
			defer d.Wait()
			rec.Subscribe(func(ev app.Event) {
				d.Handle(ev.Smoothed, ev.Handedness, ev.Prediction.MeanDistance)
			})
		}
		if t != nil {
			rec.Subscribe(func(ev app.Event) {
				if ev.Hand {
					t.SetLastSign(ev.Smoothed)
				}
			})
		}
		defer preds.Close()
	}

	if cfg.Dataset.Rescan != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.Dataset.Rescan, func() {
			if _, err := reload(ctx); err != nil {
				log.Printf("Scheduled rescan failed: %v", err)
			}
		}); err != nil {
			log.Fatalf("Invalid dataset.rescan schedule %q: %v", cfg.Dataset.Rescan, err)
		}
		c.Start()
		defer c.Stop()
		log.Printf("Rescanning %s on schedule %q", cfg.Dataset.Dir, cfg.Dataset.Rescan)
	}

	srv := server.New(srvConfig)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		return srv.Run(gctx, cfg.Server.Addr)
	})
	if live {
		g.Go(func() error {
			return rec.Run(gctx)
		})
	}

	if t != nil {
		t.OnToggle(rec.SetEnabled)
		t.OnReload(func() {
			if _, err := reload(ctx); err != nil {
				log.Printf("Reload failed: %v", err)
			}
		})
		t.OnQuit(stop)
		go func() {
			<-gctx.Done()
			t.Quit()
		}()
		t.Run()
		stop()
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func observeDataset(m *metrics.Metrics, ds *knn.Dataset, report *dataset.Report) {
	m.SetDataset(ds.Counts())
	if report == nil {
		return
	}
	skipped := make(map[string]int)
	for reason, n := range report.Skipped() {
		skipped[string(reason)] = n
	}
	m.SetSkipped(skipped)
}

// newDispatcher discovers plugins and binds them to signs. Returns nil when
// nothing is bound.
func newDispatcher(cfg *config.Config) *plugin.Dispatcher {
	if len(cfg.Plugins.Bindings) == 0 {
		return nil
	}

	bindings, err := plugin.ParseBindings(cfg.Plugins.Bindings)
	if err != nil {
		log.Fatalf("Invalid plugin bindings: %v", err)
	}

	manager := plugin.NewManager(cfg.Plugins.Dir)
	if err := manager.Discover(); err != nil {
		log.Printf("Failed to discover plugins in %s: %v", cfg.Plugins.Dir, err)
	}
	log.Printf("Loaded %d plugins from %s", len(manager.List()), manager.PluginDir())

	return plugin.NewDispatcher(manager, plugin.NewExecutor(cfg.Plugins.Timeout()), bindings)
}

// staticDir returns the configured web directory or the first of "web",
// "../web" and ~/.senas/web that exists.
func staticDir(cfg *config.Config) string {
	if cfg.Server.StaticDir != "" {
		return cfg.Server.StaticDir
	}

	candidates := []string{"web", "../web"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".senas", "web"))
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
