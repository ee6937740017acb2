package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/AnechkaShv/notecloud/internal/fonts"
	"github.com/AnechkaShv/notecloud/internal/imagecache"
	"github.com/AnechkaShv/notecloud/internal/kibela"
	"github.com/AnechkaShv/notecloud/internal/layout"
	"github.com/AnechkaShv/notecloud/internal/metrics"
	"github.com/AnechkaShv/notecloud/internal/render"
	"github.com/AnechkaShv/notecloud/internal/wordfreq"
)

const shutdownTimeout = 15 * time.Second

// japaneseSample is checked against the configured font at startup.
const japaneseSample = "猫語"

func main() {
	opts, err := NewOptions()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	opts.AddFlags(pflag.CommandLine)
	pflag.Parse()
	if err := opts.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, flush, err := newLogger(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer flush()

	if err := run(opts, log); err != nil {
		log.Error(err, "Word Cloud Service stopped")
		flush()
		os.Exit(1)
	}
}

func newLogger(opts *Options) (logr.Logger, func(), error) {
	cfg := zap.NewProductionConfig()
	if opts.ZapDevel {
		cfg = zap.NewDevelopmentConfig()
	}
	// logr verbosity n maps to zap level -n.
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-opts.LogVerbosity))
	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("build logger: %w", err)
	}
	return zapr.NewLogger(zl), func() { _ = zl.Sync() }, nil
}

func newDrawer(opts *Options) (Drawer, error) {
	cfg := opts.LayoutConfig()
	if opts.LayoutEngine == EngineWordclouds {
		cloud, err := render.NewCloud(opts.FontFile, cfg)
		if err != nil {
			return nil, err
		}
		return CloudDrawer{Cloud: cloud}, nil
	}

	font, err := fonts.Load(opts.FontFile)
	if err != nil {
		return nil, err
	}
	engine, err := layout.New(font, cfg)
	if err != nil {
		return nil, err
	}
	renderer, err := render.New(font, cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}
	return SpiralDrawer{Engine: engine, Renderer: renderer}, nil
}

// fontCoversJapanese reports whether the font at path can draw Japanese
// words. An empty path is the embedded Go Regular font.
func fontCoversJapanese(path string) (bool, error) {
	f, err := fonts.Load(path)
	if err != nil {
		return false, err
	}
	return f.Covers(japaneseSample), nil
}

func newRouter(h *WordCloudHandler, limiter *clientLimiter, log logr.Logger, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger(log))

	images := r.NewRoute().Subrouter()
	if limiter != nil {
		images.Use(limiter.middleware)
	}
	images.HandleFunc("/image/{key}", h.GetWordCloud).Methods(http.MethodGet, http.MethodHead)
	images.HandleFunc("/wordcloud/{key}", h.GetWordCloud).Methods(http.MethodGet, http.MethodHead)

	r.HandleFunc("/image/{key}", h.InvalidateWordCloud).Methods(http.MethodDelete)
	r.HandleFunc("/kibela-webhook", h.KibelaWebhook).Methods(http.MethodPost)
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

func run(opts *Options, log logr.Logger) error {
	analyzer, err := wordfreq.NewKagome()
	if err != nil {
		return fmt.Errorf("build tokenizer: %w", err)
	}
	drawer, err := newDrawer(opts)
	if err != nil {
		return fmt.Errorf("build renderer: %w", err)
	}
	if ok, err := fontCoversJapanese(opts.FontFile); err != nil {
		return fmt.Errorf("check font: %w", err)
	} else if !ok {
		log.Info("Font has no Japanese glyphs, words will render as missing-glyph boxes; set FONT_FILE to a CJK font",
			"fontFile", opts.FontFile)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	if opts.KibelaToken == "" {
		log.Info("KIBELA_TOKEN is empty, content requests will be anonymous")
	}
	client := kibela.NewClient(opts.Endpoint(), opts.KibelaToken, kibela.WithLogger(log.WithName("kibela")))
	resolver := kibela.NewResolver(client, opts.PathCacheTTL)

	cacheLog := log.WithName("cache")
	cache, err := imagecache.New(opts.CacheSize,
		imagecache.WithLogger(cacheLog),
		imagecache.WithMetrics(m),
		imagecache.WithEvictHook(func(e imagecache.Entry) {
			cacheLog.Info("LRU Cache evicted", "key", e.Key)
		}),
	)
	if err != nil {
		return err
	}

	generator := NewWordCloudGenerator(client, wordfreq.NewExtractor(analyzer, opts.ExtractorConfig()), drawer, opts.StrictOptimize, m)
	handler := NewWordCloudHandler(cache, generator.Generate, resolver, opts.RequestTimeout)

	var limiter *clientLimiter
	if opts.RateLimitRPS > 0 {
		if limiter, err = newClientLimiter(opts.RateLimitRPS, opts.RateLimitBurst); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(opts.Port),
		Handler:           newRouter(handler, limiter, log, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		resolver.Start()
		return nil
	})
	g.Go(func() error {
		log.Info("Word Cloud Service is running", "addr", srv.Addr, "endpoint", opts.Endpoint(), "cacheSize", opts.CacheSize)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		handler.Wait()
		resolver.Stop()
		return err
	})
	return g.Wait()
}
