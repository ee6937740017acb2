package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/AnechkaShv/notecloud/internal/imagecache"
	"github.com/AnechkaShv/notecloud/internal/kibela"
	"github.com/AnechkaShv/notecloud/internal/layout"
	"github.com/AnechkaShv/notecloud/internal/wordfreq"
)

// Layout engines.
const (
	EngineSpiral     = "spiral"
	EngineWordclouds = "wordclouds"
)

// Options is the service configuration. Defaults come from the environment
// and flags override them.
type Options struct {
	Port int

	KibelaTeam     string
	KibelaToken    string
	KibelaEndpoint string
	PathCacheTTL   time.Duration

	CacheSize      int
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	FontFile       string
	Width, Height  int
	Padding        float64
	FontMin        float64
	FontMax        float64
	SizeMode       string
	Rotation       string
	LayoutEngine   string
	StrictOptimize bool

	Categories  []string
	Stopwords   []string
	UnknownForm string
	Truncate    string

	LogVerbosity int
	ZapDevel     bool
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// envReader collects parse failures so every bad variable is reported at once.
type envReader struct {
	errs []error
}

func (e *envReader) int(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (e *envReader) bool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *envReader) list(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return splitList(v)
}

func splitList(s string) []string {
	out := []string{}
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// NewOptions returns the defaults overridden by environment variables.
func NewOptions() (*Options, error) {
	var env envReader
	lc := layout.DefaultConfig()
	opts := &Options{
		Port: env.int("PORT", 3000),

		KibelaTeam:     getEnv("KIBELA_TEAM", ""),
		KibelaToken:    getEnv("KIBELA_TOKEN", ""),
		KibelaEndpoint: getEnv("KIBELA_ENDPOINT", ""),
		PathCacheTTL:   env.duration("PATH_CACHE_TTL", kibela.DefaultPathTTL),

		CacheSize:      env.int("NUM_IMAGE_CACHE", imagecache.DefaultCapacity),
		RequestTimeout: env.duration("REQUEST_TIMEOUT", 30*time.Second),
		RateLimitRPS:   env.float("RATE_LIMIT_RPS", 10),
		RateLimitBurst: env.int("RATE_LIMIT_BURST", 20),

		FontFile:       getEnv("FONT_FILE", ""),
		Width:          env.int("CANVAS_WIDTH", lc.Width),
		Height:         env.int("CANVAS_HEIGHT", lc.Height),
		Padding:        env.float("PADDING", lc.Padding),
		FontMin:        env.float("FONT_MIN_SIZE", lc.FontMin),
		FontMax:        env.float("FONT_MAX_SIZE", lc.FontMax),
		SizeMode:       getEnv("SIZE_MODE", string(lc.SizeMode)),
		Rotation:       getEnv("ROTATION", string(lc.Rotation)),
		LayoutEngine:   getEnv("LAYOUT_ENGINE", EngineSpiral),
		StrictOptimize: env.bool("STRICT_OPTIMIZE", false),

		Categories:  env.list("TARGET_POS", wordfreq.DefaultCategories),
		Stopwords:   env.list("NG_WORDS", wordfreq.DefaultStopwords),
		UnknownForm: getEnv("UNKNOWN_FORM", string(wordfreq.UnknownDrop)),
		Truncate:    getEnv("TRUNCATE", string(wordfreq.TruncateFirst)),

		LogVerbosity: env.int("LOG_VERBOSITY", 0),
	}
	if err := errors.Join(env.errs...); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	return opts, nil
}

// AddFlags binds the options to flags on fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.Port, "port", o.Port, "HTTP listen port.")
	fs.StringVar(&o.KibelaTeam, "kibela-team", o.KibelaTeam, "Kibela team name, used to derive the API endpoint.")
	fs.StringVar(&o.KibelaEndpoint, "kibela-endpoint", o.KibelaEndpoint, "Kibela GraphQL endpoint. Overrides --kibela-team.")
	fs.DurationVar(&o.PathCacheTTL, "path-cache-ttl", o.PathCacheTTL, "How long a resolved note path is remembered.")
	fs.IntVar(&o.CacheSize, "cache-size", o.CacheSize, "Number of images kept in memory.")
	fs.DurationVar(&o.RequestTimeout, "request-timeout", o.RequestTimeout, "How long an image request waits for generation.")
	fs.Float64Var(&o.RateLimitRPS, "rate-limit-rps", o.RateLimitRPS, "Requests per second allowed per client. 0 disables limiting.")
	fs.IntVar(&o.RateLimitBurst, "rate-limit-burst", o.RateLimitBurst, "Burst allowed per client.")
	fs.StringVar(&o.FontFile, "font-file", o.FontFile, "TrueType font used for rendering. Empty uses the embedded Go font.")
	fs.IntVar(&o.Width, "width", o.Width, "Canvas width in pixels.")
	fs.IntVar(&o.Height, "height", o.Height, "Canvas height in pixels.")
	fs.Float64Var(&o.Padding, "padding", o.Padding, "Padding around each word in pixels.")
	fs.Float64Var(&o.FontMin, "font-min", o.FontMin, "Smallest font size.")
	fs.Float64Var(&o.FontMax, "font-max", o.FontMax, "Largest font size.")
	fs.StringVar(&o.SizeMode, "size-mode", o.SizeMode, "Font sizing: ratio or weighted.")
	fs.StringVar(&o.Rotation, "rotation", o.Rotation, "Word rotation: random or parity.")
	fs.StringVar(&o.LayoutEngine, "layout-engine", o.LayoutEngine, "Layout engine: spiral or wordclouds.")
	fs.BoolVar(&o.StrictOptimize, "strict-optimize", o.StrictOptimize, "Fail generation when PNG optimization fails.")
	fs.StringSliceVar(&o.Categories, "target-pos", o.Categories, "Grammatical categories to count.")
	fs.StringSliceVar(&o.Stopwords, "ng-words", o.Stopwords, "Words never counted.")
	fs.StringVar(&o.UnknownForm, "unknown-form", o.UnknownForm, "Tokens without a canonical form: drop or surface.")
	fs.StringVar(&o.Truncate, "truncate", o.Truncate, "Which 100 words survive: first or top.")
	fs.IntVarP(&o.LogVerbosity, "v", "v", o.LogVerbosity, "Log verbosity.")
	fs.BoolVar(&o.ZapDevel, "zap-devel", o.ZapDevel, "Human readable development logging.")
}

// Endpoint returns the configured GraphQL endpoint.
func (o *Options) Endpoint() string {
	if o.KibelaEndpoint != "" {
		return o.KibelaEndpoint
	}
	if o.KibelaTeam != "" {
		return kibela.EndpointForTeam(o.KibelaTeam)
	}
	return ""
}

// LayoutConfig returns the layout settings. Call Validate first.
func (o *Options) LayoutConfig() layout.Config {
	cfg := layout.DefaultConfig()
	cfg.Width, cfg.Height = o.Width, o.Height
	cfg.Padding = o.Padding
	cfg.FontMin, cfg.FontMax = o.FontMin, o.FontMax
	cfg.SizeMode = layout.SizeMode(o.SizeMode)
	cfg.Rotation = layout.RotationPolicy(o.Rotation)
	return cfg
}

// ExtractorConfig returns the frequency extraction settings. Call Validate
// first.
func (o *Options) ExtractorConfig() wordfreq.Config {
	return wordfreq.Config{
		Categories: o.Categories,
		Stopwords:  o.Stopwords,
		Unknown:    wordfreq.UnknownPolicy(o.UnknownForm),
		Truncate:   wordfreq.TruncatePolicy(o.Truncate),
		Limit:      wordfreq.DefaultLimit,
	}
}

// Validate checks the options for invalid or conflicting values.
func (o *Options) Validate() error {
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", o.Port)
	}
	if o.Endpoint() == "" {
		return errors.New("either KIBELA_TEAM or KIBELA_ENDPOINT must be set")
	}
	if o.CacheSize <= 0 {
		return fmt.Errorf("invalid cache size %d: must be positive", o.CacheSize)
	}
	if o.RequestTimeout <= 0 {
		return fmt.Errorf("invalid request timeout %v: must be positive", o.RequestTimeout)
	}
	if o.RateLimitRPS < 0 {
		return fmt.Errorf("invalid rate limit %v: must not be negative", o.RateLimitRPS)
	}
	if o.RateLimitRPS > 0 && o.RateLimitBurst <= 0 {
		return fmt.Errorf("invalid rate limit burst %d: must be positive", o.RateLimitBurst)
	}
	if len(o.Categories) == 0 {
		return errors.New("at least one target category is required")
	}
	if err := o.LayoutConfig().Validate(); err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	if _, err := wordfreq.ParseUnknownPolicy(o.UnknownForm); err != nil {
		return err
	}
	if _, err := wordfreq.ParseTruncatePolicy(o.Truncate); err != nil {
		return err
	}
	switch o.LayoutEngine {
	case EngineSpiral:
	case EngineWordclouds:
		if o.FontFile == "" {
			return errors.New("the wordclouds layout engine needs FONT_FILE")
		}
	default:
		return fmt.Errorf("unknown layout engine %q (want spiral or wordclouds)", o.LayoutEngine)
	}
	if o.LogVerbosity < 0 {
		return fmt.Errorf("invalid log verbosity %d: must be >= 0", o.LogVerbosity)
	}
	return nil
}
