package main

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnechkaShv/notecloud/internal/layout"
	"github.com/AnechkaShv/notecloud/internal/wordfreq"
)

var configEnv = []string{
	"PORT", "KIBELA_TEAM", "KIBELA_TOKEN", "KIBELA_ENDPOINT", "PATH_CACHE_TTL",
	"NUM_IMAGE_CACHE", "REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"FONT_FILE", "CANVAS_WIDTH", "CANVAS_HEIGHT", "PADDING", "FONT_MIN_SIZE",
	"FONT_MAX_SIZE", "SIZE_MODE", "ROTATION", "LAYOUT_ENGINE", "STRICT_OPTIMIZE",
	"TARGET_POS", "NG_WORDS", "UNKNOWN_FORM", "TRUNCATE", "LOG_VERBOSITY",
}

// clearEnv unsets every variable the service reads for the duration of t.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func validOptions(t *testing.T) *Options {
	t.Helper()
	clearEnv(t)
	t.Setenv("KIBELA_TEAM", "acme")
	opts, err := NewOptions()
	require.NoError(t, err)
	return opts
}

func TestNewOptionsDefaults(t *testing.T) {
	opts := validOptions(t)

	assert.Equal(t, 3000, opts.Port)
	assert.Equal(t, 200, opts.CacheSize)
	assert.Equal(t, 30*time.Second, opts.RequestTimeout)
	assert.Equal(t, "https://acme.kibe.la/api/v1", opts.Endpoint())
	assert.Equal(t, EngineSpiral, opts.LayoutEngine)
	assert.False(t, opts.StrictOptimize)
	require.NoError(t, opts.Validate())

	if diff := cmp.Diff(layout.DefaultConfig(), opts.LayoutConfig()); diff != "" {
		t.Errorf("layout config mismatch (-want +got):\n%s", diff)
	}
	ec := opts.ExtractorConfig()
	assert.Equal(t, wordfreq.UnknownDrop, ec.Unknown)
	assert.Equal(t, wordfreq.TruncateFirst, ec.Truncate)
	assert.Equal(t, wordfreq.DefaultLimit, ec.Limit)
}

func TestNewOptionsFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8083")
	t.Setenv("KIBELA_ENDPOINT", "http://kibela.local/api")
	t.Setenv("NUM_IMAGE_CACHE", "50")
	t.Setenv("CANVAS_WIDTH", "800")
	t.Setenv("PADDING", "3.5")
	t.Setenv("STRICT_OPTIMIZE", "true")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("TARGET_POS", "名詞, 動詞")
	t.Setenv("NG_WORDS", "")
	t.Setenv("TRUNCATE", "top")

	opts, err := NewOptions()
	require.NoError(t, err)
	require.NoError(t, opts.Validate())

	assert.Equal(t, 8083, opts.Port)
	assert.Equal(t, "http://kibela.local/api", opts.Endpoint())
	assert.Equal(t, 50, opts.CacheSize)
	assert.Equal(t, 800, opts.LayoutConfig().Width)
	assert.Equal(t, 3.5, opts.LayoutConfig().Padding)
	assert.True(t, opts.StrictOptimize)
	assert.Equal(t, 5*time.Second, opts.RequestTimeout)
	assert.Equal(t, []string{"名詞", "動詞"}, opts.Categories)
	assert.Empty(t, opts.Stopwords)
	assert.Equal(t, wordfreq.TruncateTop, opts.ExtractorConfig().Truncate)
}

func TestNewOptionsRejectsMalformedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("NUM_IMAGE_CACHE", "lots")
	t.Setenv("REQUEST_TIMEOUT", "soon")

	_, err := NewOptions()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NUM_IMAGE_CACHE")
	assert.Contains(t, err.Error(), "REQUEST_TIMEOUT")
}

func TestAddFlagsOverridesEnv(t *testing.T) {
	opts := validOptions(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--port", "9000",
		"--cache-size", "7",
		"--layout-engine", "wordclouds",
		"--font-file", "/fonts/noto.ttf",
		"--rotation", "parity",
		"--target-pos", "名詞,形容詞",
		"-v", "2",
	}))
	require.NoError(t, opts.Validate())

	assert.Equal(t, 9000, opts.Port)
	assert.Equal(t, 7, opts.CacheSize)
	assert.Equal(t, EngineWordclouds, opts.LayoutEngine)
	assert.Equal(t, layout.RotateParity, opts.LayoutConfig().Rotation)
	assert.Equal(t, []string{"名詞", "形容詞"}, opts.Categories)
	assert.Equal(t, 2, opts.LogVerbosity)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"port", func(o *Options) { o.Port = 0 }},
		{"no endpoint", func(o *Options) { o.KibelaTeam = "" }},
		{"cache size", func(o *Options) { o.CacheSize = 0 }},
		{"timeout", func(o *Options) { o.RequestTimeout = 0 }},
		{"negative rate", func(o *Options) { o.RateLimitRPS = -1 }},
		{"zero burst", func(o *Options) { o.RateLimitBurst = 0 }},
		{"no categories", func(o *Options) { o.Categories = nil }},
		{"canvas", func(o *Options) { o.Width = 0 }},
		{"font range", func(o *Options) { o.FontMin, o.FontMax = 60, 50 }},
		{"size mode", func(o *Options) { o.SizeMode = "huge" }},
		{"rotation", func(o *Options) { o.Rotation = "spin" }},
		{"unknown form", func(o *Options) { o.UnknownForm = "guess" }},
		{"truncate", func(o *Options) { o.Truncate = "middle" }},
		{"engine", func(o *Options) { o.LayoutEngine = "force" }},
		{"wordclouds without font", func(o *Options) { o.LayoutEngine = EngineWordclouds }},
		{"verbosity", func(o *Options) { o.LogVerbosity = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions(t)
			tt.mutate(opts)
			assert.Error(t, opts.Validate())
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Empty(t, splitList(""))
}
