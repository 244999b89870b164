// Package config loads stamp detector settings from the environment.
//
// Values are read once at startup. A .env file in the working directory is
// loaded first when present; variables already set in the process environment
// win over the file. Every option has a default, so an empty environment yields
// a working configuration.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the detection engine and its surfaces.
type Config struct {
	// Stamp reference store
	StampDir       string
	MaxStamps      int
	RobustAugments bool
	AugBlurSigma   float64
	AugJPEGQuality int
	AugGrayscale   bool
	MaxDimension   int
	Workers        int

	// Decision policy
	ThresholdHi float64
	ThresholdLo float64
	MarginMin   float64
	MarginLo    float64
	NCCBand     float64
	SSIMBand    float64

	// Time budget
	TimeBudget          time.Duration
	LocatorMinBudget    time.Duration
	RenderPassMinBudget time.Duration

	// Document normalization
	RenderAlways   bool
	RenderFallback bool
	RenderDPI      float64
	RenderTopPages int
	MaxPages       int

	// Coarse matcher
	PrelocThreshold float64
	CoarseTopK      int

	// Spatial locator
	LocDownsampleWidth int
	LocBaseSize        int
	LocScales          []float64
	LocStride          int
	LocMaxPatches      int
	LocTopK            int

	// Surfaces
	HTTPAddr string
	LogLevel string
}

// Default returns the configuration used when no environment overrides exist.
func Default() *Config {
	return &Config{
		StampDir:       "public/stamps",
		MaxStamps:      64,
		RobustAugments: true,
		AugBlurSigma:   0.8,
		AugJPEGQuality: 60,
		AugGrayscale:   true,
		MaxDimension:   1600,
		Workers:        defaultWorkers(),

		ThresholdHi: 0.88,
		ThresholdLo: 0.80,
		MarginMin:   0.07,
		MarginLo:    0.05,
		NCCBand:     0.10,
		SSIMBand:    0.25,

		TimeBudget:          8000 * time.Millisecond,
		LocatorMinBudget:    300 * time.Millisecond,
		RenderPassMinBudget: 600 * time.Millisecond,

		RenderAlways:   true,
		RenderFallback: true,
		RenderDPI:      144,
		RenderTopPages: 3,
		MaxPages:       12,

		PrelocThreshold: 0.80,
		CoarseTopK:      6,

		LocDownsampleWidth: 900,
		LocBaseSize:        160,
		LocScales:          []float64{0.6, 0.8, 1.0, 1.25},
		LocStride:          28,
		LocMaxPatches:      360,
		LocTopK:            6,

		HTTPAddr: ":8080",
		LogLevel: "info",
	}
}

// Load reads .env (if any) and the process environment on top of Default.
func Load() (*Config, error) {
	// Missing .env is the normal case in containers
	_ = godotenv.Load()

	c := Default()

	c.StampDir = getEnv("STAMP_DIR", c.StampDir)
	c.MaxStamps = getInt("MAX_STAMPS", c.MaxStamps)
	c.RobustAugments = getBool("ROBUST_STAMP_AUGS", c.RobustAugments)
	c.AugBlurSigma = getFloat("AUG_BLUR_SIGMA", c.AugBlurSigma)
	c.AugJPEGQuality = getInt("AUG_JPEG_Q", c.AugJPEGQuality)
	c.AugGrayscale = getBool("AUG_GRAYSCALE", c.AugGrayscale)
	c.MaxDimension = getInt("MAX_DIMENSION", c.MaxDimension)
	c.Workers = getInt("STAMP_WORKERS", c.Workers)

	c.ThresholdHi = getFloat("THRESHOLD_HI", c.ThresholdHi)
	c.ThresholdLo = getFloat("THRESHOLD_LO", c.ThresholdLo)
	c.MarginMin = getFloat("MARGIN_MIN", c.MarginMin)
	c.MarginLo = getFloat("MARGIN_LO", c.MarginLo)
	c.NCCBand = getFloat("NCC_BAND", c.NCCBand)
	c.SSIMBand = getFloat("SSIM_BAND", c.SSIMBand)

	c.TimeBudget = getMillis("TIME_BUDGET_MS", c.TimeBudget)
	c.LocatorMinBudget = getMillis("LOC_MIN_BUDGET_MS", c.LocatorMinBudget)
	c.RenderPassMinBudget = getMillis("RENDER_PASS_MIN_BUDGET_MS", c.RenderPassMinBudget)

	c.RenderAlways = getBool("PDF_RENDER_ALWAYS", c.RenderAlways)
	c.RenderFallback = getBool("PDF_RENDER_FALLBACK", c.RenderFallback)
	c.RenderDPI = getFloat("PDF_RENDER_DPI", c.RenderDPI)
	c.RenderTopPages = getInt("PDF_RENDER_TOP_PAGES", c.RenderTopPages)
	c.MaxPages = getInt("MAX_PAGES", c.MaxPages)

	c.PrelocThreshold = getFloat("PRELOC_THRESHOLD", c.PrelocThreshold)
	c.CoarseTopK = getInt("COARSE_TOPK_SSIM", c.CoarseTopK)

	c.LocDownsampleWidth = getInt("LOC_DS_WIDTH", c.LocDownsampleWidth)
	c.LocBaseSize = getInt("LOC_BASE", c.LocBaseSize)
	c.LocScales = getFloatList("LOC_SCALES", c.LocScales)
	c.LocStride = getInt("LOC_STRIDE", c.LocStride)
	c.LocMaxPatches = getInt("LOC_MAX_PATCHES", c.LocMaxPatches)
	c.LocTopK = getInt("LOC_TOPK", c.LocTopK)

	c.HTTPAddr = getEnv("STAMP_HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = getEnv("STAMP_LOG_LEVEL", c.LogLevel)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports settings that would make the pipeline meaningless.
func (c *Config) Validate() error {
	if c.ThresholdLo > c.ThresholdHi {
		return fmt.Errorf("THRESHOLD_LO (%.3f) must not exceed THRESHOLD_HI (%.3f)", c.ThresholdLo, c.ThresholdHi)
	}
	if c.MarginLo > c.MarginMin {
		return fmt.Errorf("MARGIN_LO (%.3f) must not exceed MARGIN_MIN (%.3f)", c.MarginLo, c.MarginMin)
	}
	if c.MaxDimension <= 0 {
		return fmt.Errorf("MAX_DIMENSION must be positive, got %d", c.MaxDimension)
	}
	if c.MaxPages <= 0 || c.MaxStamps <= 0 {
		return fmt.Errorf("MAX_PAGES and MAX_STAMPS must be positive")
	}
	if c.AugJPEGQuality < 1 || c.AugJPEGQuality > 100 {
		return fmt.Errorf("AUG_JPEG_Q must be in 1..100, got %d", c.AugJPEGQuality)
	}
	if c.TimeBudget < 0 {
		return fmt.Errorf("TIME_BUDGET_MS must not be negative")
	}
	if len(c.LocScales) == 0 {
		return fmt.Errorf("LOC_SCALES must list at least one scale")
	}
	if c.LocStride <= 0 || c.LocBaseSize <= 0 || c.LocDownsampleWidth <= 0 {
		return fmt.Errorf("locator stride, base size and downsample width must be positive")
	}
	if c.CoarseTopK <= 0 || c.LocTopK <= 0 {
		return fmt.Errorf("COARSE_TOPK_SSIM and LOC_TOPK must be positive")
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return nil
}

func defaultWorkers() int {
	return max(1, min(8, runtime.NumCPU()))
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultVal
	}
	return n
}

func getFloat(key string, defaultVal float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getMillis(key string, defaultVal time.Duration) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultVal
	}
	return time.Duration(n) * time.Millisecond
}

// getBool accepts 1/0/true/false; anything else keeps the default.
func getBool(key string, defaultVal bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true":
		return true
	case "0", "false":
		return false
	}
	return defaultVal
}

func getFloatList(key string, defaultVal []float64) []float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal
	}
	var out []float64
	for _, part := range strings.Split(raw, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || f <= 0 {
			return defaultVal
		}
		out = append(out, f)
	}
	return out
}
