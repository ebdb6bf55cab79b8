package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	StrategySimple   = "simple"
	StrategyEnhanced = "enhanced"
)

type Config struct {
	Log        LogConfig    `mapstructure:"log"`
	Output     OutputConfig `mapstructure:"output"`
	Thresholds Thresholds   `mapstructure:"thresholds"`
}

// LogConfig.Output is "stderr" or a file path. Results and error lines never carry logs.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type OutputConfig struct {
	Diagnostics bool `mapstructure:"diagnostics"`
}

// Thresholds is the immutable table every pipeline stage reads from. It is built once at
// start-up and passed by value into each component.
type Thresholds struct {
	Preprocess   PreprocessConfig   `mapstructure:"preprocess"`
	Segmentation SegmentationConfig `mapstructure:"segmentation"`
	Refine       RefineConfig       `mapstructure:"refine"`
	Confidence   ConfidenceConfig   `mapstructure:"confidence"`
}

type PreprocessConfig struct {
	Strategy            string  `mapstructure:"strategy"`
	BlurKernel          int     `mapstructure:"blur_kernel"`
	MaxDimension        int     `mapstructure:"max_dimension"`
	CLAHEClipLimit      float64 `mapstructure:"clahe_clip_limit"`
	CLAHETileSize       int     `mapstructure:"clahe_tile_size"`
	BilateralDiameter   int     `mapstructure:"bilateral_diameter"`
	BilateralSigmaColor float64 `mapstructure:"bilateral_sigma_color"`
	BilateralSigmaSpace float64 `mapstructure:"bilateral_sigma_space"`
}

// HSV bounds use OpenCV units: hue in [0,180], saturation and value in [0,255].
type HSV struct {
	H float64 `mapstructure:"h"`
	S float64 `mapstructure:"s"`
	V float64 `mapstructure:"v"`
}

// ColorRange is an inclusive per-channel band. Hue wraparound is expressed as two ranges.
type ColorRange struct {
	Lower HSV `mapstructure:"lower"`
	Upper HSV `mapstructure:"upper"`
}

type SegmentationConfig struct {
	Grass []ColorRange `mapstructure:"grass"`
	Dirt  []ColorRange `mapstructure:"dirt"`
}

type RefineConfig struct {
	KernelSize      int     `mapstructure:"kernel_size"`
	Open            bool    `mapstructure:"open"`
	MinAreaFraction float64 `mapstructure:"min_area_fraction"`
}

type ConfidenceConfig struct {
	Texture TextureConfig `mapstructure:"texture"`
	Blur    BlurConfig    `mapstructure:"blur"`
}

type TextureConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	GrassThreshold float64 `mapstructure:"grass_threshold"`
	MinContrast    float64 `mapstructure:"min_contrast"`
	Scale          float64 `mapstructure:"scale"`
}

type BlurConfig struct {
	Enabled            bool    `mapstructure:"enabled"`
	SharpnessThreshold float64 `mapstructure:"sharpness_threshold"`
	GrassFactor        float64 `mapstructure:"grass_factor"`
	DirtFactor         float64 `mapstructure:"dirt_factor"`
}

// Load reads a YAML file on top of the defaults. An empty path yields defaults plus
// TERRAIN_* environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TERRAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := Default()
	// Range lists replace the defaults wholesale instead of merging element by element.
	if v.IsSet("thresholds.segmentation.grass") {
		cfg.Thresholds.Segmentation.Grass = nil
	}
	if v.IsSet("thresholds.segmentation.dirt") {
		cfg.Thresholds.Segmentation.Dirt = nil
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("output.diagnostics", d.Output.Diagnostics)

	p := d.Thresholds.Preprocess
	v.SetDefault("thresholds.preprocess.strategy", p.Strategy)
	v.SetDefault("thresholds.preprocess.blur_kernel", p.BlurKernel)
	v.SetDefault("thresholds.preprocess.max_dimension", p.MaxDimension)
	v.SetDefault("thresholds.preprocess.clahe_clip_limit", p.CLAHEClipLimit)
	v.SetDefault("thresholds.preprocess.clahe_tile_size", p.CLAHETileSize)
	v.SetDefault("thresholds.preprocess.bilateral_diameter", p.BilateralDiameter)
	v.SetDefault("thresholds.preprocess.bilateral_sigma_color", p.BilateralSigmaColor)
	v.SetDefault("thresholds.preprocess.bilateral_sigma_space", p.BilateralSigmaSpace)

	r := d.Thresholds.Refine
	v.SetDefault("thresholds.refine.kernel_size", r.KernelSize)
	v.SetDefault("thresholds.refine.open", r.Open)
	v.SetDefault("thresholds.refine.min_area_fraction", r.MinAreaFraction)

	tx := d.Thresholds.Confidence.Texture
	v.SetDefault("thresholds.confidence.texture.enabled", tx.Enabled)
	v.SetDefault("thresholds.confidence.texture.grass_threshold", tx.GrassThreshold)
	v.SetDefault("thresholds.confidence.texture.min_contrast", tx.MinContrast)
	v.SetDefault("thresholds.confidence.texture.scale", tx.Scale)

	b := d.Thresholds.Confidence.Blur
	v.SetDefault("thresholds.confidence.blur.enabled", b.Enabled)
	v.SetDefault("thresholds.confidence.blur.sharpness_threshold", b.SharpnessThreshold)
	v.SetDefault("thresholds.confidence.blur.grass_factor", b.GrassFactor)
	v.SetDefault("thresholds.confidence.blur.dirt_factor", b.DirtFactor)
}

// Default is the tuning of the primary line loop: Gaussian 5x5, a 5x5 elliptical
// close, no opening and both confidence heuristics switched off.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Output: OutputConfig{
			Diagnostics: true,
		},
		Thresholds: DefaultThresholds(),
	}
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Preprocess: PreprocessConfig{
			Strategy:            StrategySimple,
			BlurKernel:          5,
			MaxDimension:        800,
			CLAHEClipLimit:      2.0,
			CLAHETileSize:       8,
			BilateralDiameter:   9,
			BilateralSigmaColor: 75,
			BilateralSigmaSpace: 75,
		},
		Segmentation: SegmentationConfig{
			Grass: []ColorRange{
				{Lower: HSV{30, 40, 40}, Upper: HSV{70, 255, 255}},
				{Lower: HSV{80, 40, 40}, Upper: HSV{100, 255, 255}},
			},
			Dirt: []ColorRange{
				{Lower: HSV{0, 50, 30}, Upper: HSV{20, 255, 200}},
				{Lower: HSV{160, 50, 30}, Upper: HSV{180, 255, 200}},
			},
		},
		Refine: RefineConfig{
			KernelSize:      5,
			Open:            false,
			MinAreaFraction: 0.001,
		},
		Confidence: ConfidenceConfig{
			Texture: TextureConfig{
				Enabled:        false,
				GrassThreshold: 20,
				MinContrast:    5,
				Scale:          0.7,
			},
			Blur: BlurConfig{
				Enabled:            false,
				SharpnessThreshold: 500,
				GrassFactor:        1.1,
				DirtFactor:         0.95,
			},
		},
	}
}

// Enhanced returns the thresholds of the enhanced variant: downscale, CLAHE, bilateral
// smoothing, close+open and both confidence heuristics.
func Enhanced() Thresholds {
	t := DefaultThresholds()
	t.Preprocess.Strategy = StrategyEnhanced
	t.Refine.KernelSize = 7
	t.Refine.Open = true
	t.Confidence.Texture.Enabled = true
	t.Confidence.Blur.Enabled = true
	return t
}
