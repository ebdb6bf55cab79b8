package filters

import (
	"terrain-classifier/internal/config"
	"terrain-classifier/internal/processing/chain"
)

// NewPreprocessor builds the noise and exposure chain for the configured strategy.
//
//	simple:   gaussian blur
//	enhanced: downscale -> CLAHE on L of Lab -> bilateral
func NewPreprocessor(cfg config.PreprocessConfig) *chain.ProcessingChain {
	if cfg.Strategy == config.StrategyEnhanced {
		return chain.NewProcessingChain(
			NewDownscaleFilter(cfg.MaxDimension),
			NewCLAHEFilter(cfg.CLAHEClipLimit, cfg.CLAHETileSize),
			NewBilateralFilter(cfg.BilateralDiameter, cfg.BilateralSigmaColor, cfg.BilateralSigmaSpace),
		)
	}

	return chain.NewProcessingChain(NewGaussianFilter(cfg.BlurKernel))
}
