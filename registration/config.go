// Package registration aligns a live point+normal map against a predicted one with projective
// point-to-plane ICP.
package registration

import (
	"math"

	"github.com/pkg/errors"
)

// Config tunes ProjectiveICP. Zero values fall back to DefaultConfig.
type Config struct {
	MaxIterations      int     `json:"max_iterations,omitempty"`
	Stride             int     `json:"stride,omitempty"`
	MinCorrespondences int     `json:"min_correspondences,omitempty"`
	ConvergenceEpsilon float64 `json:"convergence_epsilon,omitempty"`
	// RobustScale is the Tukey cutoff in units of the residuals' robust standard deviation.
	// A negative value disables robust weighting.
	RobustScale float64 `json:"robust_scale,omitempty"`
	// RobustFloor is the smallest Tukey cutoff in meters. Residuals below it are never rejected,
	// so a shared offset from camera motion is not mistaken for outliers.
	RobustFloor float64 `json:"robust_floor_m,omitempty"`
	// MaxCorrespondenceDistance rejects pairs farther apart than this many meters. Zero disables it.
	MaxCorrespondenceDistance float64 `json:"max_correspondence_distance_m,omitempty"`
}

// DefaultConfig returns the tracker defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:      20,
		Stride:             4,
		MinCorrespondences: 64,
		ConvergenceEpsilon: 1e-6,
		RobustScale:        4.685,
		RobustFloor:        0.05,
	}
}

// WithDefaults returns cfg with every zero field replaced by its default.
func (cfg Config) WithDefaults() Config {
	def := DefaultConfig()
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.Stride == 0 {
		cfg.Stride = def.Stride
	}
	if cfg.MinCorrespondences == 0 {
		cfg.MinCorrespondences = def.MinCorrespondences
	}
	if cfg.ConvergenceEpsilon == 0 {
		cfg.ConvergenceEpsilon = def.ConvergenceEpsilon
	}
	if cfg.RobustScale == 0 {
		cfg.RobustScale = def.RobustScale
	}
	if cfg.RobustFloor == 0 {
		cfg.RobustFloor = def.RobustFloor
	}
	return cfg
}

// Validate returns an error naming the first unusable field.
func (cfg Config) Validate() error {
	switch {
	case cfg.MaxIterations < 1:
		return errors.Errorf("max_iterations must be positive, got %d", cfg.MaxIterations)
	case cfg.Stride < 1:
		return errors.Errorf("stride must be positive, got %d", cfg.Stride)
	case cfg.MinCorrespondences < 6:
		return errors.Errorf("min_correspondences must be at least 6, got %d", cfg.MinCorrespondences)
	case !(cfg.ConvergenceEpsilon > 0):
		return errors.Errorf("convergence_epsilon must be positive, got %v", cfg.ConvergenceEpsilon)
	case math.IsNaN(cfg.RobustScale):
		return errors.New("robust_scale must be a number")
	case cfg.RobustFloor < 0 || math.IsNaN(cfg.RobustFloor):
		return errors.Errorf("robust_floor_m must not be negative, got %v", cfg.RobustFloor)
	case cfg.MaxCorrespondenceDistance < 0 || math.IsNaN(cfg.MaxCorrespondenceDistance):
		return errors.Errorf("max_correspondence_distance_m must not be negative, got %v", cfg.MaxCorrespondenceDistance)
	}
	return nil
}
