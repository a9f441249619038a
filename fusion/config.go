package fusion

import (
	"bytes"
	"encoding/json"
	"io"
	"math"

	"github.com/a8m/envsubst"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/kinfu/registration"
	"go.viam.com/kinfu/tsdf"
)

// Config describes a fusion session. Zero valued fields take their defaults.
type Config struct {
	VolumeSize   int       `json:"volume_size,omitempty" jsonschema:"description=voxels per volume edge"`
	VoxelUnit    float64   `json:"voxel_unit_m,omitempty" jsonschema:"description=voxel edge length in meters"`
	VolumeCenter []float64 `json:"volume_center_m,omitempty" jsonschema:"description=world position of the volume center,minItems=3,maxItems=3"`
	Truncation   float64   `json:"truncation_m,omitempty" jsonschema:"description=half width of the signed distance band in meters"`
	MaxWeight    float64   `json:"max_weight,omitempty" jsonschema:"description=cap on the evidence a voxel accumulates"`

	BilateralSigmaSpatial float64 `json:"bilateral_sigma_spatial,omitempty" jsonschema:"description=bilateral filter spatial sigma in pixels"`
	BilateralSigmaRange   float64 `json:"bilateral_sigma_range_m,omitempty" jsonschema:"description=bilateral filter range sigma in meters"`

	ICP     registration.Config `json:"icp"`
	RayCast tsdf.RayCastOptions `json:"raycast"`
}

// DefaultConfig returns a config for a 1.28m cube of 1cm voxels centered a meter in front of the
// base pose.
func DefaultConfig() Config {
	return Config{
		VolumeSize:            128,
		VoxelUnit:             0.01,
		VolumeCenter:          []float64{0, 0, 1},
		Truncation:            0.04,
		MaxWeight:             64,
		BilateralSigmaSpatial: 0.8,
		BilateralSigmaRange:   0.01,
		ICP:                   registration.DefaultConfig(),
		RayCast:               tsdf.DefaultRayCastOptions(),
	}
}

// withDefaults fills zero fields. An unset truncation is four voxels.
func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if cfg.VolumeSize == 0 {
		cfg.VolumeSize = def.VolumeSize
	}
	if cfg.VoxelUnit == 0 {
		cfg.VoxelUnit = def.VoxelUnit
	}
	if cfg.VolumeCenter == nil {
		cfg.VolumeCenter = def.VolumeCenter
	}
	if cfg.Truncation == 0 {
		cfg.Truncation = 4 * cfg.VoxelUnit
	}
	if cfg.MaxWeight == 0 {
		cfg.MaxWeight = def.MaxWeight
	}
	if cfg.BilateralSigmaSpatial == 0 {
		cfg.BilateralSigmaSpatial = def.BilateralSigmaSpatial
	}
	if cfg.BilateralSigmaRange == 0 {
		cfg.BilateralSigmaRange = def.BilateralSigmaRange
	}
	cfg.ICP = cfg.ICP.WithDefaults()
	if cfg.RayCast.MinDepth == 0 {
		cfg.RayCast.MinDepth = def.RayCast.MinDepth
	}
	if cfg.RayCast.StepFraction == 0 {
		cfg.RayCast.StepFraction = def.RayCast.StepFraction
	}
	return cfg
}

// Center returns the volume center as a vector.
func (cfg Config) Center() r3.Vector {
	if len(cfg.VolumeCenter) != 3 {
		return r3.Vector{}
	}
	return r3.Vector{X: cfg.VolumeCenter[0], Y: cfg.VolumeCenter[1], Z: cfg.VolumeCenter[2]}
}

func positive(x float64) bool {
	return x > 0 && !math.IsInf(x, 0)
}

// Validate ensures all parts of the config are valid. Every problem found is reported.
func (cfg *Config) Validate(path string) error {
	var err error
	if cfg.VolumeSize <= 0 {
		err = multierr.Append(err, utils.NewConfigValidationError(path,
			errors.Errorf("volume_size must be positive, got %d", cfg.VolumeSize)))
	}
	if !positive(cfg.VoxelUnit) {
		err = multierr.Append(err, utils.NewConfigValidationError(path,
			errors.Errorf("voxel_unit_m must be positive, got %v", cfg.VoxelUnit)))
	}
	if len(cfg.VolumeCenter) != 3 {
		err = multierr.Append(err, utils.NewConfigValidationError(path,
			errors.Errorf("volume_center_m must have 3 entries, got %d", len(cfg.VolumeCenter))))
	}
	if !positive(cfg.Truncation) {
		err = multierr.Append(err, utils.NewConfigValidationError(path,
			errors.Errorf("truncation_m must be positive, got %v", cfg.Truncation)))
	}
	if !(cfg.MaxWeight >= 1) {
		err = multierr.Append(err, utils.NewConfigValidationError(path,
			errors.Errorf("max_weight must be at least 1, got %v", cfg.MaxWeight)))
	}
	if !positive(cfg.BilateralSigmaSpatial) {
		err = multierr.Append(err, utils.NewConfigValidationError(path,
			errors.Errorf("bilateral_sigma_spatial must be positive, got %v", cfg.BilateralSigmaSpatial)))
	}
	if !positive(cfg.BilateralSigmaRange) {
		err = multierr.Append(err, utils.NewConfigValidationError(path,
			errors.Errorf("bilateral_sigma_range_m must be positive, got %v", cfg.BilateralSigmaRange)))
	}
	if icpErr := cfg.ICP.Validate(); icpErr != nil {
		err = multierr.Append(err, utils.NewConfigValidationError(path+".icp", icpErr))
	}
	if rcErr := cfg.RayCast.Validate(); rcErr != nil {
		err = multierr.Append(err, utils.NewConfigValidationError(path+".raycast", rcErr))
	}
	return err
}

// ReadConfig reads a config from the given file, substituting environment variables first.
func ReadConfig(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf))
}

// FromReader reads a config from the given reader. originalPath names the source in errors.
func FromReader(originalPath string, r io.Reader) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", originalPath)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate("kinfu"); err != nil {
		return nil, err
	}
	return &cfg, nil
}
