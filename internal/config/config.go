package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fxnlabs/matbench/internal/gpu"
	"github.com/fxnlabs/matbench/internal/kernels"
)

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
		// Format is "json" or "console".
		Format string `yaml:"format"`
	} `yaml:"logger"`
	Sizes []int `yaml:"sizes"`
	GPU   struct {
		Backend    string `yaml:"backend"`
		Repeat     int    `yaml:"repeat"`
		Timestamps bool   `yaml:"timestamps"`
	} `yaml:"gpu"`
	CPU struct {
		Formulations []string `yaml:"formulations"`
		Runs         int      `yaml:"runs"`
		// MaxSize caps the sizes all formulations run at. Larger sizes time
		// only the first formulation, once. Zero disables the cap.
		MaxSize int `yaml:"maxSize"`
	} `yaml:"cpu"`
	Verify struct {
		Iterations int `yaml:"iterations"`
		Samples    int `yaml:"samples"`
	} `yaml:"verify"`
	Report struct {
		Banner bool   `yaml:"banner"`
		JSON   string `yaml:"json"`
		Arrow  string `yaml:"arrow"`
	} `yaml:"report"`
	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var c Config
	c.Logger.Verbosity = "info"
	c.Logger.Format = "console"
	c.Sizes = []int{64, 4096}
	c.GPU.Backend = gpu.DefaultBackend
	c.GPU.Repeat = 1
	c.CPU.Formulations = []string{"indexed", "cursor", "sliced"}
	c.CPU.Runs = 5
	c.CPU.MaxSize = 1024
	c.Verify.Iterations = 4
	c.Verify.Samples = 5
	c.Report.Banner = true
	return &c
}

// LoadConfig reads a YAML file over the defaults and validates the result.
// An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Sizes) == 0 {
		errs = append(errs, errors.New("sizes: at least one size is required"))
	}
	for _, size := range c.Sizes {
		if size <= 0 || size%gpu.WorkgroupTile != 0 {
			errs = append(errs, fmt.Errorf("sizes: %d is not a positive multiple of %d", size, gpu.WorkgroupTile))
		}
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logger.format: %q is not json or console", c.Logger.Format))
	}

	if c.GPU.Backend == "" {
		errs = append(errs, errors.New("gpu.backend: required"))
	}
	if c.GPU.Repeat < 1 {
		errs = append(errs, fmt.Errorf("gpu.repeat: %d is less than 1", c.GPU.Repeat))
	}

	if _, err := kernels.Lookup(c.CPU.Formulations); err != nil {
		errs = append(errs, fmt.Errorf("cpu.formulations: %w", err))
	}
	if c.CPU.Runs < 1 {
		errs = append(errs, fmt.Errorf("cpu.runs: %d is less than 1", c.CPU.Runs))
	}
	if c.CPU.MaxSize < 0 {
		errs = append(errs, fmt.Errorf("cpu.maxSize: %d is negative", c.CPU.MaxSize))
	}

	if c.Verify.Iterations < 1 {
		errs = append(errs, fmt.Errorf("verify.iterations: %d is less than 1", c.Verify.Iterations))
	}
	if c.Verify.Samples < 0 {
		errs = append(errs, fmt.Errorf("verify.samples: %d is negative", c.Verify.Samples))
	}

	return errors.Join(errs...)
}
