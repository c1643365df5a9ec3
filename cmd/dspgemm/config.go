package main

import (
	"fmt"
	"os"

	"github.com/dspgemm/dspgemm"
	"gopkg.in/yaml.v3"
)

// validNeurons and validLayers are the Sparse DNN benchmark's supported
// problem sizes (spec.md §6).
var (
	validNeurons = map[int]bool{1024: true, 4096: true, 16384: true, 65536: true}
	validLayers  = map[int]bool{120: true, 480: true, 1920: true}
)

// RunConfig is the six-positional-argument CLI contract of spec.md §6,
// loadable from a YAML file via --config.
type RunConfig struct {
	Nneurons     int    `yaml:"nneurons"`
	Nlayers      int    `yaml:"nlayers"`
	InputPrefix  string `yaml:"inputPrefix"`
	LayerPrefix  string `yaml:"layerPrefix"`
	Parallelism  string `yaml:"parallelism"`
	InputType    string `yaml:"inputType"`
	NRanks       int    `yaml:"nranks"`
	NThreads     int    `yaml:"nthreads"`
}

// LoadRunConfig reads a YAML RunConfig from path.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config %s: %v", dspgemm.ErrIoFailure, path, err)
	}
	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing config %s: %v", dspgemm.ErrConfigInvalid, path, err)
	}
	return &cfg, nil
}

// Validate checks RunConfig against the taxonomy's ConfigInvalid rules.
func (c *RunConfig) Validate() error {
	if !validNeurons[c.Nneurons] {
		return fmt.Errorf("%w: nneurons %d not in {1024,4096,16384,65536}", dspgemm.ErrConfigInvalid, c.Nneurons)
	}
	if !validLayers[c.Nlayers] {
		return fmt.Errorf("%w: nlayers %d not in {120,480,1920}", dspgemm.ErrConfigInvalid, c.Nlayers)
	}
	if c.Parallelism != "data-data" && c.Parallelism != "data-model" {
		return fmt.Errorf("%w: parallelism %q not in {data-data,data-model}", dspgemm.ErrConfigInvalid, c.Parallelism)
	}
	if c.InputType != "text" && c.InputType != "binary" {
		return fmt.Errorf("%w: inputType %q not in {text,binary}", dspgemm.ErrConfigInvalid, c.InputType)
	}
	if c.NRanks < 1 {
		return fmt.Errorf("%w: nranks must be >= 1", dspgemm.ErrConfigInvalid)
	}
	if c.NThreads < 1 {
		return fmt.Errorf("%w: nthreads must be >= 1", dspgemm.ErrConfigInvalid)
	}
	return nil
}

// ParallelismValue translates the config's string field to a dspgemm.Parallelism.
func (c *RunConfig) ParallelismValue() dspgemm.Parallelism {
	if c.Parallelism == "data-data" {
		return dspgemm.DataData
	}
	return dspgemm.DataModel
}
