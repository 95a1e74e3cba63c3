// Command run finds ground states of transverse field Ising chains by
// imaginary time evolution, storing per-bond diagnostics in SQLite.
package main

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/fumin/tdvp"
	"github.com/fumin/tdvp/mps"
	"github.com/fumin/tdvp/rundb"
)

// Config holds all configuration of the run.
type Config struct {
	RunDir  string  `koanf:"dir"`
	L       int     `koanf:"l"`
	Steps   int     `koanf:"steps"`
	Dt      float64 `koanf:"dt"`
	BondDim int     `koanf:"bond"`
	Cutoff  float64 `koanf:"cutoff"`
	Verbose int     `koanf:"verbose"`
}

// Load loads configuration from defaults, config file, environment
// variables, and flags, in increasing priority.
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"dir":     filepath.Join("runs", "tdvp"),
		"l":       8,
		"steps":   300,
		"dt":      0.1,
		"bond":    16,
		"cutoff":  1e-10,
		"verbose": 0,
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, errors.Wrap(err, "")
	}

	// The config file is optional.
	_ = k.Load(file.Provider("tdvp.toml"), toml.Parser())

	if err := k.Load(env.Provider("TDVP_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, "TDVP_")), "_", ".")
	}), nil); err != nil {
		return nil, errors.Wrap(err, "")
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return &cfg, nil
}

type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.Errorf("not implemented")
}

type result struct {
	h             float64
	energy        complex64
	magnetization complex64
}

func solve(cfg *Config, h float64) (result, error) {
	res := result{h: h}

	tree := mps.Ising(cfg.L, complex(float32(h), 0))
	ws, err := tree.MPO(cfg.L)
	if err != nil {
		return res, errors.Wrap(err, "")
	}
	ms := mps.RandMPS(ws, cfg.BondDim)
	envr := mps.NewEnvironment(ws, ms)

	db, err := rundb.Open(filepath.Join(cfg.RunDir, fmt.Sprintf("%f.db", h)))
	if err != nil {
		return res, errors.Wrap(err, "")
	}
	defer db.Close()

	// Imaginary time evolution towards the ground state.
	dt := complex(float32(-cfg.Dt), 0)
	opt := tdvp.NewSweepOptions().
		Truncation(mps.Truncation{Cutoff: cfg.Cutoff, MaxDim: cfg.BondDim}).
		Verbose(cfg.Verbose)
	for step := range cfg.Steps {
		fwd, bwd, err := tdvp.Sweep(envr, dt, opt)
		if err != nil {
			return res, errors.Wrap(err, fmt.Sprintf("step %d", step))
		}
		if err := db.InsertSweep(step, false, fwd); err != nil {
			return res, errors.Wrap(err, "")
		}
		if err := db.InsertSweep(step, true, bwd); err != nil {
			return res, errors.Wrap(err, "")
		}
	}
	res.energy = envr.Expectation()

	mzTree := mps.MagnetizationZ(cfg.L)
	mzWs, err := mzTree.MPO(cfg.L)
	if err != nil {
		return res, errors.Wrap(err, "")
	}
	mzEnv := mps.NewEnvironment(mzWs, mps.Clone(envr.Ms))
	res.magnetization = mzEnv.Expectation() / complex(float32(cfg.L), 0)

	return res, nil
}

func main() {
	f := pflag.NewFlagSet("run", pflag.ExitOnError)
	f.String("dir", filepath.Join("runs", "tdvp"), "run directory")
	f.Int("l", 8, "number of sites")
	f.Int("steps", 300, "number of sweeps")
	f.Float64("dt", 0.1, "imaginary time step")
	f.Int("bond", 16, "maximum bond dimension")
	f.Float64("cutoff", 1e-10, "relative singular value cutoff")
	f.Int("verbose", 0, "diagnostic logging level")
	if err := f.Parse(os.Args[1:]); err != nil {
		log.Fatalf("%+v", err)
	}
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(f); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr(f *pflag.FlagSet) error {
	cfg, err := Load(f)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := os.MkdirAll(cfg.RunDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}

	// Transverse fields around the critical point h=1.
	hs := make([]float64, 0)
	for _, hl := range []float64{-2, -1, -0.5, -0.2, -0.1, 0, 0.1, 0.2, 0.5, 1, 2} {
		hs = append(hs, math.Pow(10, hl))
	}

	results := make([]result, 0, len(hs))
	for _, h := range hs {
		res, err := solve(cfg, h)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("%f", h))
		}
		results = append(results, res)
		log.Printf("h %f energy %f magnetization %f", h, real(res.energy), real(res.magnetization))
	}

	fmt.Printf("h,energy,magnetization\n")
	for _, res := range results {
		fmt.Printf("%f,%f,%f\n", res.h, real(res.energy), real(res.magnetization))
	}
	return nil
}
