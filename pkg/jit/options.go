package jit

import (
	"io"
	"os"

	"github.com/GriffinCanCode/typthon-jit/pkg/optimizer"
	"github.com/pkg/errors"
	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// Backend selects how compiled functions run.
type Backend string

const (
	BackendNative Backend = "native" // machine code for runtime.GOARCH
	BackendInterp Backend = "interp" // portable interpreter
)

// Options configures one compilation.
type Options struct {
	DumpInitialIR          bool    `yaml:"dump_initial_ir"`
	DumpInitialLoweredForm bool    `yaml:"dump_initial_lowered_form"`
	DumpAllStages          bool    `yaml:"dump_all_stages"`
	KeepIntermediates      bool    `yaml:"keep_intermediate_artifacts"`
	OptimizationLevel      int     `yaml:"optimization_level"`
	Backend                Backend `yaml:"backend"`

	// DumpWriter receives dumps unless KeepIntermediates is set.
	// Defaults to stderr.
	DumpWriter io.Writer `yaml:"-"`
}

// DefaultOptions returns the options a new Context starts with.
func DefaultOptions() Options {
	return Options{Backend: BackendNative}
}

// Validate reports an out-of-range level or unknown backend.
func (o Options) Validate() error {
	if o.OptimizationLevel < 0 || o.OptimizationLevel > optimizer.MaxLevel {
		return errors.Wrapf(ErrInvalidOption, "optimization level %d, want 0-%d", o.OptimizationLevel, optimizer.MaxLevel)
	}
	switch o.Backend {
	case BackendNative, BackendInterp:
	default:
		return errors.Wrapf(ErrInvalidOption, "backend %q", o.Backend)
	}
	return nil
}

func (o Options) dumpWriter() io.Writer {
	if o.DumpWriter != nil {
		return o.DumpWriter
	}
	return os.Stderr
}

// Environment variables read by OptionsFromEnv.
const (
	EnvDumpInitialIR = "TYPTHON_JIT_DUMP_INITIAL_IR"
	EnvDumpLowered   = "TYPTHON_JIT_DUMP_LOWERED"
	EnvDumpAll       = "TYPTHON_JIT_DUMP_ALL"
	EnvKeep          = "TYPTHON_JIT_KEEP"
	EnvOptLevel      = "TYPTHON_JIT_OPT_LEVEL"
	EnvBackend       = "TYPTHON_JIT_BACKEND"
)

// OptionsFromEnv returns DefaultOptions overridden by whichever
// TYPTHON_JIT_* variables are set.
func OptionsFromEnv() Options {
	o := DefaultOptions()
	for name, field := range map[string]*bool{
		EnvDumpInitialIR: &o.DumpInitialIR,
		EnvDumpLowered:   &o.DumpInitialLoweredForm,
		EnvDumpAll:       &o.DumpAllStages,
		EnvKeep:          &o.KeepIntermediates,
	} {
		if env.Has(name) {
			*field = env.Bool(name)
		}
	}
	o.OptimizationLevel = env.Int(EnvOptLevel, o.OptimizationLevel)
	o.Backend = Backend(env.Str(EnvBackend, string(o.Backend)))
	return o
}

// ParseOptions decodes YAML over DefaultOptions and validates the result.
func ParseOptions(data []byte) (Options, error) {
	o := DefaultOptions()
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, errors.Wrap(err, "parsing options")
	}
	if err := o.Validate(); err != nil {
		return o, err
	}
	return o, nil
}

// LoadOptions reads a YAML options file.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultOptions(), errors.Wrap(err, "reading options")
	}
	o, err := ParseOptions(data)
	return o, errors.Wrap(err, path)
}

// Option adjusts Options for NewContext or Compile.
type Option func(*Options)

func WithOptimizationLevel(level int) Option {
	return func(o *Options) { o.OptimizationLevel = level }
}

func WithDumpInitialIR(on bool) Option {
	return func(o *Options) { o.DumpInitialIR = on }
}

func WithDumpInitialLoweredForm(on bool) Option {
	return func(o *Options) { o.DumpInitialLoweredForm = on }
}

func WithDumpAllStages(on bool) Option {
	return func(o *Options) { o.DumpAllStages = on }
}

func WithKeepIntermediates(on bool) Option {
	return func(o *Options) { o.KeepIntermediates = on }
}

func WithBackend(b Backend) Option {
	return func(o *Options) { o.Backend = b }
}

func WithDumpWriter(w io.Writer) Option {
	return func(o *Options) { o.DumpWriter = w }
}

// WithOptions replaces every option, keeping the current DumpWriter when
// opts has none.
func WithOptions(opts Options) Option {
	return func(o *Options) {
		w := o.DumpWriter
		*o = opts
		if o.DumpWriter == nil {
			o.DumpWriter = w
		}
	}
}

// BoolOption names a boolean setting for SetBoolOption.
type BoolOption int

const (
	BoolOptionDumpInitialIR BoolOption = iota
	BoolOptionDumpInitialLoweredForm
	BoolOptionDumpAllStages
	BoolOptionKeepIntermediates
)

// IntOption names an integer setting for SetIntOption.
type IntOption int

const (
	IntOptionOptimizationLevel IntOption = iota
)

// SetBoolOption changes a boolean default of the Context.
func (c *Context) SetBoolOption(opt BoolOption, on bool) error {
	if err := c.mutable(); err != nil {
		return err
	}
	switch opt {
	case BoolOptionDumpInitialIR:
		c.opts.DumpInitialIR = on
	case BoolOptionDumpInitialLoweredForm:
		c.opts.DumpInitialLoweredForm = on
	case BoolOptionDumpAllStages:
		c.opts.DumpAllStages = on
	case BoolOptionKeepIntermediates:
		c.opts.KeepIntermediates = on
	default:
		return errors.Wrapf(ErrInvalidOption, "bool option %d", int(opt))
	}
	return nil
}

// SetIntOption changes an integer default of the Context. Range checks
// happen at Compile.
func (c *Context) SetIntOption(opt IntOption, v int) error {
	if err := c.mutable(); err != nil {
		return err
	}
	if opt != IntOptionOptimizationLevel {
		return errors.Wrapf(ErrInvalidOption, "int option %d", int(opt))
	}
	c.opts.OptimizationLevel = v
	return nil
}
