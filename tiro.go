// Package tiro compiles SSA-form IR into verified bytecode modules: it
// wires the register allocator, function lowerer, module linker and
// (optionally) the static verifier into a single Compile entry point.
package tiro

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tiro-lang/tiro/internal/bytecode"
	"github.com/tiro-lang/tiro/internal/ir"
	"github.com/tiro-lang/tiro/internal/link"
	"github.com/tiro-lang/tiro/internal/lower"
	"github.com/tiro-lang/tiro/internal/verify"
)

// Config controls Compile's behavior.
type Config struct {
	logger           *zap.Logger
	verify           bool
	maxLocals        uint32
	maxContainerArgs uint32
}

// Option configures a Config.
type Option func(*Config)

// NewConfig builds a Config from opts, applied over defaults: no
// logging, verification enabled, and the spec's suggested implementation
// caps (2^16 locals, 2^20 container arguments).
func NewConfig(opts ...Option) Config {
	limits := verify.DefaultLimits()
	c := Config{
		logger:           zap.NewNop(),
		verify:           true,
		maxLocals:        limits.MaxLocals,
		maxContainerArgs: limits.MaxContainerArgs,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger sets the logger Compile uses for its per-phase debug
// lines. A nil logger is treated as a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger == nil {
			logger = zap.NewNop()
		}
		c.logger = logger
	}
}

// WithMaxLocals overrides the verifier's per-function local count cap.
func WithMaxLocals(max uint32) Option {
	return func(c *Config) { c.maxLocals = max }
}

// WithMaxContainerArgs overrides the verifier's container-construction
// argument count cap (array/tuple/set/map element counts).
func WithMaxContainerArgs(max uint32) Option {
	return func(c *Config) { c.maxContainerArgs = max }
}

// WithoutVerification skips the final verification pass. Compile runs
// verification by default; disabling it is only useful for inspecting
// modules a later pipeline stage is expected to reject.
func WithoutVerification() Option {
	return func(c *Config) { c.verify = false }
}

func (c Config) limits() verify.Limits {
	return verify.Limits{MaxLocals: c.maxLocals, MaxContainerArgs: c.maxContainerArgs}
}

// Compile lowers irModule into a linked bytecode.Module: register
// allocation and bytecode lowering run per function (internal/lower,
// which calls internal/regalloc), the results are merged by
// internal/link into a single module, and — unless WithoutVerification
// is set — internal/verify checks the result before it is returned.
//
// Internal compiler errors (IR-contract violations the allocator or
// lowerer detect, which indicate a bug in the code that produced
// irModule rather than a property of irModule itself) surface as
// panics from internal/regalloc and internal/lower; Compile recovers
// these at the API boundary and returns them as a plain error instead
// of letting them escape to the caller.
func Compile(irModule *ir.Module, opts ...Option) (mod *bytecode.Module, err error) {
	cfg := NewConfig(opts...)
	log := cfg.logger.Sugar()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tiro: internal compiler error: %v", r)
		}
	}()

	log.Debugw("lower", "module", irModule.Name, "functions", len(irModule.Functions))
	obj, err := lower.Module(irModule)
	if err != nil {
		return nil, fmt.Errorf("tiro: lowering module %q: %w", irModule.Name, err)
	}

	log.Debugw("link", "module", irModule.Name)
	mod, err = link.Link(cfg.logger, irModule, obj)
	if err != nil {
		return nil, fmt.Errorf("tiro: linking module %q: %w", irModule.Name, err)
	}

	if cfg.verify {
		log.Debugw("verify", "module", mod.Name)
		if err := verify.Verify(cfg.logger, mod, cfg.limits()); err != nil {
			return nil, fmt.Errorf("tiro: %w", err)
		}
	}

	return mod, nil
}
