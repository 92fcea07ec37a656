package jit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/GriffinCanCode/typthon-jit/pkg/codegen"
	_ "github.com/GriffinCanCode/typthon-jit/pkg/codegen/amd64"
	_ "github.com/GriffinCanCode/typthon-jit/pkg/codegen/arm64"
	_ "github.com/GriffinCanCode/typthon-jit/pkg/codegen/riscv64"
	"github.com/GriffinCanCode/typthon-jit/pkg/interp"
	"github.com/GriffinCanCode/typthon-jit/pkg/ir"
	"github.com/GriffinCanCode/typthon-jit/pkg/linker"
	"github.com/GriffinCanCode/typthon-jit/pkg/logger"
	"github.com/GriffinCanCode/typthon-jit/pkg/optimizer"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Compile validates and compiles every function. It may be called once:
// afterwards the Context is in StateCompiled or StateFailed and rejects
// further changes. opts override the Context's options for this call.
func (c *Context) Compile(opts ...Option) (res *Result, err error) {
	if err := c.mutable(); err != nil {
		return nil, err
	}
	c.state = StateFailed
	o := c.opts
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	start := time.Now()
	logger.LogCompilerStart(id.String(), len(c.funcs), o.OptimizationLevel)
	defer func() {
		logger.LogCompilerComplete(id.String(), err == nil, time.Since(start).String())
	}()

	logger.LogPhase("validate")
	if err := c.validate(); err != nil {
		return nil, err
	}
	logger.LogPhaseComplete("validate")

	art, err := newArtifacts(id, o)
	if err != nil {
		return nil, &BackendError{Stage: "artifacts", Err: err}
	}
	if o.DumpInitialIR {
		art.dump("initial.c", c.Dump)
	}

	logger.LogPhase("lower")
	prog := c.lower()
	logger.LogPhaseComplete("lower")
	if o.DumpInitialLoweredForm {
		art.dump("lowered.ll", func(w io.Writer) error {
			_, err := io.WriteString(w, ir.LLVMText(prog))
			return err
		})
	}

	logger.LogPhase("optimize")
	var stageDump optimizer.DumpFunc
	if o.DumpAllStages {
		stage := 0
		stageDump = func(pass string, p *ir.Program) {
			stage++
			art.dump(fmt.Sprintf("stage-%02d-%s.ir", stage, pass), func(w io.Writer) error {
				return ir.Fprint(w, p)
			})
		}
	}
	optimizer.OptimizeWithDump(prog, o.OptimizationLevel, stageDump)
	logger.LogPhaseComplete("optimize")

	res = newResult(id, art.dir)
	if o.Backend == BackendInterp {
		res.prog = interp.New(prog)
	} else if err := res.native(prog, o, art); err != nil {
		return nil, err
	}
	if art.err != nil {
		res.Close()
		return nil, &BackendError{Stage: "artifacts", Err: art.err}
	}

	for _, f := range c.funcs {
		if f.vis != Exported {
			continue
		}
		cl := &Callable{res: res, name: f.name, ret: f.ret}
		for _, p := range f.params {
			cl.params = append(cl.params, p.typ)
		}
		if o.Backend == BackendInterp || res.interpreted[f.name] {
			cl.prog = res.prog
		} else if cl.entry, err = res.image.Addr(f.name); err != nil {
			res.Close()
			return nil, &BackendError{Stage: "link", Function: f.name, Err: err}
		}
		res.funcs[f.name] = cl
		res.names = append(res.names, f.name)
	}

	c.state = StateCompiled
	return res, nil
}

// native generates machine code for every function and links the image.
// Functions over the native frame or parameter limits run on the
// interpreter instead.
func (r *Result) native(prog *ir.Program, o Options, art *artifacts) error {
	if !linker.NativeSupported() {
		return &BackendError{Stage: "codegen", Err: errors.Wrapf(codegen.ErrUnsupportedPlatform, "%s/%s", runtime.GOOS, runtime.GOARCH)}
	}
	backend, err := codegen.LookupBackend(runtime.GOARCH)
	if err != nil {
		return &BackendError{Stage: "codegen", Err: err}
	}

	logger.LogPhase("codegen")
	objs := make([]*codegen.Object, len(prog.Functions))
	errs := make([]error, len(prog.Functions))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, fn := range prog.Functions {
		g.Go(func() error {
			objs[i], errs[i] = backend.Generate(fn, codegen.Options{OptLevel: o.OptimizationLevel})
			return nil
		})
	}
	_ = g.Wait()

	// the first hard failure is reported in declaration order
	var native []*codegen.Object
	for i, err := range errs {
		name := prog.Functions[i].Name
		switch {
		case err == nil:
			native = append(native, objs[i])
		case errors.Is(err, codegen.ErrFrameTooLarge), errors.Is(err, codegen.ErrTooManyParams):
			logger.Warn("Function exceeds native limits, interpreting it", "function", name, "error", err)
			r.interpreted[name] = true
		default:
			return &BackendError{Stage: "codegen", Function: name, Err: err}
		}
	}
	if len(r.interpreted) > 0 {
		r.prog = interp.New(prog)
	}
	logger.LogPhaseComplete("codegen")

	for _, obj := range native {
		r.objects[obj.Name] = obj
		if o.DumpAllStages {
			art.dump(obj.Name+".s", func(w io.Writer) error {
				_, err := io.WriteString(w, obj.Disassembly())
				return err
			})
		}
		if art.dir != "" {
			art.write(obj.Name+".bin", obj.Code)
		}
	}

	l := linker.New(runtime.GOARCH)
	for _, obj := range native {
		if err := l.AddObject(obj); err != nil {
			return &BackendError{Stage: "link", Function: obj.Name, Err: err}
		}
	}
	img, err := l.Link()
	if err != nil {
		return &BackendError{Stage: "link", Err: err}
	}
	r.attach(img)
	return nil
}

// artifacts routes dumps to files in a kept directory or to one writer.
// The first write error is kept and reported after compilation.
type artifacts struct {
	dir string
	w   io.Writer
	err error
}

func newArtifacts(id uuid.UUID, o Options) (*artifacts, error) {
	a := &artifacts{w: o.dumpWriter()}
	if !o.KeepIntermediates {
		return a, nil
	}
	a.dir = filepath.Join(os.TempDir(), "typthon-jit-"+id.String())
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating artifact directory")
	}
	logger.Info("Keeping intermediate artifacts", "dir", a.dir)
	return a, nil
}

func (a *artifacts) dump(name string, write func(io.Writer) error) {
	if a.err != nil {
		return
	}
	if a.dir == "" {
		if _, err := fmt.Fprintf(a.w, ";; %s\n", name); err != nil {
			a.err = err
			return
		}
		a.err = write(a.w)
		return
	}
	f, err := os.Create(filepath.Join(a.dir, name))
	if err != nil {
		a.err = err
		return
	}
	a.err = write(f)
	if err := f.Close(); a.err == nil {
		a.err = err
	}
}

func (a *artifacts) write(name string, data []byte) {
	if a.err == nil {
		a.err = os.WriteFile(filepath.Join(a.dir, name), data, 0o644)
	}
}
