package jit_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/GriffinCanCode/typthon-jit/pkg/jit"
	"github.com/GriffinCanCode/typthon-jit/pkg/linker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	o, err := jit.ParseOptions([]byte(`
dump_initial_ir: true
dump_all_stages: true
optimization_level: 2
backend: interp
`))
	require.NoError(t, err)
	assert.True(t, o.DumpInitialIR)
	assert.False(t, o.DumpInitialLoweredForm)
	assert.True(t, o.DumpAllStages)
	assert.Equal(t, 2, o.OptimizationLevel)
	assert.Equal(t, jit.BackendInterp, o.Backend)

	o, err = jit.ParseOptions([]byte("keep_intermediate_artifacts: true\n"))
	require.NoError(t, err)
	assert.Equal(t, jit.BackendNative, o.Backend, "defaults survive partial files")
	assert.True(t, o.KeepIntermediates)

	tests := []struct {
		name string
		yaml string
	}{
		{"level too high", "optimization_level: 4"},
		{"negative level", "optimization_level: -1"},
		{"unknown backend", "backend: llvm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jit.ParseOptions([]byte(tt.yaml))
			assert.ErrorIs(t, err, jit.ErrInvalidOption)
		})
	}

	_, err = jit.ParseOptions([]byte("optimization_level: [1"))
	assert.Error(t, err)
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("optimization_level: 3\n"), 0o644))
	o, err := jit.LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 3, o.OptimizationLevel)

	_, err = jit.LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv(jit.EnvOptLevel, "2")
	t.Setenv(jit.EnvBackend, "interp")
	t.Setenv(jit.EnvDumpInitialIR, "true")
	o := jit.OptionsFromEnv()
	assert.Equal(t, 2, o.OptimizationLevel)
	assert.Equal(t, jit.BackendInterp, o.Backend)
	assert.True(t, o.DumpInitialIR)
	assert.False(t, o.KeepIntermediates)
}

func TestContextOptionSetters(t *testing.T) {
	ctx := jit.NewContext(jit.WithBackend(jit.BackendInterp))
	require.NoError(t, ctx.SetIntOption(jit.IntOptionOptimizationLevel, 3))
	require.NoError(t, ctx.SetBoolOption(jit.BoolOptionDumpInitialLoweredForm, true))
	assert.ErrorIs(t, ctx.SetBoolOption(jit.BoolOption(99), true), jit.ErrInvalidOption)

	o := ctx.Options()
	assert.Equal(t, 3, o.OptimizationLevel)
	assert.True(t, o.DumpInitialLoweredForm)
	assert.Equal(t, jit.BackendInterp, o.Backend)
}

func TestInvalidOptionFailsCompile(t *testing.T) {
	ctx := jit.NewContext()
	buildSquare(t, ctx)
	_, err := ctx.Compile(jit.WithOptimizationLevel(7))
	assert.ErrorIs(t, err, jit.ErrInvalidOption)
	assert.Equal(t, jit.StateFailed, ctx.State())
}

func TestDumps(t *testing.T) {
	var buf bytes.Buffer
	ctx := jit.NewContext()
	buildLoop(t, ctx)
	res, err := ctx.Compile(
		jit.WithBackend(jit.BackendInterp),
		jit.WithOptimizationLevel(1),
		jit.WithDumpInitialIR(true),
		jit.WithDumpInitialLoweredForm(true),
		jit.WithDumpAllStages(true),
		jit.WithDumpWriter(&buf),
	)
	require.NoError(t, err)
	defer res.Close()

	out := buf.String()
	assert.Contains(t, out, ";; initial.c")
	assert.Contains(t, out, "long\nloop_test (long n)\n{\n  long sum;\n  long i;\n")
	assert.Contains(t, out, "  sum = (long)0;\n")
	assert.Contains(t, out, "after:\n  return sum;\n")
	assert.Contains(t, out, "loop:\n  if (i >= n) goto after;\n")
	assert.Contains(t, out, "  sum += i * i;\n")
	assert.Contains(t, out, ";; lowered.ll")
	assert.Contains(t, out, "@loop_test")
	assert.Contains(t, out, ";; stage-01-constant-fold.ir")
	assert.Contains(t, out, ";; stage-03-dead-code-elim.ir")
	assert.Empty(t, res.ArtifactDir())
}

func TestKeepIntermediates(t *testing.T) {
	ctx := jit.NewContext()
	buildSquare(t, ctx)
	res, err := ctx.Compile(jit.WithKeepIntermediates(true), jit.WithDumpInitialIR(true))
	if !linker.NativeSupported() {
		assert.ErrorIs(t, err, jit.ErrBackend)
		return
	}
	require.NoError(t, err)
	defer res.Close()

	dir := res.ArtifactDir()
	require.NotEmpty(t, dir)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	assert.Contains(t, filepath.Base(dir), res.ID().String())

	initial, err := os.ReadFile(filepath.Join(dir, "initial.c"))
	require.NoError(t, err)
	assert.Contains(t, string(initial), "return x * x;")

	code, err := os.ReadFile(filepath.Join(dir, "square.bin"))
	require.NoError(t, err)
	assert.NotEmpty(t, code)
}

func TestDumpString(t *testing.T) {
	ctx := jit.NewContext()
	i := ctx.Type(jit.Int32)
	x, err := ctx.NewParam(i, "x")
	require.NoError(t, err)
	fn, err := ctx.NewFunction(jit.Internal, ctx.Type(jit.Bool), "check", x)
	require.NoError(t, err)
	k, err := ctx.NewConstant(i, -3)
	require.NoError(t, err)
	neg, err := ctx.NewUnaryOp(jit.Negate, i, x)
	require.NoError(t, err)
	lt, err := ctx.NewComparison(jit.LT, neg, k)
	require.NoError(t, err)
	require.NoError(t, fn.AddReturn(lt))

	assert.Equal(t, "static bool\ncheck (int32_t x)\n{\n  return (-x) < (int32_t)-3;\n}\n", fn.String())
}
