package stereo

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/pyramid"
)

func TestDefaultParameters(t *testing.T) {
	t.Setenv("IMP_SOLVER", "")
	t.Setenv("IMP_PYRAMID_REUSE", "")
	t.Setenv("IMP_RELEASE_SOLVERS", "")

	p := DefaultParameters()
	require.Equal(t, HuberL1, p.Solver)
	require.Equal(t, float32(30), p.Lambda)
	require.Equal(t, float32(0.8), p.CTF.ScaleFactor)
	require.Equal(t, uint32(Unbounded), p.CTF.Levels)
	require.Equal(t, uint32(Unbounded), p.CTF.CoarsestLevel)
	require.Equal(t, uint32(0), p.CTF.FinestLevel)
	require.Equal(t, pyramid.ReusePreallocated, p.CTF.BufferReuse)
	require.False(t, p.CTF.ReleaseSolvers)
	require.NoError(t, p.Validate())
}

func TestDefaultParametersFromEnv(t *testing.T) {
	t.Setenv("IMP_SOLVER", "precond-huber-l1")
	t.Setenv("IMP_PYRAMID_REUSE", "on-the-fly")
	t.Setenv("IMP_RELEASE_SOLVERS", "1")

	p := DefaultParameters()
	require.Equal(t, PrecondHuberL1, p.Solver)
	require.Equal(t, pyramid.ReuseOnTheFly, p.CTF.BufferReuse)
	require.True(t, p.CTF.ReleaseSolvers)

	// ungueltige Werte fallen auf die Defaults zurueck
	t.Setenv("IMP_SOLVER", "nonsense")
	t.Setenv("IMP_PYRAMID_REUSE", "nonsense")
	p = DefaultParameters()
	require.Equal(t, HuberL1, p.Solver)
	require.Equal(t, pyramid.ReusePreallocated, p.CTF.BufferReuse)
}

func TestParameterOptions(t *testing.T) {
	p := NewParameters(
		WithSolver(PrecondHuberL1Weighted),
		WithLambda(12),
		WithEpsU(0.1),
		WithEdgeWeights(5, 0.5),
		WithOcclusionThreshold(0.2),
		WithScaleFactor(0.5),
		WithIterations(3, 40),
		WithLevels(4),
		WithLevelRange(3, 1),
		WithMedianFilter(true),
		WithSizeBound(16),
		WithInterpolation(core.InterpolateNearest),
		WithBufferReuse(pyramid.ReuseOnTheFly),
		WithReleaseSolvers(true),
		WithVerbose(0),
	)

	require.Equal(t, PrecondHuberL1Weighted, p.Solver)
	require.Equal(t, float32(12), p.Lambda)
	require.Equal(t, float32(0.1), p.EpsU)
	require.Equal(t, float32(5), p.EdgeAlpha)
	require.Equal(t, float32(0.5), p.EdgeBeta)
	require.Equal(t, float32(0.2), p.OcclusionThreshold)
	require.Equal(t, float32(0.5), p.CTF.ScaleFactor)
	require.Equal(t, uint32(3), p.CTF.Warps)
	require.Equal(t, uint32(40), p.CTF.Iters)
	require.Equal(t, uint32(4), p.CTF.Levels)
	require.Equal(t, uint32(3), p.CTF.CoarsestLevel)
	require.Equal(t, uint32(1), p.CTF.FinestLevel)
	require.True(t, p.CTF.ApplyMedianFilter)
	require.Equal(t, uint32(16), p.CTF.SizeBound)
	require.Equal(t, core.InterpolateNearest, p.CTF.Interpolation)
	require.Equal(t, pyramid.ReuseOnTheFly, p.CTF.BufferReuse)
	require.True(t, p.CTF.ReleaseSolvers)
	require.Equal(t, 0, p.Verbose)
	require.NoError(t, p.Validate())
}

func TestParametersValidate(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"unbekannter Solver", WithSolver("tv_l2")},
		{"lambda null", WithLambda(0)},
		{"lambda NaN", WithLambda(float32(math.NaN()))},
		{"eps negativ", WithEpsU(-1)},
		{"beta null", WithEdgeWeights(1, 0)},
		{"schwelle negativ", WithOcclusionThreshold(-0.1)},
		{"scale factor 1", WithScaleFactor(1)},
		{"scale factor 0", WithScaleFactor(0)},
		{"scale factor 1.2", WithScaleFactor(1.2)},
		{"keine warps", WithIterations(0, 10)},
		{"keine iters", WithIterations(10, 0)},
		{"keine levels", WithLevels(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParameters(tt.opt)
			err := p.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, core.ErrConfig), "erwartet ErrConfig, bekommen %v", err)
		})
	}
}

func TestLevelRange(t *testing.T) {
	tests := []struct {
		name             string
		coarsest, finest uint32
		n                int
		wantC, wantF     int
	}{
		{"volle Pyramide", Unbounded, 0, 5, 4, 0},
		{"explizit", 3, 1, 5, 3, 1},
		{"coarsest geklemmt", 10, 0, 5, 4, 0},
		{"finest geklemmt", Unbounded, 9, 5, 4, 4},
		{"finest ueber coarsest", 1, 3, 5, 1, 1},
		{"eine Stufe", Unbounded, 0, 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := CTF{CoarsestLevel: tt.coarsest, FinestLevel: tt.finest}
			gotC, gotF := c.levelRange(tt.n)
			if gotC != tt.wantC || gotF != tt.wantF {
				t.Errorf("erwartet [%d, %d], bekommen [%d, %d]", tt.wantC, tt.wantF, gotC, gotF)
			}
		})
	}
}

func TestMaxLevels(t *testing.T) {
	if got := (CTF{Levels: Unbounded}).maxLevels(); got != math.MaxInt32 {
		t.Errorf("erwartet MaxInt32, bekommen %d", got)
	}
	if got := (CTF{Levels: 6}).maxLevels(); got != 6 {
		t.Errorf("erwartet 6, bekommen %d", got)
	}
}

func TestParametersString(t *testing.T) {
	s := NewParameters(WithSolver(PrecondHuberL1), WithLevelRange(Unbounded, 2)).String()
	for _, want := range []string{"solver: precond_huber_l1", "coarsest level: max", "finest level: 2", "buffer reuse:"} {
		if !strings.Contains(s, want) {
			t.Errorf("erwartet %q in\n%s", want, s)
		}
	}
}

// ============================================================================
// Varianten
// ============================================================================

func TestParseSolverVariant(t *testing.T) {
	for in, want := range map[string]SolverVariant{
		"huber_l1":                  HuberL1,
		"Huber-L1":                  HuberL1,
		" precond_huber_l1 ":        PrecondHuberL1,
		"PRECOND-HUBER-L1-WEIGHTED": PrecondHuberL1Weighted,
		"epipolar_precond_huber_l1": EpipolarPrecondHuberL1,
	} {
		got, err := ParseSolverVariant(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestParseSolverVariantSuggestion(t *testing.T) {
	_, err := ParseSolverVariant("huber_l2")
	require.ErrorIs(t, err, core.ErrConfig)
	require.Contains(t, err.Error(), `did you mean "huber_l1"`)

	_, err = ParseSolverVariant("something completely different")
	require.ErrorIs(t, err, core.ErrConfig)
	require.NotContains(t, err.Error(), "did you mean")
}

func TestVariantCapabilities(t *testing.T) {
	for _, v := range Variants() {
		require.Equal(t, v == PrecondHuberL1Weighted, v.ProducesOcclusion(), v)
		require.Equal(t, v == EpipolarPrecondHuberL1, v.UsesPriors(), v)
	}
}

// ============================================================================
// Registry
// ============================================================================

func TestDefaultRegistry(t *testing.T) {
	require.Equal(t, Variants(), DefaultRegistry.List())
	for _, v := range Variants() {
		s, err := DefaultRegistry.Create(v)
		require.NoError(t, err)
		require.Equal(t, v, s.Variant())
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.Empty(t, r.List())

	_, err := r.Create(HuberL1)
	require.ErrorIs(t, err, ErrSolverNotFound)

	require.ErrorIs(t, r.Register(HuberL1, nil), ErrSolverFactoryNil)
	require.NoError(t, r.Register(PrecondHuberL1, func() Solver { return newPrecondHuberL1(false) }))
	require.NoError(t, r.Register(HuberL1, func() Solver { return newHuberL1() }))
	require.ErrorIs(t, r.Register(HuberL1, func() Solver { return newHuberL1() }), ErrSolverAlreadyExist)

	// Registrierungsreihenfolge
	require.Equal(t, []SolverVariant{PrecondHuberL1, HuberL1}, r.List())
	require.True(t, r.Has(HuberL1))

	require.True(t, r.Unregister(PrecondHuberL1))
	require.False(t, r.Unregister(PrecondHuberL1))
	require.Equal(t, []SolverVariant{HuberL1}, r.List())

	var regErr *RegistryError
	_, err = r.Create(PrecondHuberL1)
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, "create", regErr.Op)

	require.Panics(t, func() { r.MustRegister(HuberL1, func() Solver { return newHuberL1() }) })
}
