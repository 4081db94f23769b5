package stereo

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/7blacky7/imp/core"
)

// pattern ist ein glattes Testmuster mit Werten in [0, 1].
func pattern(x, y float64) float32 {
	return float32(0.5 + 0.25*math.Sin(0.2*x) + 0.2*math.Cos(0.15*y+0.3*math.Sin(0.05*x)))
}

// shiftedPair erzeugt I0(x) = f(x) und I1(x) = f(x - d).
func shiftedPair(t *testing.T, w, h int, d float64) (*core.Image32fC1, *core.Image32fC1) {
	t.Helper()
	i0, err := core.NewDeviceImage[float32](w, h)
	require.NoError(t, err)
	i1, err := core.NewDeviceImage[float32](w, h)
	require.NoError(t, err)
	for y := range h {
		for x := range w {
			i0.Set(x, y, pattern(float64(x), float64(y)))
			i1.Set(x, y, pattern(float64(x)-d, float64(y)))
		}
	}
	return i0, i1
}

// interiorMean mittelt das Feld ohne Rand der Breite border.
func interiorMean(m *core.Image32fC1, border int) float64 {
	var sum float64
	var n int
	for y := border; y < m.Height()-border; y++ {
		for x := border; x < m.Width()-border; x++ {
			sum += float64(m.At(x, y))
			n++
		}
	}
	return sum / float64(n)
}

func TestSolversRecoverShift(t *testing.T) {
	const shift = 1.5
	i0, i1 := shiftedPair(t, 48, 32, shift)
	level := LevelData{Level: 0, Scale: 1, I0: i0, I1: i1}
	params := NewParameters(WithIterations(10, 100), WithVerbose(0))

	for _, v := range Variants() {
		t.Run(string(v), func(t *testing.T) {
			s, err := DefaultRegistry.Create(v)
			require.NoError(t, err)
			defer s.Release()

			res, err := s.Solve(context.Background(), nil, level, nil, nil, params)
			require.NoError(t, err)
			require.Equal(t, i0.Size(), res.Disparity.Size())

			mean := interiorMean(res.Disparity, 6)
			if math.Abs(mean-shift) > 0.5 {
				t.Errorf("erwartet mittlere Disparitaet %.2f, bekommen %.3f", shift, mean)
			}
			require.Equal(t, v.ProducesOcclusion(), res.Occlusion != nil)
		})
	}
}

func TestSolverZeroShiftStaysZero(t *testing.T) {
	i0, _ := shiftedPair(t, 24, 16, 0)
	level := LevelData{Level: 0, Scale: 1, I0: i0, I1: i0}
	params := NewParameters(WithIterations(2, 20), WithVerbose(0))

	s := newPrecondHuberL1(false)
	res, err := s.Solve(context.Background(), nil, level, nil, nil, params)
	require.NoError(t, err)
	for y := range res.Disparity.Height() {
		for x, v := range res.Disparity.Row(y) {
			if math.Abs(float64(v)) > 1e-3 {
				t.Fatalf("(%d,%d): erwartet 0, bekommen %v", x, y, v)
			}
		}
	}
}

func TestSolverUsesInitialField(t *testing.T) {
	i0, i1 := shiftedPair(t, 24, 16, 1)
	level := LevelData{Level: 0, Scale: 1, I0: i0, I1: i1}
	// kleines lambda: das Startfeld dominiert
	params := NewParameters(WithIterations(1, 1), WithLambda(1e-3), WithVerbose(0))

	init, err := core.NewDeviceImage[float32](24, 16)
	require.NoError(t, err)
	init.Fill(4)

	res, err := newHuberL1().Solve(context.Background(), nil, level, init, nil, params)
	require.NoError(t, err)
	require.InDelta(t, 4, interiorMean(res.Disparity, 2), 0.05)
}

func TestSolverInputErrors(t *testing.T) {
	i0, i1 := shiftedPair(t, 16, 16, 0)
	small, err := core.NewDeviceImage[float32](8, 8)
	require.NoError(t, err)
	params := NewParameters(WithIterations(1, 1))
	ctx := context.Background()

	s := newHuberL1()
	_, err = s.Solve(ctx, nil, LevelData{Scale: 1, I0: i0}, nil, nil, params)
	require.ErrorIs(t, err, core.ErrConfig)

	_, err = s.Solve(ctx, nil, LevelData{Scale: 1, I0: i0, I1: small}, nil, nil, params)
	require.ErrorIs(t, err, core.ErrGeometryMismatch)

	_, err = s.Solve(ctx, nil, LevelData{Scale: 1, I0: i0, I1: i1}, small, nil, params)
	require.ErrorIs(t, err, core.ErrGeometryMismatch)

	_, err = s.Solve(ctx, nil, LevelData{Scale: 0, I0: i0, I1: i1}, nil, nil, params)
	require.ErrorIs(t, err, core.ErrConfig)
}

func TestSolverReleaseKeepsResult(t *testing.T) {
	i0, i1 := shiftedPair(t, 16, 12, 0.5)
	level := LevelData{Scale: 1, I0: i0, I1: i1}
	params := NewParameters(WithIterations(1, 5))

	s := newPrecondHuberL1(true)
	res, err := s.Solve(context.Background(), nil, level, nil, nil, params)
	require.NoError(t, err)
	before := res.Disparity.Clone()

	s.Release()
	require.Nil(t, s.buf.p)
	require.Nil(t, s.buf.g)
	require.Same(t, res.Disparity, s.buf.u)
	require.Equal(t, before.Pix(), res.Disparity.Pix())

	// erneutes Loesen legt die Puffer wieder an
	_, err = s.Solve(context.Background(), nil, level, nil, nil, params)
	require.NoError(t, err)
	require.NotNil(t, s.buf.p)
}

func TestOcclusionMarksShiftedOutBorder(t *testing.T) {
	i0, i1 := shiftedPair(t, 32, 16, 3)
	level := LevelData{Scale: 1, I0: i0, I1: i1}
	params := NewParameters(WithSolver(PrecondHuberL1Weighted), WithIterations(5, 50), WithVerbose(0))

	s := newPrecondHuberL1(true)
	res, err := s.Solve(context.Background(), nil, level, nil, nil, params)
	require.NoError(t, err)
	require.NotNil(t, res.Occlusion)

	border := 0
	for y := range res.Occlusion.Height() {
		for x, v := range res.Occlusion.Row(y) {
			if v != 0 && v != 1 {
				t.Fatalf("(%d,%d): erwartet 0 oder 1, bekommen %v", x, y, v)
			}
		}
		border += int(res.Occlusion.At(31, y))
	}
	// rechter Rand wird ausserhalb von I1 abgetastet
	if border < res.Occlusion.Height()/2 {
		t.Errorf("erwartet ueberwiegend verdeckten rechten Rand, bekommen %d von %d", border, res.Occlusion.Height())
	}
}

// ============================================================================
// Priors
// ============================================================================

// rectifiedF beschreibt horizontale Epipolarlinien (y1 = y0).
func rectifiedF() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, 0, 0,
		0, 0, -1,
		0, 1, 0,
	})
}

func TestValidateFundamental(t *testing.T) {
	require.NoError(t, ValidateFundamental(rectifiedF()))
	require.ErrorIs(t, ValidateFundamental(nil), core.ErrConfig)
	require.ErrorIs(t, ValidateFundamental(mat.NewDense(2, 3, nil)), core.ErrGeometryMismatch)
	require.ErrorIs(t, ValidateFundamental(mat.NewDense(3, 3, nil)), core.ErrConfig)
}

func TestParseFundamental(t *testing.T) {
	F, err := ParseFundamental("0,0,0; 0,0,-1; 0 1 0")
	require.NoError(t, err)
	require.True(t, mat.Equal(rectifiedF(), F))

	_, err = ParseFundamental("1,2,3")
	require.ErrorIs(t, err, core.ErrConfig)
	_, err = ParseFundamental("0,0,0,0,0,x,0,1,0")
	require.ErrorIs(t, err, core.ErrConfig)
	_, err = ParseFundamental("0,0,0,0,0,0,0,0,0")
	require.ErrorIs(t, err, core.ErrConfig)
}

func TestEpipoles(t *testing.T) {
	// F = [t]x mit t = (1, 2, 1): beide Epipole liegen bei (1, 2)
	F := mat.NewDense(3, 3, []float64{
		0, -1, 2,
		1, 0, -1,
		-2, 1, 0,
	})
	e0, e1, ok := Epipoles(F)
	require.True(t, ok)
	require.InDelta(t, 1, e0[0], 1e-9)
	require.InDelta(t, 2, e0[1], 1e-9)
	require.InDelta(t, 1, e1[0], 1e-9)
	require.InDelta(t, 2, e1[1], 1e-9)

	// rektifiziert: Epipole im Unendlichen
	_, _, ok = Epipoles(rectifiedF())
	require.False(t, ok)
}

func newFields(t *testing.T, w, h int) (*core.Image32fC2, *core.Image32fC2) {
	t.Helper()
	dir, err := core.NewDeviceImage[core.Vec2f](w, h)
	require.NoError(t, err)
	off, err := core.NewDeviceImage[core.Vec2f](w, h)
	require.NoError(t, err)
	return dir, off
}

func requireField(t *testing.T, f *core.Image32fC2, want core.Vec2f) {
	t.Helper()
	for y := range f.Height() {
		for x, v := range f.Row(y) {
			if math.Abs(float64(v.X-want.X)) > 1e-4 || math.Abs(float64(v.Y-want.Y)) > 1e-4 {
				t.Fatalf("(%d,%d): erwartet %v, bekommen %v", x, y, want, v)
			}
		}
	}
}

func TestLevelFieldsWithoutPriors(t *testing.T) {
	dir, off := newFields(t, 8, 6)
	var p *Priors
	require.NoError(t, p.levelFields(LevelData{Scale: 1}, dir, off, core.InterpolateLinear, nil))
	requireField(t, dir, core.Vec2f{X: 1})
	requireField(t, off, core.Vec2f{})
	require.True(t, p.Empty())
}

func TestLevelFieldsRectifiedF(t *testing.T) {
	dir, off := newFields(t, 16, 12)
	p := &Priors{F: rectifiedF()}
	require.NoError(t, p.levelFields(LevelData{Scale: 0.5}, dir, off, core.InterpolateLinear, nil))
	requireField(t, dir, core.Vec2f{X: 1})
	requireField(t, off, core.Vec2f{})
}

func TestLevelFieldsGuessAndEpiVecs(t *testing.T) {
	guess, err := core.NewDeviceImage[core.Vec2f](32, 24)
	require.NoError(t, err)
	guess.Fill(core.Vec2f{X: 2, Y: -4})
	vecs, err := core.NewDeviceImage[core.Vec2f](32, 24)
	require.NoError(t, err)
	vecs.Fill(core.Vec2f{Y: 3})

	dir, off := newFields(t, 16, 12)
	p := &Priors{Guess: guess, EpiVecs: vecs}
	require.False(t, p.Empty())
	require.NoError(t, p.levelFields(LevelData{Scale: 0.5}, dir, off, core.InterpolateLinear, nil))

	// Richtungen normiert, Verschiebungen mit der Stufe skaliert
	requireField(t, dir, core.Vec2f{Y: 1})
	requireField(t, off, core.Vec2f{X: 1, Y: -2})
}

func TestLevelFieldsInvalidF(t *testing.T) {
	dir, off := newFields(t, 4, 4)
	p := &Priors{F: mat.NewDense(3, 3, nil)}
	require.ErrorIs(t, p.levelFields(LevelData{Scale: 1}, dir, off, core.InterpolateLinear, nil), core.ErrConfig)
}

func TestEpipolarSolverWithRectifiedF(t *testing.T) {
	const shift = 1.5
	i0, i1 := shiftedPair(t, 48, 32, shift)
	level := LevelData{Scale: 1, I0: i0, I1: i1}
	params := NewParameters(WithSolver(EpipolarPrecondHuberL1), WithIterations(10, 100), WithVerbose(0))

	s := newEpipolarPrecondHuberL1()
	res, err := s.Solve(context.Background(), nil, level, nil, &Priors{F: rectifiedF()}, params)
	require.NoError(t, err)
	require.InDelta(t, shift, interiorMean(res.Disparity, 6), 0.5)
	require.Equal(t, EpipolarPrecondHuberL1, s.Variant())
}

func TestBuffersEnsure(t *testing.T) {
	var b buffers
	require.ErrorIs(t, b.ensure(core.Size{}, bufferNeeds{}), core.ErrConfig)

	size := core.NewSize(16, 8)
	require.NoError(t, b.ensure(size, bufferNeeds{}))
	require.NotNil(t, b.u)
	require.NotNil(t, b.p)
	require.Nil(t, b.q)
	require.Nil(t, b.dir)
	u := b.u

	require.NoError(t, b.ensure(size, bufferNeeds{dual: true, weights: true, epipolar: true}))
	require.Same(t, u, b.u)
	require.NotNil(t, b.q)
	require.NotNil(t, b.g)
	require.NotNil(t, b.offset)
	require.Equal(t, size, b.dir.Size())

	require.NoError(t, b.ensure(core.NewSize(8, 4), bufferNeeds{}))
	require.NotSame(t, u, b.u)
	require.Nil(t, b.q)
}
