package stereo

import (
	"context"
	"math"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/device"
	"github.com/7blacky7/imp/kernels"
)

// sigmaQEps begrenzt die Dual-Schrittweite des Datenterms bei verschwindendem Gradienten.
const sigmaQEps = 1e-3

// precondHuberL1 loest Huber-TV plus L1-Datenterm mit diagonaler
// Vorkonditionierung: tau = 1/(|grad|+4), sigma_p = 1/2, sigma_q = 1/|grad|.
// Mit weighted werden die Regularisierungsduale auf Kantengewichte projiziert
// und eine Verdeckungskarte berechnet.
type precondHuberL1 struct {
	buf       buffers
	weighted  bool
	epipolar  bool
	occlusion *core.Image32fC1
}

func newPrecondHuberL1(weighted bool) *precondHuberL1 {
	return &precondHuberL1{weighted: weighted}
}

func (s *precondHuberL1) Variant() SolverVariant {
	switch {
	case s.epipolar:
		return EpipolarPrecondHuberL1
	case s.weighted:
		return PrecondHuberL1Weighted
	default:
		return PrecondHuberL1
	}
}

func (s *precondHuberL1) Release() { s.buf.release() }

func (s *precondHuberL1) needs() bufferNeeds {
	return bufferNeeds{dual: true, weights: s.weighted, epipolar: s.epipolar}
}

func (s *precondHuberL1) Solve(ctx context.Context, stream *device.Stream, level LevelData, init *core.Image32fC1, _ *Priors, params *Parameters) (Result, error) {
	if err := s.prepare(level, init, stream, params); err != nil {
		return Result{}, err
	}
	return s.run(level, stream, params)
}

// prepare legt Puffer an und setzt den Startzustand der Stufe.
func (s *precondHuberL1) prepare(level LevelData, init *core.Image32fC1, stream *device.Stream, params *Parameters) error {
	if err := level.validate(); err != nil {
		return err
	}
	if err := checkInit(level, init); err != nil {
		return err
	}
	if err := s.buf.ensure(level.Size(), s.needs()); err != nil {
		return err
	}
	if err := s.buf.start(init, stream); err != nil {
		return err
	}
	if s.weighted {
		return kernels.EdgeWeights(level.I0, s.buf.g, params.EdgeAlpha, params.EdgeBeta, stream)
	}
	return nil
}

// run fuehrt das Primal-Dual Schema auf den vorbereiteten Puffern aus.
func (s *precondHuberL1) run(level LevelData, stream *device.Stream, params *Parameters) (Result, error) {
	b := &s.buf
	variant := s.Variant()
	lambda := params.Lambda

	err := solveLoop(params,
		func(w int) error {
			traceWarp(params, variant, level.Level, w)
			return b.warp(level, stream)
		},
		func() error {
			if err := dualHuberStep(b, 0.5, params.EpsU, stream); err != nil {
				return err
			}
			if err := stream.Launch("dual_data", func() error {
				return kernels.ForEachRow(b.size.Height, func(y int) error {
					i0, ub, q := level.I0.Row(y), b.uBar.Row(y), b.q.Row(y)
					grad, mask := b.grad.Row(y), b.mask.Row(y)
					for x := range q {
						if mask[x] > 0 {
							q[x] = 0
							continue
						}
						sigma := 1 / max(float32(math.Abs(float64(grad[x]))), sigmaQEps)
						v := q[x] + sigma*residual(b, i0, x, y, ub[x])
						q[x] = min(max(v, -lambda), lambda)
					}
					return nil
				})
			}); err != nil {
				return err
			}
			return stream.Launch("primal_precond", func() error {
				return kernels.ForEachRow(b.size.Height, func(y int) error {
					u, up, q, grad := b.u.Row(y), b.uPrev.Row(y), b.q.Row(y), b.grad.Row(y)
					for x := range u {
						up[x] = u[x]
						tau := 1 / (float32(math.Abs(float64(grad[x]))) + 4)
						u[x] += tau * (divergence(b.p, x, y, b.size.Width, b.size.Height) - grad[x]*q[x])
					}
					extrapolate(b, y)
					return nil
				})
			})
		})
	if err != nil {
		return Result{}, err
	}

	res := Result{Disparity: b.u}
	if s.weighted {
		if s.occlusion == nil || s.occlusion.Size() != b.size {
			m, err := core.NewImage[float32](b.size, core.Device)
			if err != nil {
				return Result{}, core.Wrap(core.KindDevice, "stereo.Solve", err)
			}
			s.occlusion = m
		}
		if err := occlusion(b, level, params.OcclusionThreshold, s.occlusion, stream); err != nil {
			return Result{}, err
		}
		res.Occlusion = s.occlusion
	}
	return res, nil
}
