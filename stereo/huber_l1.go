package stereo

import (
	"context"
	"math"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/device"
	"github.com/7blacky7/imp/kernels"
)

// huberL1 ist der einfache Primal-Dual Solver fuer Huber-TV plus L1-Datenterm
// mit festen Schrittweiten tau = sigma = 1/sqrt(8).
type huberL1 struct {
	buf buffers
}

func newHuberL1() *huberL1 {
	return &huberL1{}
}

func (s *huberL1) Variant() SolverVariant { return HuberL1 }

func (s *huberL1) Release() { s.buf.release() }

func (s *huberL1) Solve(ctx context.Context, stream *device.Stream, level LevelData, init *core.Image32fC1, _ *Priors, params *Parameters) (Result, error) {
	if err := level.validate(); err != nil {
		return Result{}, err
	}
	if err := checkInit(level, init); err != nil {
		return Result{}, err
	}
	if err := s.buf.ensure(level.Size(), bufferNeeds{}); err != nil {
		return Result{}, err
	}
	b := &s.buf
	if err := b.start(init, stream); err != nil {
		return Result{}, err
	}

	step := float32(1 / math.Sqrt(8))
	tauLambda := step * params.Lambda

	err := solveLoop(params,
		func(w int) error {
			traceWarp(params, HuberL1, level.Level, w)
			return b.warp(level, stream)
		},
		func() error {
			if err := dualHuberStep(b, step, params.EpsU, stream); err != nil {
				return err
			}
			return stream.Launch("primal_huber_l1", func() error {
				return kernels.ForEachRow(b.size.Height, func(y int) error {
					i0, u, up := level.I0.Row(y), b.u.Row(y), b.uPrev.Row(y)
					grad, mask := b.grad.Row(y), b.mask.Row(y)
					for x := range u {
						up[x] = u[x]
						v := u[x] + step*divergence(b.p, x, y, b.size.Width, b.size.Height)
						if mask[x] == 0 {
							v = thresholdL1(v, residual(b, i0, x, y, v), grad[x], tauLambda)
						}
						u[x] = v
					}
					extrapolate(b, y)
					return nil
				})
			})
		})
	if err != nil {
		return Result{}, err
	}
	return Result{Disparity: b.u}, nil
}

// thresholdL1 ist der Proximal-Operator des linearisierten L1-Datenterms.
func thresholdL1(v, rho, grad, tauLambda float32) float32 {
	g2 := grad * grad
	switch {
	case rho < -tauLambda*g2:
		return v + tauLambda*grad
	case rho > tauLambda*g2:
		return v - tauLambda*grad
	case g2 > 1e-9:
		return v - rho*grad/g2
	default:
		return v
	}
}
