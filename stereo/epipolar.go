package stereo

import (
	"context"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/device"
)

// epipolarPrecondHuberL1 sucht entlang einer Richtung pro Pixel statt horizontal.
// Richtung und Startversatz kommen aus den Priors, ohne Priors ist er
// gleichwertig zu precondHuberL1.
type epipolarPrecondHuberL1 struct {
	precondHuberL1
}

func newEpipolarPrecondHuberL1() *epipolarPrecondHuberL1 {
	return &epipolarPrecondHuberL1{precondHuberL1{epipolar: true}}
}

func (s *epipolarPrecondHuberL1) Solve(ctx context.Context, stream *device.Stream, level LevelData, init *core.Image32fC1, priors *Priors, params *Parameters) (Result, error) {
	if err := s.prepare(level, init, stream, params); err != nil {
		return Result{}, err
	}
	if err := priors.levelFields(level, s.buf.dir, s.buf.offset, params.CTF.Interpolation, stream); err != nil {
		return Result{}, err
	}
	return s.run(level, stream, params)
}
