// MODUL: solver
// ZWECK: Vertrag der Level-Solver und gemeinsame Primal-Dual Schritte
// INPUT: Stufenbilder, Startfeld, Priors, Parameter
// OUTPUT: Disparitaet (und optional Verdeckung) pro Stufe
// NEBENEFFEKTE: Allokation stufengrosser Zwischenpuffer beim ersten Aufruf
// ABHAENGIGKEITEN: core, device, kernels
// HINWEISE: Budget ist genau Warps x Iters, kein vorzeitiger Abbruch.
//           Alle Schritte laufen als Kernels auf dem Stream.

package stereo

import (
	"context"
	"math"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/device"
	"github.com/7blacky7/imp/kernels"
	"github.com/7blacky7/imp/logutil"
)

// ============================================================================
// Vertrag
// ============================================================================

// LevelData enthaelt die Eingabebilder einer Pyramidenstufe.
type LevelData struct {
	Level int
	Scale float32          // Skalierung relativ zu Stufe 0
	I0    *core.Image32fC1 // Referenzbild
	I1    *core.Image32fC1 // Zielbild
}

// Size gibt die Stufengroesse zurueck.
func (d LevelData) Size() core.Size {
	return d.I0.Size()
}

func (d LevelData) validate() error {
	if d.I0 == nil || d.I1 == nil {
		return core.Errorf(core.KindConfig, "stereo.LevelData", "missing level image")
	}
	if d.I0.Size() != d.I1.Size() {
		return core.Errorf(core.KindGeometryMismatch, "stereo.LevelData", "%s != %s", d.I0.Size(), d.I1.Size())
	}
	if !(d.Scale > 0) {
		return core.Errorf(core.KindConfig, "stereo.LevelData", "invalid scale %v", d.Scale)
	}
	return nil
}

// Result ist das Ergebnis eines Level-Solvers. Die Bilder gehoeren dem Solver.
type Result struct {
	Disparity *core.Image32fC1
	Occlusion *core.Image32fC1 // nil wenn die Variante keine liefert
}

// Solver loest das variationelle Problem auf einer Stufe.
type Solver interface {
	Variant() SolverVariant
	Solve(ctx context.Context, stream *device.Stream, level LevelData, init *core.Image32fC1, priors *Priors, params *Parameters) (Result, error)
	// Release gibt Zwischenpuffer frei, das letzte Ergebnis bleibt gueltig.
	Release()
}

// ============================================================================
// Gemeinsame Puffer
// ============================================================================

// buffers haelt die stufengrossen Puffer eines Solvers.
type buffers struct {
	size core.Size

	u, uPrev, uBar, u0 *core.Image32fC1
	warped, grad, mask *core.Image32fC1
	p                  *core.Image32fC2
	q                  *core.Image32fC1 // Dual des Datenterms (vorkonditioniert)
	g                  *core.Image32fC1 // Kantengewichte (gewichtet)
	dir, offset        *core.Image32fC2 // Suchrichtung und Start (epipolar)
}

type bufferNeeds struct {
	dual, weights, epipolar bool
}

// ensure legt fehlende Puffer fuer size an und verwirft Puffer anderer Groesse.
// Das Ergebnisfeld u bleibt erhalten wenn die Groesse passt.
func (b *buffers) ensure(size core.Size, needs bufferNeeds) error {
	const op = "stereo.buffers"
	if size.Empty() {
		return core.Errorf(core.KindConfig, op, "invalid buffer size %s", size)
	}
	if b.size != size {
		*b = buffers{size: size}
	}

	scalars := []**core.Image32fC1{&b.u, &b.uPrev, &b.uBar, &b.u0, &b.warped, &b.grad, &b.mask}
	vectors := []**core.Image32fC2{&b.p}
	if needs.dual {
		scalars = append(scalars, &b.q)
	}
	if needs.weights {
		scalars = append(scalars, &b.g)
	}
	if needs.epipolar {
		vectors = append(vectors, &b.dir, &b.offset)
	}

	for _, m := range scalars {
		if *m != nil {
			continue
		}
		img, err := core.NewImage[float32](size, core.Device)
		if err != nil {
			return core.Wrap(core.KindDevice, op, err)
		}
		*m = img
	}
	for _, m := range vectors {
		if *m != nil {
			continue
		}
		img, err := core.NewImage[core.Vec2f](size, core.Device)
		if err != nil {
			return core.Wrap(core.KindDevice, op, err)
		}
		*m = img
	}
	return nil
}

// release gibt alle Puffer ausser u frei.
func (b *buffers) release() {
	*b = buffers{size: b.size, u: b.u}
}

// ============================================================================
// Initialisierung pro Stufe
// ============================================================================

// start setzt u, uBar und die Duale fuer eine neue Stufe.
func (b *buffers) start(init *core.Image32fC1, stream *device.Stream) error {
	roi := b.size.Rect()
	if init != nil {
		if err := kernels.Copy(init, b.u, stream); err != nil {
			return err
		}
	} else if err := kernels.SetValue(b.u, 0, roi, stream); err != nil {
		return err
	}
	if err := kernels.Copy(b.u, b.uBar, stream); err != nil {
		return err
	}
	if err := kernels.SetValue(b.p, core.Vec2f{}, roi, stream); err != nil {
		return err
	}
	if b.q != nil {
		return kernels.SetValue(b.q, 0, roi, stream)
	}
	return nil
}

// warp linearisiert den Datenterm um das aktuelle u.
func (b *buffers) warp(level LevelData, stream *device.Stream) error {
	if err := kernels.Copy(b.u, b.u0, stream); err != nil {
		return err
	}
	if err := kernels.Copy(b.u, b.uBar, stream); err != nil {
		return err
	}
	return kernels.Warp(kernels.WarpInput{
		I1:     level.I1,
		U0:     b.u0,
		Offset: b.offset,
		Dir:    b.dir,
	}, b.warped, b.grad, b.mask, stream)
}

// ============================================================================
// Primal-Dual Schritte
// ============================================================================

// dualHuberStep: p = (p + sigma*grad(uBar)) / (1 + sigma*eps), projiziert auf |p| <= g.
// g == nil bedeutet g = 1.
func dualHuberStep(b *buffers, sigma, eps float32, stream *device.Stream) error {
	w, h := b.size.Width, b.size.Height
	return stream.Launch("dual_huber", func() error {
		return kernels.ForEachRow(h, func(y int) error {
			ub, p := b.uBar.Row(y), b.p.Row(y)
			var next []float32
			if y+1 < h {
				next = b.uBar.Row(y + 1)
			}
			for x := range w {
				var dx, dy float32
				if x+1 < w {
					dx = ub[x+1] - ub[x]
				}
				if next != nil {
					dy = next[x] - ub[x]
				}
				px := (p[x].X + sigma*dx) / (1 + sigma*eps)
				py := (p[x].Y + sigma*dy) / (1 + sigma*eps)
				limit := float32(1)
				if b.g != nil {
					limit = b.g.At(x, y)
				}
				if n := float32(math.Sqrt(float64(px*px + py*py))); n > limit {
					s := limit / n
					px, py = px*s, py*s
				}
				p[x] = core.Vec2f{X: px, Y: py}
			}
			return nil
		})
	})
}

// divergence berechnet div p an (x, y) als negativ Adjungierte der Vorwaertsdifferenzen.
func divergence(p *core.Image32fC2, x, y, w, h int) float32 {
	c := p.At(x, y)
	var div float32
	switch {
	case w == 1:
	case x == 0:
		div += c.X
	case x == w-1:
		div -= p.At(x-1, y).X
	default:
		div += c.X - p.At(x-1, y).X
	}
	switch {
	case h == 1:
	case y == 0:
		div += c.Y
	case y == h-1:
		div -= p.At(x, y-1).Y
	default:
		div += c.Y - p.At(x, y-1).Y
	}
	return div
}

// residual ist der linearisierte Datenterm rho(u) = I1w + grad*(u-u0) - I0.
func residual(b *buffers, i0 []float32, x, y int, u float32) float32 {
	return b.warped.At(x, y) + b.grad.At(x, y)*(u-b.u0.At(x, y)) - i0[x]
}

// extrapolate setzt uBar = 2u - uPrev fuer eine Zeile.
func extrapolate(b *buffers, y int) {
	u, up, ub := b.u.Row(y), b.uPrev.Row(y), b.uBar.Row(y)
	for x := range u {
		ub[x] = 2*u[x] - up[x]
	}
}

// occlusion markiert Pixel ausserhalb des Bildes oder mit grossem Residuum.
func occlusion(b *buffers, level LevelData, threshold float32, dst *core.Image32fC1, stream *device.Stream) error {
	return stream.Launch("occlusion", func() error {
		return kernels.ForEachRow(b.size.Height, func(y int) error {
			i0, u, m, out := level.I0.Row(y), b.u.Row(y), b.mask.Row(y), dst.Row(y)
			for x := range out {
				r := residual(b, i0, x, y, u[x])
				if m[x] > 0 || float32(math.Abs(float64(r))) > threshold {
					out[x] = 1
				} else {
					out[x] = 0
				}
			}
			return nil
		})
	})
}

// checkInit prueft das Startfeld gegen die Stufe.
func checkInit(level LevelData, init *core.Image32fC1) error {
	if init != nil && init.Size() != level.Size() {
		return core.Errorf(core.KindGeometryMismatch, "stereo.Solve", "initial field %s != level %s", init.Size(), level.Size())
	}
	return nil
}

// traceWarp loggt den Fortschritt einer Re-Linearisierung.
func traceWarp(params *Parameters, v SolverVariant, level, warp int) {
	if params.Verbose > 10 {
		logutil.Trace("warp done", "solver", v, "level", level, "warp", warp)
	}
}

// solveLoop fuehrt genau Warps x Iters Schritte aus.
func solveLoop(params *Parameters, warp func(int) error, iterate func() error) error {
	for w := range int(params.CTF.Warps) {
		if err := warp(w); err != nil {
			return err
		}
		for range params.CTF.Iters {
			if err := iterate(); err != nil {
				return err
			}
		}
	}
	return nil
}
