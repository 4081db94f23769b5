// resample.go - Skalierung und Reduktion von Bildern
//
// Dieses Modul enthaelt:
// - Resample/ResampleVec2: Skalierung mit Nearest/Linear/Cubic
// - Reduce: Gauss-Vorfilter plus Resampling fuer Pyramidenstufen
// - ReduceSigma: Filterbreite in Abhaengigkeit der Skalierungsrate
package kernels

import (
	"math"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/device"
)

// taps haelt Indizes und Gewichte einer 1D-Interpolation.
type taps struct {
	idx [4]int
	w   [4]float32
	n   int
}

// sampleTaps berechnet die Stuetzstellen fuer Position pos in [0, size).
func sampleTaps(interp core.Interpolation, pos float32, size int) taps {
	var t taps
	switch interp {
	case core.InterpolateNearest:
		t.idx[0] = clampInt(int(math.Floor(float64(pos)+0.5)), 0, size-1)
		t.w[0] = 1
		t.n = 1
	case core.InterpolateCubic:
		i0 := int(math.Floor(float64(pos)))
		f := pos - float32(i0)
		for k := range 4 {
			t.idx[k] = clampInt(i0-1+k, 0, size-1)
			t.w[k] = cubicWeight(f - float32(k-1))
		}
		t.n = 4
	default:
		i0 := int(math.Floor(float64(pos)))
		f := pos - float32(i0)
		t.idx[0] = clampInt(i0, 0, size-1)
		t.idx[1] = clampInt(i0+1, 0, size-1)
		t.w[0] = 1 - f
		t.w[1] = f
		t.n = 2
	}
	return t
}

// cubicWeight ist der Keys-Kernel mit a = -0.5.
func cubicWeight(d float32) float32 {
	const a = -0.5
	d = float32(math.Abs(float64(d)))
	switch {
	case d <= 1:
		return (a+2)*d*d*d - (a+3)*d*d + 1
	case d < 2:
		return a*d*d*d - 5*a*d*d + 8*a*d - 4*a
	default:
		return 0
	}
}

// sourcePos bildet eine Zielkoordinate auf die Quelle ab (Pixelmitten).
func sourcePos(x int, ratio float32) float32 {
	return (float32(x)+0.5)*ratio - 0.5
}

// SampleAt interpoliert img an der Position (x, y) mit geklemmten Raendern.
func SampleAt(img *core.Image32fC1, x, y float32, interp core.Interpolation) float32 {
	tx := sampleTaps(interp, x, img.Width())
	ty := sampleTaps(interp, y, img.Height())
	var acc float32
	for j := range ty.n {
		row := img.Row(ty.idx[j])
		var racc float32
		for i := range tx.n {
			racc += tx.w[i] * row[tx.idx[i]]
		}
		acc += ty.w[j] * racc
	}
	return acc
}

func sampleVec2At(img *core.Image32fC2, x, y float32, interp core.Interpolation) core.Vec2f {
	tx := sampleTaps(interp, x, img.Width())
	ty := sampleTaps(interp, y, img.Height())
	var acc core.Vec2f
	for j := range ty.n {
		row := img.Row(ty.idx[j])
		for i := range tx.n {
			w := ty.w[j] * tx.w[i]
			v := row[tx.idx[i]]
			acc.X += w * v.X
			acc.Y += w * v.Y
		}
	}
	return acc
}

// Resample skaliert src auf die Groesse von dst.
func Resample(src, dst *core.Image32fC1, interp core.Interpolation, stream *device.Stream) error {
	const op = "kernels.Resample"
	if src == nil || dst == nil || src.Size().Empty() || dst.Size().Empty() {
		return core.Errorf(core.KindConfig, op, "nil or empty image")
	}
	if src == dst {
		return core.Errorf(core.KindConfig, op, "in-place resampling not supported")
	}
	rx := float32(src.Width()) / float32(dst.Width())
	ry := float32(src.Height()) / float32(dst.Height())

	return stream.Launch("resample", func() error {
		return ForEachRow(dst.Height(), func(y int) error {
			sy := sourcePos(y, ry)
			out := dst.Row(y)
			for x := range out {
				out[x] = SampleAt(src, sourcePos(x, rx), sy, interp)
			}
			return nil
		})
	})
}

// ResampleVec2 skaliert ein zweikanaliges Feld auf die Groesse von dst.
// scale multipliziert beide Komponenten, z.B. um Verschiebungen mitzuskalieren.
func ResampleVec2(src, dst *core.Image32fC2, interp core.Interpolation, scale core.Vec2f, stream *device.Stream) error {
	const op = "kernels.ResampleVec2"
	if src == nil || dst == nil || src.Size().Empty() || dst.Size().Empty() {
		return core.Errorf(core.KindConfig, op, "nil or empty image")
	}
	if src == dst {
		return core.Errorf(core.KindConfig, op, "in-place resampling not supported")
	}
	rx := float32(src.Width()) / float32(dst.Width())
	ry := float32(src.Height()) / float32(dst.Height())

	return stream.Launch("resample_vec2", func() error {
		return ForEachRow(dst.Height(), func(y int) error {
			sy := sourcePos(y, ry)
			out := dst.Row(y)
			for x := range out {
				v := sampleVec2At(src, sourcePos(x, rx), sy, interp)
				out[x] = core.Vec2f{X: v.X * scale.X, Y: v.Y * scale.Y}
			}
			return nil
		})
	})
}

// ReduceSigma liefert die Standardabweichung des Vorfilters fuer rate = dst/src.
func ReduceSigma(rate float32) float32 {
	return 1 / (3 * rate)
}

// Reduce verkleinert src nach dst: Gauss-Vorfilter nach filtered, danach
// Resampling. tmp und filtered muessen die Groesse von src haben oder nil
// sein; nil-Puffer werden fuer diesen Aufruf angelegt.
func Reduce(src, dst, tmp, filtered *core.Image32fC1, interp core.Interpolation, stream *device.Stream) error {
	const op = "kernels.Reduce"
	if src == nil || dst == nil || src.Size().Empty() || dst.Size().Empty() {
		return core.Errorf(core.KindConfig, op, "nil or empty image")
	}
	if dst.Width() > src.Width() || dst.Height() > src.Height() {
		return core.Errorf(core.KindGeometryMismatch, op, "cannot reduce %s to %s", src.Size(), dst.Size())
	}
	if dst.Size() == src.Size() {
		return Copy(src, dst, stream)
	}
	if filtered == nil {
		var err error
		if filtered, err = core.NewImage[float32](src.Size(), core.Device); err != nil {
			return err
		}
	} else if err := checkSameSize(op, src, filtered); err != nil {
		return err
	}

	rate := float32(dst.Width()) / float32(src.Width())
	sigma := ReduceSigma(rate)
	if err := Gauss(src, filtered, tmp, sigma, GaussKernelSize(sigma), stream); err != nil {
		return err
	}
	return Resample(filtered, dst, interp, stream)
}
