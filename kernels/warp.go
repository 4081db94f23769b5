// warp.go - Warping des zweiten Bildes entlang einer Suchrichtung
//
// Dieses Modul enthaelt:
// - WarpInput: Zielbild, aktuelle Disparitaet, optionaler Offset und Richtung
// - Warp: gewarptes Bild, Richtungsableitung und Out-of-Bounds-Maske
package kernels

import (
	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/device"
)

// WarpInput beschreibt ein Warping von I1 an x + Offset + U0*Dir.
type WarpInput struct {
	I1     *core.Image32fC1 // zu warpendes Bild
	U0     *core.Image32fC1 // Linearisierungspunkt der Disparitaet
	Offset *core.Image32fC2 // optional, Startkorrespondenz pro Pixel
	Dir    *core.Image32fC2 // optional, Suchrichtung pro Pixel; nil = horizontal
}

// Warp berechnet warped = I1(p), grad = dI1/dDir(p) und mask = 1 fuer p ausserhalb
// des Bildes, mit p = x + Offset + U0*Dir. mask darf nil sein.
func Warp(in WarpInput, warped, grad, mask *core.Image32fC1, stream *device.Stream) error {
	const op = "kernels.Warp"
	imgs := []core.Imager{in.I1, in.U0, warped, grad}
	if mask != nil {
		imgs = append(imgs, mask)
	}
	if in.Offset != nil {
		imgs = append(imgs, in.Offset)
	}
	if in.Dir != nil {
		imgs = append(imgs, in.Dir)
	}
	if err := checkSameSize(op, imgs...); err != nil {
		return err
	}

	width, height := in.I1.Width(), in.I1.Height()
	maxX, maxY := float32(width-1), float32(height-1)

	return stream.Launch("warp", func() error {
		return ForEachRow(height, func(y int) error {
			u0 := in.U0.Row(y)
			rw, rg := warped.Row(y), grad.Row(y)
			for x := range width {
				d := core.Vec2f{X: 1}
				if in.Dir != nil {
					d = in.Dir.At(x, y)
				}
				px := float32(x) + u0[x]*d.X
				py := float32(y) + u0[x]*d.Y
				if in.Offset != nil {
					o := in.Offset.At(x, y)
					px += o.X
					py += o.Y
				}

				rw[x] = SampleAt(in.I1, px, py, core.InterpolateLinear)
				fwd := SampleAt(in.I1, px+d.X, py+d.Y, core.InterpolateLinear)
				bwd := SampleAt(in.I1, px-d.X, py-d.Y, core.InterpolateLinear)
				rg[x] = 0.5 * (fwd - bwd)

				if mask != nil {
					var m float32
					if px < 0 || py < 0 || px > maxX || py > maxY {
						m = 1
					}
					mask.Set(x, y, m)
				}
			}
			return nil
		})
	})
}
