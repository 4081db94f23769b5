// filter.go - Faltungs- und Rangfilter
//
// Dieses Modul enthaelt:
// - GaussKernel/Gauss: separierbarer Gauss-Filter mit Zwischenpuffer
// - Median3x3: 3x3 Medianfilter mit geklemmten Raendern
// - EdgeWeights: Kantengewichte g = exp(-alpha*|grad I|^beta)
package kernels

import (
	"math"
	"slices"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/device"
)

// GaussKernelSize liefert die ungerade Kernelgroesse ceil(6*sigma).
func GaussKernelSize(sigma float32) int {
	n := int(math.Ceil(6 * float64(sigma)))
	if n%2 == 0 {
		n++
	}
	return max(n, 1)
}

// GaussKernel liefert normierte 1D-Gewichte der Laenge size.
func GaussKernel(sigma float32, size int) []float32 {
	if size%2 == 0 {
		size++
	}
	w := make([]float32, size)
	half := size / 2
	var sum float64
	for i := range w {
		d := float64(i - half)
		v := math.Exp(-d * d / (2 * float64(sigma) * float64(sigma)))
		w[i] = float32(v)
		sum += v
	}
	for i := range w {
		w[i] = float32(float64(w[i]) / sum)
	}
	return w
}

// Gauss filtert src separierbar nach dst. tmp nimmt das horizontal gefilterte
// Zwischenergebnis auf; ist tmp nil, wird es bei jedem Aufruf neu angelegt.
// kernelSize <= 0 waehlt GaussKernelSize(sigma).
func Gauss(src, dst, tmp *core.Image32fC1, sigma float32, kernelSize int, stream *device.Stream) error {
	const op = "kernels.Gauss"
	if err := checkSameSize(op, src, dst); err != nil {
		return err
	}
	if sigma <= 0 {
		return core.Errorf(core.KindConfig, op, "sigma must be positive, got %v", sigma)
	}
	if tmp == nil {
		var err error
		if tmp, err = core.NewImage[float32](src.Size(), core.Device); err != nil {
			return err
		}
	} else if err := checkSameSize(op, src, tmp); err != nil {
		return err
	}
	if kernelSize <= 0 {
		kernelSize = GaussKernelSize(sigma)
	}
	w := GaussKernel(sigma, kernelSize)
	half := len(w) / 2
	width, height := src.Width(), src.Height()

	return stream.Launch("gauss", func() error {
		if err := ForEachRow(height, func(y int) error {
			in, out := src.Row(y), tmp.Row(y)
			for x := range width {
				var acc float32
				for k, wk := range w {
					acc += wk * in[clampInt(x+k-half, 0, width-1)]
				}
				out[x] = acc
			}
			return nil
		}); err != nil {
			return err
		}
		return ForEachRow(height, func(y int) error {
			out := dst.Row(y)
			for x := range width {
				var acc float32
				for k, wk := range w {
					acc += wk * tmp.At(x, clampInt(y+k-half, 0, height-1))
				}
				out[x] = acc
			}
			return nil
		})
	})
}

// Median3x3 wendet einen 3x3 Medianfilter an. Randpixel werden geklemmt.
// src und dst muessen verschiedene Puffer sein.
func Median3x3(src, dst *core.Image32fC1, stream *device.Stream) error {
	const op = "kernels.Median3x3"
	if err := checkSameSize(op, src, dst); err != nil {
		return err
	}
	if src == dst {
		return core.Errorf(core.KindConfig, op, "in-place filtering not supported")
	}
	width, height := src.Width(), src.Height()

	return stream.Launch("median3x3", func() error {
		return ForEachRow(height, func(y int) error {
			var win [9]float32
			out := dst.Row(y)
			for x := range width {
				n := 0
				for dy := -1; dy <= 1; dy++ {
					row := src.Row(clampInt(y+dy, 0, height-1))
					for dx := -1; dx <= 1; dx++ {
						win[n] = row[clampInt(x+dx, 0, width-1)]
						n++
					}
				}
				slices.Sort(win[:])
				out[x] = win[4]
			}
			return nil
		})
	})
}

// EdgeWeights berechnet g = exp(-alpha*|grad I|^beta) mit Vorwaertsdifferenzen.
func EdgeWeights(img, dst *core.Image32fC1, alpha, beta float32, stream *device.Stream) error {
	const op = "kernels.EdgeWeights"
	if err := checkSameSize(op, img, dst); err != nil {
		return err
	}
	if alpha < 0 || beta <= 0 {
		return core.Errorf(core.KindConfig, op, "invalid alpha=%v beta=%v", alpha, beta)
	}
	width, height := img.Width(), img.Height()

	return stream.Launch("edge_weights", func() error {
		return ForEachRow(height, func(y int) error {
			row, out := img.Row(y), dst.Row(y)
			next := img.Row(min(y+1, height-1))
			for x := range width {
				gx := row[min(x+1, width-1)] - row[x]
				gy := next[x] - row[x]
				mag := math.Sqrt(float64(gx*gx + gy*gy))
				out[x] = float32(math.Exp(-float64(alpha) * math.Pow(mag, float64(beta))))
			}
			return nil
		})
	})
}
