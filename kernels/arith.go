// arith.go - Speicher- und Arithmetik-Kernels
//
// Dieses Modul enthaelt:
// - Copy/CopyROI/SetValue: Pufferkopien und Fuellen
// - Upload/Download: Transfer zwischen Host und Device
// - AddWeighted/MulC: punktweise Arithmetik auf einer ROI
// - MinMax: Reduktion mit Readback (synchronisiert den Stream)
package kernels

import (
	"math"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/device"
)

// Copy kopiert src nach dst. Beide Bilder muessen gleich gross sein.
func Copy[T core.Pixel](src, dst *core.Image[T], stream *device.Stream) error {
	if err := checkSameSize("kernels.Copy", src, dst); err != nil {
		return err
	}
	return CopyROI(src, dst, src.Size().Rect(), stream)
}

// CopyROI kopiert die Region roi von src an dieselbe Stelle in dst.
func CopyROI[T core.Pixel](src, dst *core.Image[T], roi core.Rect, stream *device.Stream) error {
	const op = "kernels.CopyROI"
	if src == nil || dst == nil {
		return core.Errorf(core.KindConfig, op, "nil image")
	}
	if err := checkROI(op, roi, src, dst); err != nil {
		return err
	}
	return stream.Launch("copy", func() error {
		return ForEachRow(roi.Height, func(i int) error {
			y := roi.Y + i
			copy(dst.Row(y)[roi.X:roi.X+roi.Width], src.Row(y)[roi.X:roi.X+roi.Width])
			return nil
		})
	})
}

// SetValue setzt alle Pixel in roi auf v.
func SetValue[T core.Pixel](dst *core.Image[T], v T, roi core.Rect, stream *device.Stream) error {
	const op = "kernels.SetValue"
	if dst == nil {
		return core.Errorf(core.KindConfig, op, "nil image")
	}
	if err := checkROI(op, roi, dst); err != nil {
		return err
	}
	return stream.Launch("set_value", func() error {
		return ForEachRow(roi.Height, func(i int) error {
			row := dst.Row(roi.Y + i)[roi.X : roi.X+roi.Width]
			for x := range row {
				row[x] = v
			}
			return nil
		})
	})
}

// Upload kopiert ein Host-Bild in ein Device-Bild.
func Upload[T core.Pixel](host, dev *core.Image[T], stream *device.Stream) error {
	const op = "kernels.Upload"
	if err := checkSameSize(op, host, dev); err != nil {
		return err
	}
	if host.OnDevice() || !dev.OnDevice() {
		return core.Errorf(core.KindConfig, op, "expected host -> device, got %s -> %s", host.Location(), dev.Location())
	}
	return Copy(host, dev, stream)
}

// Download kopiert ein Device-Bild in ein Host-Bild und wartet auf den Stream.
func Download[T core.Pixel](dev, host *core.Image[T], stream *device.Stream) error {
	const op = "kernels.Download"
	if err := checkSameSize(op, dev, host); err != nil {
		return err
	}
	if !dev.OnDevice() || host.OnDevice() {
		return core.Errorf(core.KindConfig, op, "expected device -> host, got %s -> %s", dev.Location(), host.Location())
	}
	if err := Copy(dev, host, stream); err != nil {
		return err
	}
	return stream.Synchronize()
}

// AddWeighted berechnet dst = wa*a + wb*b auf der Region roi.
func AddWeighted(a *core.Image32fC1, wa float32, b *core.Image32fC1, wb float32, dst *core.Image32fC1, roi core.Rect, stream *device.Stream) error {
	const op = "kernels.AddWeighted"
	if err := checkSameSize(op, a, b, dst); err != nil {
		return err
	}
	if err := checkROI(op, roi, dst); err != nil {
		return err
	}
	return stream.Launch("add_weighted", func() error {
		return ForEachRow(roi.Height, func(i int) error {
			y := roi.Y + i
			ra, rb, rd := a.Row(y), b.Row(y), dst.Row(y)
			for x := roi.X; x < roi.X+roi.Width; x++ {
				rd[x] = wa*ra[x] + wb*rb[x]
			}
			return nil
		})
	})
}

// MulC berechnet dst = c*src auf der Region roi. src und dst duerfen gleich sein.
func MulC(src *core.Image32fC1, c float32, dst *core.Image32fC1, roi core.Rect, stream *device.Stream) error {
	const op = "kernels.MulC"
	if err := checkSameSize(op, src, dst); err != nil {
		return err
	}
	if err := checkROI(op, roi, dst); err != nil {
		return err
	}
	return stream.Launch("mul_c", func() error {
		return ForEachRow(roi.Height, func(i int) error {
			y := roi.Y + i
			rs, rd := src.Row(y), dst.Row(y)
			for x := roi.X; x < roi.X+roi.Width; x++ {
				rd[x] = c * rs[x]
			}
			return nil
		})
	})
}

// MinMax liefert Minimum und Maximum in roi. Der Aufruf blockiert bis der
// Stream leer ist.
func MinMax(src *core.Image32fC1, roi core.Rect, stream *device.Stream) (float32, float32, error) {
	const op = "kernels.MinMax"
	if src == nil {
		return 0, 0, core.Errorf(core.KindConfig, op, "nil image")
	}
	if err := checkROI(op, roi, src); err != nil {
		return 0, 0, err
	}
	if roi.Empty() {
		return 0, 0, core.Errorf(core.KindRange, op, "empty roi")
	}
	if err := stream.Synchronize(); err != nil {
		return 0, 0, err
	}

	lo, hi := float32(math.Inf(1)), float32(math.Inf(-1))
	for y := roi.Y; y < roi.Y+roi.Height; y++ {
		for _, v := range src.Row(y)[roi.X : roi.X+roi.Width] {
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	return lo, hi, nil
}
