// encode.go - Ausgabe von Disparitaets- und Verdeckungskarten
//
// Dieses Modul enthaelt:
// - ToGray8: Quantisierung eines 32fC1 Bildes auf 8 Bit
// - EncodePNG: PNG-Kodierung mit festem Wertebereich
// - SaveNormalized: PNG-Datei mit Min/Max-Normierung
// - Stats: Minimum, Maximum und Mittelwert fuer Ausgaben in CLI und Server
package imgio

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/device"
	"github.com/7blacky7/imp/kernels"
)

// hostCopy gibt img als Host-Bild zurueck, Device-Bilder werden heruntergeladen.
func hostCopy(img *core.Image32fC1, stream *device.Stream) (*core.Image32fC1, error) {
	if !img.OnDevice() {
		return img, nil
	}
	host, err := core.NewHostImage[float32](img.Width(), img.Height())
	if err != nil {
		return nil, err
	}
	if err := kernels.Download(img, host, stream); err != nil {
		return nil, err
	}
	return host, nil
}

// ToGray8 bildet [lo, hi] linear auf [0, 255] ab. Werte ausserhalb werden geklemmt.
func ToGray8(img *core.Image32fC1, lo, hi float32) (*core.Image8uC1, error) {
	const op = "imgio.ToGray8"
	if img == nil || img.Size().Empty() {
		return nil, core.Errorf(core.KindConfig, op, "nil or empty image")
	}
	src, err := hostCopy(img, nil)
	if err != nil {
		return nil, err
	}
	dst, err := core.NewHostImage[uint8](img.Width(), img.Height())
	if err != nil {
		return nil, err
	}

	scale := float32(0)
	if hi > lo {
		scale = 255 / (hi - lo)
	}
	for y := range src.Height() {
		in, out := src.Row(y), dst.Row(y)
		for x, v := range in {
			q := (v - lo) * scale
			out[x] = uint8(min(max(q+0.5, 0), 255))
		}
	}
	return dst, nil
}

// grayImage stellt ein 8u Bild als image.Gray dar ohne zu kopieren.
func grayImage(m *core.Image8uC1) *image.Gray {
	return &image.Gray{
		Pix:    m.Pix(),
		Stride: m.Stride(),
		Rect:   image.Rect(0, 0, m.Width(), m.Height()),
	}
}

// EncodePNG schreibt img als 8-Bit Grauwert-PNG mit Wertebereich [lo, hi]
func EncodePNG(w io.Writer, img *core.Image32fC1, lo, hi float32) error {
	g, err := ToGray8(img, lo, hi)
	if err != nil {
		return err
	}
	if err := png.Encode(w, grayImage(g)); err != nil {
		return fmt.Errorf("png kodieren fehlgeschlagen: %w", err)
	}
	return nil
}

// Range liefert Minimum und Maximum eines Bildes.
func Range(img *core.Image32fC1, stream *device.Stream) (float32, float32, error) {
	return kernels.MinMax(img, img.Size().Rect(), stream)
}

// Stats liefert Minimum, Maximum und Mittelwert eines Bildes.
func Stats(img *core.Image32fC1) (lo, hi float32, mean float64, err error) {
	if img == nil {
		return 0, 0, 0, core.Errorf(core.KindConfig, "imgio.Stats", "nil image")
	}
	if lo, hi, err = Range(img, nil); err != nil {
		return 0, 0, 0, err
	}
	host, err := hostCopy(img, nil)
	if err != nil {
		return 0, 0, 0, err
	}
	var sum float64
	for y := range host.Height() {
		for _, v := range host.Row(y) {
			sum += float64(v)
		}
	}
	return lo, hi, sum / float64(img.Size().Area()), nil
}

// SaveNormalized schreibt img als PNG, normiert auf sein Minimum und Maximum
func SaveNormalized(path string, img *core.Image32fC1) error {
	if img == nil {
		return core.Errorf(core.KindConfig, "imgio.SaveNormalized", "nil image")
	}
	lo, hi, err := Range(img, nil)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("datei erstellen fehlgeschlagen: %w", err)
	}
	if err := EncodePNG(f, img, lo, hi); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
