// MODUL: image
// ZWECK: Laden von Bilddateien als Grauwertbilder fuer die Stereo-Pipeline
// INPUT: Dateipfad, Bytes oder io.Reader
// OUTPUT: Device-Bild im Format 32fC1 mit Werten in [0, 1]
// NEBENEFFEKTE: Dateisystem-Lesezugriff bei Load, Upload auf das Device
// ABHAENGIGKEITEN: golang.org/x/image/draw (extern), x/image bmp/tiff/webp Decoder, core, kernels
// HINWEISE: Grauwert ueber image.Gray16 (ITU-R 601 Gewichte), Alpha wird ignoriert.
//           IMP_MAX_IMAGE_PIXELS begrenzt die Bildgroesse vor dem Dekodieren.

package imgio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	// Standard-Decoder registrieren
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/envconfig"
	"github.com/7blacky7/imp/kernels"
)

// ErrImageTooLarge wird zurueckgegeben wenn ein Bild IMP_MAX_IMAGE_PIXELS ueberschreitet
var ErrImageTooLarge = errors.New("imgio: image too large")

// Load laedt ein Bild von einem Dateipfad
func Load(path string) (*core.Image32fC1, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("datei lesen fehlgeschlagen: %w", err)
	}
	return DecodeBytes(data)
}

// LoadResized laedt ein Bild und skaliert es bilinear auf width x height
func LoadResized(path string, width, height int) (*core.Image32fC1, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("datei lesen fehlgeschlagen: %w", err)
	}
	img, _, err := decode(data)
	if err != nil {
		return nil, err
	}
	resized, err := Resize(img, width, height)
	if err != nil {
		return nil, err
	}
	return FromImage(resized)
}

// Decode dekodiert ein Bild aus einem io.Reader
func Decode(r io.Reader) (*core.Image32fC1, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("daten lesen fehlgeschlagen: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes dekodiert ein Bild aus Byte-Daten
func DecodeBytes(data []byte) (*core.Image32fC1, error) {
	img, _, err := decode(data)
	if err != nil {
		return nil, err
	}
	return FromImage(img)
}

// decode prueft Format und Groesse und dekodiert danach das ganze Bild
func decode(data []byte) (image.Image, Format, error) {
	const op = "imgio.Decode"
	format := DetectFormat(data)
	if format == FormatUnknown {
		return nil, format, core.Wrap(core.KindUnsupportedFormat, op, ErrUnknownFormat)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, format, core.Wrap(core.KindUnsupportedFormat, op, fmt.Errorf("bild-header lesen fehlgeschlagen: %w", err))
	}
	if err := checkPixels(op, cfg.Width, cfg.Height); err != nil {
		return nil, format, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, core.Wrap(core.KindUnsupportedFormat, op, fmt.Errorf("bild dekodieren fehlgeschlagen: %w", err))
	}
	return img, format, nil
}

func checkPixels(op string, width, height int) error {
	if width <= 0 || height <= 0 {
		return core.Errorf(core.KindConfig, op, "ungueltige Groesse: %dx%d", width, height)
	}
	if limit := envconfig.MaxImagePixels(); uint64(width)*uint64(height) > limit {
		return core.Wrap(core.KindRange, op, fmt.Errorf("%w: %dx%d > %d pixels", ErrImageTooLarge, width, height, limit))
	}
	return nil
}

// Resize skaliert ein Bild bilinear auf die angegebene Groesse
func Resize(img image.Image, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, core.Errorf(core.KindConfig, "imgio.Resize", "ungueltige Groesse: %dx%d", width, height)
	}
	dst := image.NewGray16(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

// toGray16 konvertiert ein beliebiges image.Image zu *image.Gray16
func toGray16(img image.Image) *image.Gray16 {
	if g, ok := img.(*image.Gray16); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray16(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)
	return gray
}

// FromImage wandelt ein image.Image in ein Device-Bild mit Werten in [0, 1]
func FromImage(img image.Image) (*core.Image32fC1, error) {
	const op = "imgio.FromImage"
	gray := toGray16(img)
	b := gray.Bounds()
	if err := checkPixels(op, b.Dx(), b.Dy()); err != nil {
		return nil, err
	}

	host, err := core.NewHostImage[float32](b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	for y := range b.Dy() {
		row := host.Row(y)
		for x := range row {
			row[x] = float32(gray.Gray16At(b.Min.X+x, b.Min.Y+y).Y) / 0xffff
		}
	}

	dev, err := core.NewDeviceImage[float32](b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	if err := kernels.Upload(host, dev, nil); err != nil {
		return nil, err
	}
	return dev, nil
}
