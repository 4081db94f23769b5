// MODUL: imgio_test
// ZWECK: Tests fuer Laden, Kodieren und Rohdaten-Export
// INPUT: Synthetische Bilder und PNG-Bytes
// OUTPUT: Testresultate
// NEBENEFFEKTE: Temporaere Dateien in t.TempDir()
// ABHAENGIGKEITEN: testing, image, image/png, bytes
// HINWEISE: float16 Rundung wird mit Toleranz geprueft

package imgio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/7blacky7/imp/core"
)

// createPNGBytes erzeugt PNG-Bytes aus einem Testbild
func createPNGBytes(w, h int, c func(x, y int) color.Color) []byte {
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			rgba.Set(x, y, c(x, y))
		}
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, rgba)
	return buf.Bytes()
}

func uniform(c color.Color) func(int, int) color.Color {
	return func(int, int) color.Color { return c }
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, FormatJPEG},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D}, FormatPNG},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), FormatWebP},
		{"riff ohne webp", []byte("RIFF\x00\x00\x00\x00WAVE"), FormatUnknown},
		{"bmp", []byte("BM\x00\x00\x00\x00"), FormatBMP},
		{"tiff le", []byte{'I', 'I', 0x2A, 0x00}, FormatTIFF},
		{"tiff be", []byte{'M', 'M', 0x00, 0x2A}, FormatTIFF},
		{"zu kurz", []byte{0xFF}, FormatUnknown},
		{"unbekannt", []byte{0, 0, 0, 0}, FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.data); got != tt.want {
				t.Errorf("erwartet %v, bekommen %v", tt.want, got)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]Format{
		"a.PNG":       FormatPNG,
		"b/c.jpeg":    FormatJPEG,
		"left.tif":    FormatTIFF,
		"x.webp":      FormatWebP,
		"noext":       FormatUnknown,
		"disp.bin":    FormatUnknown,
		"scan.bmp":    FormatBMP,
		"photo.jpg":   FormatJPEG,
		"stack.tiff":  FormatTIFF,
		"archive.zip": FormatUnknown,
	} {
		if got := FormatFromPath(path); got != want {
			t.Errorf("%s: erwartet %v, bekommen %v", path, want, got)
		}
	}
	if FormatPNG.MimeType() != "image/png" || FormatUnknown.MimeType() != "application/octet-stream" {
		t.Error("falscher MIME-Type")
	}
}

func TestDecodeBytesGray(t *testing.T) {
	data := createPNGBytes(20, 10, func(x, y int) color.Color {
		if x < 10 {
			return color.Black
		}
		return color.White
	})

	img, err := DecodeBytes(data)
	if err != nil {
		t.Fatalf("DecodeBytes() error = %v", err)
	}
	if img.Size() != core.NewSize(20, 10) {
		t.Fatalf("erwartet 20x10, bekommen %s", img.Size())
	}
	if !img.OnDevice() {
		t.Error("erwartet Device-Bild")
	}
	if got := img.At(0, 0); got != 0 {
		t.Errorf("schwarz: erwartet 0, bekommen %v", got)
	}
	if got := img.At(19, 9); got != 1 {
		t.Errorf("weiss: erwartet 1, bekommen %v", got)
	}
}

func TestDecodeInvalid(t *testing.T) {
	_, err := DecodeBytes([]byte{0, 0, 0, 0})
	if !errors.Is(err, ErrUnknownFormat) || !errors.Is(err, core.ErrUnsupportedFormat) {
		t.Errorf("erwartet ErrUnknownFormat, bekommen %v", err)
	}

	// PNG-Signatur mit kaputtem Inhalt
	_, err = Decode(bytes.NewReader([]byte{0x89, 0x50, 0x4E, 0x47, 0, 0, 0, 0}))
	if !errors.Is(err, core.ErrUnsupportedFormat) {
		t.Errorf("erwartet ErrUnsupportedFormat, bekommen %v", err)
	}
}

func TestDecodeTooLarge(t *testing.T) {
	t.Setenv("IMP_MAX_IMAGE_PIXELS", "100")
	_, err := DecodeBytes(createPNGBytes(20, 10, uniform(color.White)))
	if !errors.Is(err, ErrImageTooLarge) || !errors.Is(err, core.ErrRange) {
		t.Errorf("erwartet ErrImageTooLarge, bekommen %v", err)
	}
}

func TestLoadResized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.png")
	if err := writeFile(path, createPNGBytes(64, 32, uniform(color.Gray{Y: 128}))); err != nil {
		t.Fatal(err)
	}

	img, err := LoadResized(path, 16, 8)
	if err != nil {
		t.Fatalf("LoadResized() error = %v", err)
	}
	if img.Size() != core.NewSize(16, 8) {
		t.Fatalf("erwartet 16x8, bekommen %s", img.Size())
	}
	if got := img.At(8, 4); math.Abs(float64(got)-128.0/255) > 1e-3 {
		t.Errorf("erwartet %v, bekommen %v", 128.0/255, got)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "fehlt.png")); err == nil {
		t.Error("erwartet Fehler fuer fehlende Datei")
	}
	if _, err := Resize(image.NewGray(image.Rect(0, 0, 2, 2)), 0, 4); !errors.Is(err, core.ErrConfig) {
		t.Errorf("erwartet ErrConfig, bekommen %v", err)
	}
}

func rampImage(t *testing.T, w, h int) *core.Image32fC1 {
	t.Helper()
	img, err := core.NewDeviceImage[float32](w, h)
	if err != nil {
		t.Fatal(err)
	}
	for y := range h {
		for x := range w {
			img.Set(x, y, float32(x)-2)
		}
	}
	return img
}

func TestToGray8(t *testing.T) {
	img := rampImage(t, 5, 2)
	g, err := ToGray8(img, -2, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint8{0, 64, 128, 191, 255}
	for x, w := range want {
		if got := g.At(x, 1); got != w {
			t.Errorf("x=%d: erwartet %d, bekommen %d", x, w, got)
		}
	}

	// konstanter Bereich ergibt 0
	g, err = ToGray8(img, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := g.At(4, 0); got != 0 {
		t.Errorf("erwartet 0, bekommen %d", got)
	}
}

func TestSaveNormalizedRoundTrip(t *testing.T) {
	img := rampImage(t, 5, 3)
	path := filepath.Join(t.TempDir(), "disp.png")
	if err := SaveNormalized(path, img); err != nil {
		t.Fatalf("SaveNormalized() error = %v", err)
	}

	back, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Size() != img.Size() {
		t.Fatalf("erwartet %s, bekommen %s", img.Size(), back.Size())
	}
	if back.At(0, 0) != 0 || back.At(4, 2) != 1 {
		t.Errorf("erwartet Bereich [0, 1], bekommen %v..%v", back.At(0, 0), back.At(4, 2))
	}
}

func TestRawF16RoundTrip(t *testing.T) {
	img := rampImage(t, 7, 3)
	img.Set(3, 1, 0.3333)

	var buf bytes.Buffer
	if err := WriteRawF16(&buf, img); err != nil {
		t.Fatal(err)
	}
	if want := 16 + 2*7*3; buf.Len() != want {
		t.Errorf("erwartet %d Bytes, bekommen %d", want, buf.Len())
	}

	back, err := ReadRawF16(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	for y := range img.Height() {
		for x := range img.Width() {
			if d := math.Abs(float64(back.At(x, y) - img.At(x, y))); d > 1e-3 {
				t.Errorf("(%d,%d): erwartet %v, bekommen %v", x, y, img.At(x, y), back.At(x, y))
			}
		}
	}
}

func TestReadRawF16Invalid(t *testing.T) {
	if _, err := ReadRawF16(bytes.NewReader([]byte("XXXX"))); !errors.Is(err, core.ErrUnsupportedFormat) {
		t.Errorf("erwartet ErrUnsupportedFormat, bekommen %v", err)
	}

	var buf bytes.Buffer
	if err := WriteRawF16(&buf, rampImage(t, 4, 4)); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:buf.Len()-3]
	if _, err := ReadRawF16(bytes.NewReader(truncated)); !errors.Is(err, core.ErrUnsupportedFormat) {
		t.Errorf("erwartet ErrUnsupportedFormat fuer abgeschnittene Daten, bekommen %v", err)
	}
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func TestStats(t *testing.T) {
	img, err := core.NewDeviceImage[float32](4, 2)
	if err != nil {
		t.Fatal(err)
	}
	copy(img.Row(0), []float32{-1, 0, 1, 2})
	copy(img.Row(1), []float32{3, 4, 5, 6})

	lo, hi, mean, err := Stats(img)
	if err != nil {
		t.Fatal(err)
	}
	if lo != -1 || hi != 6 {
		t.Errorf("erwartet [-1, 6], bekommen [%v, %v]", lo, hi)
	}
	if math.Abs(mean-2.5) > 1e-9 {
		t.Errorf("erwartet Mittelwert 2.5, bekommen %v", mean)
	}

	if _, _, _, err := Stats(nil); !errors.Is(err, core.ErrConfig) {
		t.Errorf("erwartet ErrConfig, bekommen %v", err)
	}
}
