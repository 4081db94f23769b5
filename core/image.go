// MODUL: image
// ZWECK: Gepitchter 2D-Bildpuffer fuer Host- und Device-Speicher
// INPUT: Breite, Hoehe, Speicherort oder externer Datenpuffer
// OUTPUT: Image[T] mit Zeilenzugriff, Pixel-Format und Stride
// NEBENEFFEKTE: Speicherallokation (ausser bei WrapImage)
// ABHAENGIGKEITEN: unsafe (Standard-Library) fuer die Byte-Sicht
// HINWEISE: Zeilen werden auf 32 Byte ausgerichtet, die Form ist unveraenderlich

package core

import (
	"fmt"
	"unsafe"
)

// rowAlignment ist die Ausrichtung einer Bildzeile in Bytes.
const rowAlignment = 32

// Pixel ist die Menge der unterstuetzten Pixel-Typen.
type Pixel interface {
	uint8 | float32 | Vec2f
}

// Imager ist die formatunabhaengige Sicht auf ein Bild.
type Imager interface {
	Size() Size
	Stride() int
	PixelFormat() PixelFormat
	OnDevice() bool
	Bytes() []byte
}

// Image ist ein gepitchter Bildpuffer mit Elementen vom Typ T.
// Stride wird in Elementen gezaehlt.
type Image[T Pixel] struct {
	size     Size
	stride   int
	pix      []T
	location Location
	external bool
}

type (
	Image8uC1  = Image[uint8]
	Image32fC1 = Image[float32]
	Image32fC2 = Image[Vec2f]
)

// PixelFormatOf liefert das Pixel-Format fuer den Typ T.
func PixelFormatOf[T Pixel]() PixelFormat {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return Pixel8uC1
	case float32:
		return Pixel32fC1
	case Vec2f:
		return Pixel32fC2
	}
	return PixelFormatUnknown
}

// alignedStride berechnet den Stride in Elementen fuer eine Zeile der Breite width.
func alignedStride[T Pixel](width int) int {
	bpp := PixelFormatOf[T]().BytesPerPixel()
	rowBytes := (width*bpp + rowAlignment - 1) / rowAlignment * rowAlignment
	return rowBytes / bpp
}

// ============================================================================
// Konstruktoren
// ============================================================================

// NewImage erstellt ein mit Nullen gefuelltes Bild am angegebenen Speicherort.
func NewImage[T Pixel](size Size, loc Location) (*Image[T], error) {
	if size.Empty() {
		return nil, Errorf(KindConfig, "core.NewImage", "invalid size %s", size)
	}
	stride := alignedStride[T](size.Width)
	return &Image[T]{
		size:     size,
		stride:   stride,
		pix:      make([]T, stride*size.Height),
		location: loc,
	}, nil
}

// NewDeviceImage erstellt ein Device-Bild.
func NewDeviceImage[T Pixel](width, height int) (*Image[T], error) {
	return NewImage[T](NewSize(width, height), Device)
}

// NewHostImage erstellt ein Host-Bild.
func NewHostImage[T Pixel](width, height int) (*Image[T], error) {
	return NewImage[T](NewSize(width, height), Host)
}

// WrapImage verwendet einen externen Puffer ohne Kopie.
// stride ist in Elementen angegeben und muss mindestens width sein.
func WrapImage[T Pixel](data []T, width, height, stride int, loc Location) (*Image[T], error) {
	const op = "core.WrapImage"
	if width <= 0 || height <= 0 {
		return nil, Errorf(KindConfig, op, "invalid size %dx%d", width, height)
	}
	if stride < width {
		return nil, Errorf(KindConfig, op, "stride %d smaller than width %d", stride, width)
	}
	if need := stride*(height-1) + width; len(data) < need {
		return nil, Errorf(KindConfig, op, "buffer too small: %d < %d", len(data), need)
	}
	return &Image[T]{
		size:     NewSize(width, height),
		stride:   stride,
		pix:      data,
		location: loc,
		external: true,
	}, nil
}

// ============================================================================
// Zugriff
// ============================================================================

// Size gibt die Bildgroesse zurueck, fuer ein nil-Bild 0x0.
func (m *Image[T]) Size() Size {
	if m == nil {
		return Size{}
	}
	return m.size
}

func (m *Image[T]) Width() int { return m.size.Width }
func (m *Image[T]) Height() int { return m.size.Height }
func (m *Image[T]) Stride() int { return m.stride }
func (m *Image[T]) Location() Location { return m.location }
func (m *Image[T]) OnDevice() bool { return m.location == Device }
func (m *Image[T]) External() bool { return m.external }
func (m *Image[T]) PixelFormat() PixelFormat { return PixelFormatOf[T]() }

// Pix liefert den gesamten Puffer inklusive Padding.
func (m *Image[T]) Pix() []T {
	return m.pix
}

// Row liefert die Zeile y ohne Padding.
func (m *Image[T]) Row(y int) []T {
	off := y * m.stride
	return m.pix[off : off+m.size.Width : off+m.size.Width]
}

// At liefert den Pixel an Position (x, y).
func (m *Image[T]) At(x, y int) T {
	return m.pix[y*m.stride+x]
}

// Set setzt den Pixel an Position (x, y).
func (m *Image[T]) Set(x, y int, v T) {
	m.pix[y*m.stride+x] = v
}

// Fill setzt alle Pixel (ohne Padding) auf v.
func (m *Image[T]) Fill(v T) {
	for y := range m.size.Height {
		row := m.Row(y)
		for x := range row {
			row[x] = v
		}
	}
}

// Bytes liefert eine Byte-Sicht auf den Puffer.
func (m *Image[T]) Bytes() []byte {
	if len(m.pix) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&m.pix[0])), len(m.pix)*int(unsafe.Sizeof(zero)))
}

// Clone erstellt eine tiefe Kopie am selben Speicherort.
func (m *Image[T]) Clone() *Image[T] {
	c := &Image[T]{
		size:     m.size,
		stride:   m.stride,
		pix:      make([]T, len(m.pix)),
		location: m.location,
	}
	copy(c.pix, m.pix)
	return c
}

// SameGeometry prueft ob zwei Bilder dieselbe Groesse haben.
func (m *Image[T]) SameGeometry(o Imager) bool {
	return o != nil && m.size == o.Size()
}

func (m *Image[T]) String() string {
	return fmt.Sprintf("Image(%s, %s, stride=%d, %s)", m.size, m.PixelFormat(), m.stride, m.location)
}
