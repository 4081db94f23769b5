// types.go - Grundlegende Typen fuer Bilder und Bildgeometrie
// Dieses Modul definiert Size, Rect, PixelFormat, Location und Interpolation.
package core

import (
	"fmt"
	"math"
)

// Size is the extent of a 2D image in pixels.
type Size struct {
	Width  int
	Height int
}

// NewSize returns a Size with the given width and height.
func NewSize(width, height int) Size {
	return Size{Width: width, Height: height}
}

// Shorter returns the length of the shorter side.
func (s Size) Shorter() int {
	return min(s.Width, s.Height)
}

// Area returns the number of pixels.
func (s Size) Area() int {
	return s.Width * s.Height
}

// Empty reports whether one of the sides is not positive.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Scale multiplies both sides by f and rounds to the nearest integer.
// The result is never smaller than 1x1.
func (s Size) Scale(f float32) Size {
	return Size{
		Width:  max(1, int(math.Floor(float64(s.Width)*float64(f)+0.5))),
		Height: max(1, int(math.Floor(float64(s.Height)*float64(f)+0.5))),
	}
}

// Rect returns a rectangle covering the whole image.
func (s Size) Rect() Rect {
	return Rect{Width: s.Width, Height: s.Height}
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Rect is a region of interest inside an image.
type Rect struct {
	X, Y          int
	Width, Height int
}

// In reports whether r lies completely inside an image of the given size.
func (r Rect) In(s Size) bool {
	return r.X >= 0 && r.Y >= 0 && r.Width >= 0 && r.Height >= 0 &&
		r.X+r.Width <= s.Width && r.Y+r.Height <= s.Height
}

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)+%dx%d", r.X, r.Y, r.Width, r.Height)
}

// PixelFormat tags the element type and channel count of an image.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	Pixel8uC1
	Pixel32fC1
	Pixel32fC2
)

// BytesPerPixel returns the storage size of a single pixel.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case Pixel8uC1:
		return 1
	case Pixel32fC1:
		return 4
	case Pixel32fC2:
		return 8
	default:
		return 0
	}
}

// Channels returns the number of channels per pixel.
func (f PixelFormat) Channels() int {
	switch f {
	case Pixel8uC1, Pixel32fC1:
		return 1
	case Pixel32fC2:
		return 2
	default:
		return 0
	}
}

func (f PixelFormat) String() string {
	switch f {
	case Pixel8uC1:
		return "8uC1"
	case Pixel32fC1:
		return "32fC1"
	case Pixel32fC2:
		return "32fC2"
	default:
		return "unknown"
	}
}

// Location describes where the pixel memory of an image resides.
type Location int

const (
	Host Location = iota
	Device
)

func (l Location) String() string {
	if l == Device {
		return "device"
	}
	return "host"
}

// Interpolation specifies the sampling method used when resizing images.
type Interpolation int

const (
	InterpolateNearest Interpolation = iota
	InterpolateLinear
	InterpolateCubic
)

func (i Interpolation) String() string {
	switch i {
	case InterpolateNearest:
		return "nearest"
	case InterpolateLinear:
		return "linear"
	case InterpolateCubic:
		return "cubic"
	default:
		return fmt.Sprintf("Interpolation(%d)", int(i))
	}
}

// ParseInterpolation converts a name such as "linear" into an Interpolation.
func ParseInterpolation(s string) (Interpolation, error) {
	switch s {
	case "nearest", "nn":
		return InterpolateNearest, nil
	case "linear", "bilinear", "":
		return InterpolateLinear, nil
	case "cubic", "bicubic":
		return InterpolateCubic, nil
	}
	return InterpolateLinear, Errorf(KindConfig, "parse interpolation", "unknown interpolation %q", s)
}

// Vec2f is a two channel float pixel, used for vector fields.
type Vec2f struct {
	X, Y float32
}

// Norm returns the euclidean length of v.
func (v Vec2f) Norm() float32 {
	return float32(math.Hypot(float64(v.X), float64(v.Y)))
}

// Scale multiplies both components by f.
func (v Vec2f) Scale(f float32) Vec2f {
	return Vec2f{v.X * f, v.Y * f}
}
