// raw.go - Rohdaten-Export von Feldern in halber Genauigkeit
//
// Dieses Modul enthaelt:
// - WriteRawF16: Header + float16 Pixel (little endian)
// - ReadRawF16: Gegenstueck, liefert ein Device-Bild
//
// Format: "IMPH" | width uint32 | height uint32 | channels uint32 | pixel...
package imgio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/x448/float16"

	"github.com/7blacky7/imp/core"
	"github.com/7blacky7/imp/kernels"
)

var rawMagic = [4]byte{'I', 'M', 'P', 'H'}

type rawHeader struct {
	Magic    [4]byte
	Width    uint32
	Height   uint32
	Channels uint32
}

// WriteRawF16 schreibt ein einkanaliges Bild in halber Genauigkeit
func WriteRawF16(w io.Writer, img *core.Image32fC1) error {
	const op = "imgio.WriteRawF16"
	if img == nil || img.Size().Empty() {
		return core.Errorf(core.KindConfig, op, "nil or empty image")
	}
	src, err := hostCopy(img, nil)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	hdr := rawHeader{Magic: rawMagic, Width: uint32(img.Width()), Height: uint32(img.Height()), Channels: 1}
	if err := binary.Write(bw, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("header schreiben fehlgeschlagen: %w", err)
	}

	buf := make([]byte, 2*img.Width())
	for y := range src.Height() {
		for x, v := range src.Row(y) {
			binary.LittleEndian.PutUint16(buf[2*x:], float16.Fromfloat32(v).Bits())
		}
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("pixel schreiben fehlgeschlagen: %w", err)
		}
	}
	return bw.Flush()
}

// ReadRawF16 liest ein mit WriteRawF16 geschriebenes Bild
func ReadRawF16(r io.Reader) (*core.Image32fC1, error) {
	const op = "imgio.ReadRawF16"
	br := bufio.NewReader(r)

	var hdr rawHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, core.Wrap(core.KindUnsupportedFormat, op, fmt.Errorf("header lesen fehlgeschlagen: %w", err))
	}
	if hdr.Magic != rawMagic {
		return nil, core.Wrap(core.KindUnsupportedFormat, op, ErrUnknownFormat)
	}
	if hdr.Channels != 1 {
		return nil, core.Errorf(core.KindUnsupportedFormat, op, "%d channels", hdr.Channels)
	}
	if err := checkPixels(op, int(hdr.Width), int(hdr.Height)); err != nil {
		return nil, err
	}

	w, h := int(hdr.Width), int(hdr.Height)
	host, err := core.NewHostImage[float32](w, h)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 2*w)
	for y := range h {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, core.Wrap(core.KindUnsupportedFormat, op, fmt.Errorf("zeile %d: %w", y, err))
		}
		row := host.Row(y)
		for x := range row {
			row[x] = float16.Frombits(binary.LittleEndian.Uint16(buf[2*x:])).Float32()
		}
	}

	dev, err := core.NewDeviceImage[float32](w, h)
	if err != nil {
		return nil, err
	}
	if err := kernels.Upload(host, dev, nil); err != nil {
		return nil, err
	}
	return dev, nil
}
