// Package blp decodes the BLP2 texture format the 3.3.5a client stores its
// icons in. Only the read path at mipmap 0 is implemented: palettized
// (RAW1), DXT1/3/5 compressed, and uncompressed BGRA (RAW3) content all
// decode to RGBA. JPEG-typed files and the write path are out of scope.
package blp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
)

// Magic is the 4-byte signature of every BLP2 file.
const Magic = "BLP2"

const (
	headerSize  = 20 + 16*4 + 16*4 // fixed header + mip offset/size tables
	paletteSize = 256 * 4
)

// Content compression modes from the header's compression byte.
const (
	compJPEG    = 0
	compPalette = 1 // RAW1: palette indices + separate alpha plane
	compDXT     = 2
	compRawBGRA = 3 // RAW3
)

var (
	// ErrInvalidMagic is returned when the file does not start with "BLP2".
	ErrInvalidMagic = errors.New("invalid BLP2 magic")
	// ErrTruncated is returned when the buffer ends before the data the
	// header points at.
	ErrTruncated = errors.New("truncated BLP file")
	// ErrUnsupported is returned for content this thin decoder does not
	// handle (JPEG-typed files, unknown compression bytes).
	ErrUnsupported = errors.New("unsupported BLP content")
)

type header struct {
	Compression byte
	AlphaDepth  byte
	AlphaType   byte
	HasMips     byte
	Width       uint32
	Height      uint32
	MipOffset   uint32 // mip 0
	MipSize     uint32
}

// Decode parses mipmap 0 of a BLP2 buffer into an RGBA image.
func Decode(data []byte) (*image.RGBA, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	end := uint64(h.MipOffset) + uint64(h.MipSize)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: mip 0 at %d+%d, have %d bytes", ErrTruncated, h.MipOffset, h.MipSize, len(data))
	}
	mip := data[h.MipOffset:end]
	w, ht := int(h.Width), int(h.Height)

	switch h.Compression {
	case compPalette:
		return decodePalettized(data, mip, w, ht, h.AlphaDepth)
	case compDXT:
		return decodeDXT(mip, w, ht, h.AlphaDepth, h.AlphaType)
	case compRawBGRA:
		return decodeRawBGRA(mip, w, ht)
	default:
		return nil, fmt.Errorf("%w: compression=%d", ErrUnsupported, h.Compression)
	}
}

// Size returns a BLP's dimensions without decoding pixel data.
func Size(data []byte) (w, h int, err error) {
	hd, err := parseHeader(data)
	if err != nil {
		return 0, 0, err
	}
	return int(hd.Width), int(hd.Height), nil
}

func parseHeader(data []byte) (header, error) {
	if len(data) < 4 || string(data[:4]) != Magic {
		return header{}, ErrInvalidMagic
	}
	if len(data) < headerSize {
		return header{}, ErrTruncated
	}
	typ := binary.LittleEndian.Uint32(data[4:])
	if typ == compJPEG {
		return header{}, fmt.Errorf("%w: JPEG-typed file", ErrUnsupported)
	}
	h := header{
		Compression: data[8],
		AlphaDepth:  data[9],
		AlphaType:   data[10],
		HasMips:     data[11],
		Width:       binary.LittleEndian.Uint32(data[12:]),
		Height:      binary.LittleEndian.Uint32(data[16:]),
		MipOffset:   binary.LittleEndian.Uint32(data[20:]),
		MipSize:     binary.LittleEndian.Uint32(data[20+16*4:]),
	}
	if h.Width == 0 || h.Height == 0 || h.Width > 4096 || h.Height > 4096 {
		return header{}, fmt.Errorf("%w: %dx%d", ErrUnsupported, h.Width, h.Height)
	}
	if h.MipOffset == 0 || h.MipSize == 0 {
		return header{}, fmt.Errorf("%w: empty mip 0", ErrTruncated)
	}
	return h, nil
}

// decodePalettized expands RAW1 content: one palette index per pixel, BGRA
// palette after the header, then an alpha plane whose width depends on
// alphaDepth (0, 1, 4 or 8 bits per pixel).
func decodePalettized(file, mip []byte, w, h int, alphaDepth byte) (*image.RGBA, error) {
	if len(file) < headerSize+paletteSize {
		return nil, fmt.Errorf("%w: missing palette", ErrTruncated)
	}
	palette := file[headerSize : headerSize+paletteSize]

	pixels := w * h
	if len(mip) < pixels {
		return nil, fmt.Errorf("%w: index plane", ErrTruncated)
	}
	alpha := mip[pixels:]
	need := alphaPlaneSize(pixels, alphaDepth)
	if len(alpha) < need {
		return nil, fmt.Errorf("%w: alpha plane (%d bits)", ErrTruncated, alphaDepth)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < pixels; i++ {
		pi := int(mip[i]) * 4
		img.Pix[i*4+0] = palette[pi+2] // palette is BGRA
		img.Pix[i*4+1] = palette[pi+1]
		img.Pix[i*4+2] = palette[pi+0]
		img.Pix[i*4+3] = paletteAlpha(alpha, i, alphaDepth)
	}
	return img, nil
}

func alphaPlaneSize(pixels int, depth byte) int {
	switch depth {
	case 1:
		return (pixels + 7) / 8
	case 4:
		return (pixels + 1) / 2
	case 8:
		return pixels
	default:
		return 0
	}
}

func paletteAlpha(plane []byte, i int, depth byte) byte {
	switch depth {
	case 1:
		if plane[i/8]&(1<<(i%8)) != 0 {
			return 0xFF
		}
		return 0
	case 4:
		v := plane[i/2]
		if i%2 == 1 {
			v >>= 4
		}
		v &= 0x0F
		return v<<4 | v
	case 8:
		return plane[i]
	default:
		return 0xFF
	}
}

// decodeDXT picks the S3TC variant the header implies: alphaDepth 0/1 is
// DXT1, alphaType 1 is DXT3, alphaType 7 (or 8-bit interpolated) is DXT5.
func decodeDXT(mip []byte, w, h int, alphaDepth, alphaType byte) (*image.RGBA, error) {
	switch {
	case alphaDepth <= 1:
		return decodeDXTBlocks(mip, w, h, 8, decodeDXT1Block)
	case alphaType == 1:
		return decodeDXTBlocks(mip, w, h, 16, decodeDXT3Block)
	case alphaType == 7 || alphaType == 8:
		return decodeDXTBlocks(mip, w, h, 16, decodeDXT5Block)
	default:
		return nil, fmt.Errorf("%w: DXT alphaDepth=%d alphaType=%d", ErrUnsupported, alphaDepth, alphaType)
	}
}

func decodeDXTBlocks(mip []byte, w, h, blockSize int, decode func(block []byte, out *[16][4]byte)) (*image.RGBA, error) {
	bw := (w + 3) / 4
	bh := (h + 3) / 4
	if len(mip) < bw*bh*blockSize {
		return nil, fmt.Errorf("%w: DXT data for %dx%d", ErrTruncated, w, h)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var texels [16][4]byte
	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			block := mip[(by*bw+bx)*blockSize:]
			decode(block[:blockSize], &texels)
			for ty := 0; ty < 4; ty++ {
				y := by*4 + ty
				if y >= h {
					break
				}
				for tx := 0; tx < 4; tx++ {
					x := bx*4 + tx
					if x >= w {
						continue
					}
					copy(img.Pix[y*img.Stride+x*4:], texels[ty*4+tx][:])
				}
			}
		}
	}
	return img, nil
}

// rgb565 expands a packed 5:6:5 color with bit replication.
func rgb565(c uint16) (r, g, b byte) {
	r5 := byte(c >> 11 & 0x1F)
	g6 := byte(c >> 5 & 0x3F)
	b5 := byte(c & 0x1F)
	return r5<<3 | r5>>2, g6<<2 | g6>>4, b5<<3 | b5>>2
}

// colorTable builds the 4-entry interpolated palette of a DXT color block.
// In DXT1's c0<=c1 mode the 4th entry is transparent black; DXT3/5 blocks
// always interpolate (opaque=true).
func colorTable(block []byte, opaque bool) [4][4]byte {
	c0 := binary.LittleEndian.Uint16(block)
	c1 := binary.LittleEndian.Uint16(block[2:])
	r0, g0, b0 := rgb565(c0)
	r1, g1, b1 := rgb565(c1)

	var t [4][4]byte
	t[0] = [4]byte{r0, g0, b0, 0xFF}
	t[1] = [4]byte{r1, g1, b1, 0xFF}
	if opaque || c0 > c1 {
		t[2] = [4]byte{byte((2*int(r0) + int(r1)) / 3), byte((2*int(g0) + int(g1)) / 3), byte((2*int(b0) + int(b1)) / 3), 0xFF}
		t[3] = [4]byte{byte((int(r0) + 2*int(r1)) / 3), byte((int(g0) + 2*int(g1)) / 3), byte((int(b0) + 2*int(b1)) / 3), 0xFF}
	} else {
		t[2] = [4]byte{byte((int(r0) + int(r1)) / 2), byte((int(g0) + int(g1)) / 2), byte((int(b0) + int(b1)) / 2), 0xFF}
		t[3] = [4]byte{0, 0, 0, 0}
	}
	return t
}

func decodeDXT1Block(block []byte, out *[16][4]byte) {
	table := colorTable(block, false)
	bits := binary.LittleEndian.Uint32(block[4:])
	for i := 0; i < 16; i++ {
		out[i] = table[bits>>(2*i)&0x3]
	}
}

func decodeDXT3Block(block []byte, out *[16][4]byte) {
	table := colorTable(block[8:], true)
	bits := binary.LittleEndian.Uint32(block[12:])
	alpha := binary.LittleEndian.Uint64(block)
	for i := 0; i < 16; i++ {
		out[i] = table[bits>>(2*i)&0x3]
		a := byte(alpha >> (4 * i) & 0xF)
		out[i][3] = a<<4 | a
	}
}

func decodeDXT5Block(block []byte, out *[16][4]byte) {
	table := colorTable(block[8:], true)
	bits := binary.LittleEndian.Uint32(block[12:])

	a0, a1 := block[0], block[1]
	var atable [8]byte
	atable[0], atable[1] = a0, a1
	if a0 > a1 {
		for i := 1; i < 7; i++ {
			atable[i+1] = byte(((7-i)*int(a0) + i*int(a1)) / 7)
		}
	} else {
		for i := 1; i < 5; i++ {
			atable[i+1] = byte(((5-i)*int(a0) + i*int(a1)) / 5)
		}
		atable[6] = 0
		atable[7] = 0xFF
	}

	// 48 bits of 3-bit alpha indices, little-endian across 6 bytes.
	var abits uint64
	for i := 5; i >= 0; i-- {
		abits = abits<<8 | uint64(block[2+i])
	}
	for i := 0; i < 16; i++ {
		out[i] = table[bits>>(2*i)&0x3]
		out[i][3] = atable[abits>>(3*i)&0x7]
	}
}

func decodeRawBGRA(mip []byte, w, h int) (*image.RGBA, error) {
	if len(mip) < w*h*4 {
		return nil, fmt.Errorf("%w: BGRA plane", ErrTruncated)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Pix[i*4+0] = mip[i*4+2]
		img.Pix[i*4+1] = mip[i*4+1]
		img.Pix[i*4+2] = mip[i*4+0]
		img.Pix[i*4+3] = mip[i*4+3]
	}
	return img, nil
}
