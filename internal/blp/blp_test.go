package blp

import (
	"encoding/binary"
	"errors"
	"testing"
)

// buildBLP assembles a minimal BLP2 file: header, palette (for RAW1), and
// one mip level.
func buildBLP(compression, alphaDepth, alphaType byte, w, h uint32, palette []byte, mip []byte) []byte {
	buf := make([]byte, headerSize+paletteSize, headerSize+paletteSize+len(mip))
	copy(buf, Magic)
	binary.LittleEndian.PutUint32(buf[4:], 1) // type 1 = non-JPEG
	buf[8] = compression
	buf[9] = alphaDepth
	buf[10] = alphaType
	buf[11] = 0
	binary.LittleEndian.PutUint32(buf[12:], w)
	binary.LittleEndian.PutUint32(buf[16:], h)
	binary.LittleEndian.PutUint32(buf[20:], uint32(headerSize+paletteSize)) // mip 0 offset
	binary.LittleEndian.PutUint32(buf[20+16*4:], uint32(len(mip)))          // mip 0 size
	copy(buf[headerSize:], palette)
	return append(buf, mip...)
}

func TestDecodePalettized(t *testing.T) {
	// Palette entry 0: opaque red, entry 1: green. Stored BGRA.
	palette := make([]byte, paletteSize)
	copy(palette[0:], []byte{0x00, 0x00, 0xFF, 0x00}) // red
	copy(palette[4:], []byte{0x00, 0xFF, 0x00, 0x00}) // green

	// 2x2 indices + 8-bit alpha plane.
	mip := []byte{
		0, 1,
		1, 0,
		0xFF, 0x80, 0x00, 0xFF,
	}
	img, err := Decode(buildBLP(compPalette, 8, 0, 2, 2, palette, mip))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Fatalf("bounds = %v", img.Bounds())
	}

	want := [][4]byte{
		{0xFF, 0x00, 0x00, 0xFF},
		{0x00, 0xFF, 0x00, 0x80},
		{0x00, 0xFF, 0x00, 0x00},
		{0xFF, 0x00, 0x00, 0xFF},
	}
	for i, w := range want {
		got := img.Pix[i*4 : i*4+4]
		for c := 0; c < 4; c++ {
			if got[c] != w[c] {
				t.Errorf("pixel %d channel %d = %#x, want %#x", i, c, got[c], w[c])
			}
		}
	}
}

func TestDecodePalettized1BitAlpha(t *testing.T) {
	palette := make([]byte, paletteSize)
	copy(palette[0:], []byte{0xFF, 0xFF, 0xFF, 0x00})

	// 4 pixels, alpha bits 0b0101: pixels 0 and 2 opaque.
	mip := []byte{0, 0, 0, 0, 0x05}
	img, err := Decode(buildBLP(compPalette, 1, 0, 4, 1, palette, mip))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	wantAlpha := []byte{0xFF, 0x00, 0xFF, 0x00}
	for i, a := range wantAlpha {
		if img.Pix[i*4+3] != a {
			t.Errorf("pixel %d alpha = %#x, want %#x", i, img.Pix[i*4+3], a)
		}
	}
}

func TestDecodeDXT1(t *testing.T) {
	// c0 > c1 selects 4-color mode. c0 = pure red (0xF800), c1 = pure
	// blue (0x001F); all indices 0 so every texel is c0.
	block := make([]byte, 8)
	binary.LittleEndian.PutUint16(block[0:], 0xF800)
	binary.LittleEndian.PutUint16(block[2:], 0x001F)

	img, err := Decode(buildBLP(compDXT, 0, 0, 4, 4, nil, block))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := 0; i < 16; i++ {
		r, g, b, a := img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3]
		if r != 0xFF || g != 0x00 || b != 0x00 || a != 0xFF {
			t.Fatalf("texel %d = (%d,%d,%d,%d), want opaque red", i, r, g, b, a)
		}
	}
}

func TestDecodeDXT1TransparentMode(t *testing.T) {
	// c0 <= c1 selects 3-color + transparent mode; index 3 is transparent.
	block := make([]byte, 8)
	binary.LittleEndian.PutUint16(block[0:], 0x0000)
	binary.LittleEndian.PutUint16(block[2:], 0xFFFF)
	binary.LittleEndian.PutUint32(block[4:], 0xFFFFFFFF) // all indices 3

	img, err := Decode(buildBLP(compDXT, 1, 0, 4, 4, nil, block))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := 0; i < 16; i++ {
		if img.Pix[i*4+3] != 0 {
			t.Fatalf("texel %d alpha = %d, want transparent", i, img.Pix[i*4+3])
		}
	}
}

func TestDecodeDXT3(t *testing.T) {
	block := make([]byte, 16)
	// Alpha nibbles: texel 0 gets 0xF, texel 1 gets 0x8, rest 0.
	binary.LittleEndian.PutUint64(block[0:], 0x8F)
	binary.LittleEndian.PutUint16(block[8:], 0xFFFF) // white
	binary.LittleEndian.PutUint16(block[10:], 0x0000)

	img, err := Decode(buildBLP(compDXT, 8, 1, 4, 4, nil, block))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Pix[3] != 0xFF {
		t.Errorf("texel 0 alpha = %#x, want 0xFF", img.Pix[3])
	}
	if img.Pix[7] != 0x88 {
		t.Errorf("texel 1 alpha = %#x, want 0x88 (nibble 0x8 replicated)", img.Pix[7])
	}
	if img.Pix[11] != 0x00 {
		t.Errorf("texel 2 alpha = %#x, want 0", img.Pix[11])
	}
	if img.Pix[0] != 0xFF || img.Pix[1] != 0xFF || img.Pix[2] != 0xFF {
		t.Error("color block did not decode to white")
	}
}

func TestDecodeDXT5(t *testing.T) {
	block := make([]byte, 16)
	block[0] = 0xFF // alpha0
	block[1] = 0x00 // alpha1
	// alpha indices all 0 -> alpha0 everywhere
	binary.LittleEndian.PutUint16(block[8:], 0x07E0) // green
	binary.LittleEndian.PutUint16(block[10:], 0x0000)

	img, err := Decode(buildBLP(compDXT, 8, 7, 4, 4, nil, block))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := 0; i < 16; i++ {
		r, g, b, a := img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3]
		if r != 0x00 || g != 0xFF || b != 0x00 || a != 0xFF {
			t.Fatalf("texel %d = (%d,%d,%d,%d), want opaque green", i, r, g, b, a)
		}
	}
}

func TestDecodeRawBGRA(t *testing.T) {
	mip := []byte{0x01, 0x02, 0x03, 0x04} // B G R A
	img, err := Decode(buildBLP(compRawBGRA, 8, 0, 1, 1, nil, mip))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Pix[0] != 0x03 || img.Pix[1] != 0x02 || img.Pix[2] != 0x01 || img.Pix[3] != 0x04 {
		t.Errorf("BGRA swizzle wrong: %v", img.Pix[:4])
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		if _, err := Decode([]byte("PNG\x00rest")); !errors.Is(err, ErrInvalidMagic) {
			t.Errorf("err = %v, want ErrInvalidMagic", err)
		}
	})

	t.Run("jpeg typed", func(t *testing.T) {
		data := buildBLP(compPalette, 8, 0, 1, 1, nil, []byte{0, 0xFF})
		binary.LittleEndian.PutUint32(data[4:], 0)
		if _, err := Decode(data); !errors.Is(err, ErrUnsupported) {
			t.Errorf("err = %v, want ErrUnsupported", err)
		}
	})

	t.Run("mip past end", func(t *testing.T) {
		data := buildBLP(compPalette, 8, 0, 1, 1, nil, []byte{0, 0xFF})
		binary.LittleEndian.PutUint32(data[20+16*4:], 50_000)
		if _, err := Decode(data); !errors.Is(err, ErrTruncated) {
			t.Errorf("err = %v, want ErrTruncated", err)
		}
	})

	t.Run("short header", func(t *testing.T) {
		if _, err := Decode([]byte("BLP2")); !errors.Is(err, ErrTruncated) {
			t.Errorf("err = %v, want ErrTruncated", err)
		}
	})
}

func TestSize(t *testing.T) {
	data := buildBLP(compRawBGRA, 8, 0, 64, 32, nil, make([]byte, 64*32*4))
	w, h, err := Size(data)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if w != 64 || h != 32 {
		t.Errorf("Size = %dx%d, want 64x32", w, h)
	}
}
