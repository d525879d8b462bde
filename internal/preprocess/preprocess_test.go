package preprocess

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/Brownie44l1/blight-api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func fill(img interface{ Set(x, y int, c color.Color) }, bounds image.Rectangle, c color.Color) {
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pixel(tensor model.Tensor, x, y int) [3]float32 {
	width := int(tensor.Shape[2])
	j := (y*width + x) * 3
	return [3]float32{tensor.Data[j], tensor.Data[j+1], tensor.Data[j+2]}
}

func TestPreprocessFormats(t *testing.T) {
	rect := image.Rect(0, 0, 40, 30)

	rgba := image.NewRGBA(rect)
	fill(rgba, rect, color.RGBA{R: 200, G: 120, B: 40, A: 255})

	gray := image.NewGray(rect)
	fill(gray, rect, color.Gray{Y: 128})

	paletted := image.NewPaletted(rect, color.Palette{color.RGBA{R: 255, A: 255}, color.RGBA{B: 255, A: 255}})
	fill(paletted, rect, color.RGBA{R: 255, A: 255})

	encoders := map[string]func() []byte{
		"png_rgba":     func() []byte { return encodePNG(t, rgba) },
		"png_gray":     func() []byte { return encodePNG(t, gray) },
		"png_paletted": func() []byte { return encodePNG(t, paletted) },
		"jpeg": func() []byte {
			var buf bytes.Buffer
			require.NoError(t, jpeg.Encode(&buf, rgba, nil))
			return buf.Bytes()
		},
		"gif": func() []byte {
			var buf bytes.Buffer
			require.NoError(t, gif.Encode(&buf, paletted, nil))
			return buf.Bytes()
		},
		"bmp": func() []byte {
			var buf bytes.Buffer
			require.NoError(t, bmp.Encode(&buf, rgba))
			return buf.Bytes()
		},
		"tiff": func() []byte {
			var buf bytes.Buffer
			require.NoError(t, tiff.Encode(&buf, gray, nil))
			return buf.Bytes()
		},
	}

	p := New(model.DefaultMetadata())
	for name, encode := range encoders {
		t.Run(name, func(t *testing.T) {
			tensor, err := p.Preprocess(encode())
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 256, 256, 3}, tensor.Shape)
			assert.Len(t, tensor.Data, 256*256*3)
		})
	}
}

func TestPreprocessColorConversion(t *testing.T) {
	p := New(model.DefaultMetadata())
	rect := image.Rect(0, 0, 16, 16)

	t.Run("gray", func(t *testing.T) {
		gray := image.NewGray(rect)
		fill(gray, rect, color.Gray{Y: 128})

		tensor, err := p.Preprocess(encodePNG(t, gray))
		require.NoError(t, err)
		assert.Equal(t, [3]float32{128, 128, 128}, pixel(tensor, 100, 100))
	})

	t.Run("paletted", func(t *testing.T) {
		paletted := image.NewPaletted(rect, color.Palette{color.RGBA{R: 255, A: 255}, color.RGBA{B: 255, A: 255}})
		fill(paletted, rect, color.RGBA{B: 255, A: 255})

		tensor, err := p.Preprocess(encodePNG(t, paletted))
		require.NoError(t, err)
		assert.Equal(t, [3]float32{0, 0, 255}, pixel(tensor, 0, 0))
	})

	t.Run("opaque rgb", func(t *testing.T) {
		rgba := image.NewRGBA(rect)
		fill(rgba, rect, color.RGBA{R: 200, G: 120, B: 40, A: 255})

		tensor, err := p.Preprocess(encodePNG(t, rgba))
		require.NoError(t, err)
		assert.Equal(t, [3]float32{200, 120, 40}, pixel(tensor, 255, 255))
	})

	t.Run("alpha is dropped", func(t *testing.T) {
		nrgba := image.NewNRGBA(rect)
		fill(nrgba, rect, color.NRGBA{R: 10, G: 20, B: 30, A: 64})

		tensor, err := p.Preprocess(encodePNG(t, nrgba))
		require.NoError(t, err)
		assert.Equal(t, [3]float32{10, 20, 30}, pixel(tensor, 128, 128))
	})
}

func TestPreprocessStretchesWithoutCropping(t *testing.T) {
	rect := image.Rect(0, 0, 512, 100)
	img := image.NewRGBA(rect)
	fill(img, image.Rect(0, 0, 256, 100), color.RGBA{R: 255, A: 255})
	fill(img, image.Rect(256, 0, 512, 100), color.RGBA{B: 255, A: 255})

	tensor, err := New(model.DefaultMetadata()).Preprocess(encodePNG(t, img))
	require.NoError(t, err)

	assert.Equal(t, [3]float32{255, 0, 0}, pixel(tensor, 0, 0))
	assert.Equal(t, [3]float32{0, 0, 255}, pixel(tensor, 255, 255))
}

func TestPreprocessDeterministic(t *testing.T) {
	rect := image.Rect(0, 0, 37, 53)
	img := image.NewRGBA(rect)
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: uint8(x + y), A: 255})
		}
	}
	data := encodePNG(t, img)

	p := New(model.DefaultMetadata())
	first, err := p.Preprocess(data)
	require.NoError(t, err)
	second, err := p.Preprocess(data)
	require.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)
}

func TestPreprocessCustomSize(t *testing.T) {
	metadata := model.DefaultMetadata()
	metadata.InputShape = []int64{1, 64, 32, 3}

	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	tensor, err := New(metadata).Preprocess(encodePNG(t, img))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 64, 32, 3}, tensor.Shape)
	assert.Len(t, tensor.Data, 64*32*3)
}

func TestPreprocessInvalid(t *testing.T) {
	p := New(model.DefaultMetadata())

	for name, data := range map[string][]byte{
		"empty":     {},
		"nil":       nil,
		"garbage":   []byte("definitely not an image"),
		"truncated": encodePNG(t, image.NewRGBA(image.Rect(0, 0, 8, 8)))[:20],
	} {
		t.Run(name, func(t *testing.T) {
			_, err := p.Preprocess(data)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

// resizePNGHeader rewrites the IHDR dimensions of an encoded PNG, leaving the
// pixel data untouched.
func resizePNGHeader(t *testing.T, data []byte, width, height uint32) []byte {
	require.Equal(t, "IHDR", string(data[12:16]))
	out := append([]byte(nil), data...)
	binary.BigEndian.PutUint32(out[16:20], width)
	binary.BigEndian.PutUint32(out[20:24], height)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestPreprocessRejectsOversizedImages(t *testing.T) {
	small := encodePNG(t, image.NewGray(image.Rect(0, 0, 8, 8)))

	t.Run("default limit", func(t *testing.T) {
		bomb := resizePNGHeader(t, small, 30000, 30000)

		cfg, err := png.DecodeConfig(bytes.NewReader(bomb))
		require.NoError(t, err)
		require.Equal(t, 30000, cfg.Width)

		_, err = New(model.DefaultMetadata()).Preprocess(bomb)
		assert.ErrorIs(t, err, ErrDecode)
		assert.ErrorContains(t, err, "exceeds")
	})

	t.Run("configured limit", func(t *testing.T) {
		img := image.NewGray(image.Rect(0, 0, 20, 20))
		p := New(model.DefaultMetadata(), WithMaxPixels(399))

		_, err := p.Preprocess(encodePNG(t, img))
		assert.ErrorIs(t, err, ErrDecode)

		_, err = New(model.DefaultMetadata(), WithMaxPixels(400)).Preprocess(encodePNG(t, img))
		assert.NoError(t, err)
	})
}
