// Package preprocess turns encoded image bytes into the classifier's input
// tensor.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/Brownie44l1/blight-api/internal/model"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode covers both corrupt data and unsupported formats.
var ErrDecode = errors.New("could not decode image")

const channels = 3

// DefaultMaxPixels rejects decompression bombs before their pixels are
// allocated.
const DefaultMaxPixels = 178956970

type Preprocessor struct {
	width     uint
	height    uint
	maxPixels int64
}

type Option func(*Preprocessor)

// WithMaxPixels caps width*height of accepted images. Values <= 0 keep the
// default.
func WithMaxPixels(n int64) Option {
	return func(p *Preprocessor) {
		if n > 0 {
			p.maxPixels = n
		}
	}
}

func New(metadata model.Metadata, opts ...Option) *Preprocessor {
	height, width := metadata.ImageSize()
	p := &Preprocessor{width: uint(width), height: uint(height), maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Preprocess decodes data, drops any alpha channel, stretches the image to the
// model's input size without preserving aspect ratio, and returns an NHWC
// tensor of raw 0-255 intensities with a batch dimension of 1.
func (p *Preprocessor) Preprocess(data []byte) (model.Tensor, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return model.Tensor{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return model.Tensor{}, fmt.Errorf("%w: image has no pixels", ErrDecode)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > p.maxPixels {
		return model.Tensor{}, fmt.Errorf("%w: %dx%d image exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, p.maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return model.Tensor{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return model.Tensor{}, fmt.Errorf("%w: image has no pixels", ErrDecode)
	}

	resized := resize.Resize(p.width, p.height, toRGB(img), resize.Bicubic)

	return p.tensor(resized), nil
}

// toRGB copies img into an opaque RGBA image. Alpha is discarded rather than
// composited so translucent pixels keep their stored color.
func toRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < bounds.Dy(); y++ {
			s := src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			d := dst.Pix[dst.PixOffset(0, y):]
			for i := 0; i < bounds.Dx()*4; i += 4 {
				d[i], d[i+1], d[i+2], d[i+3] = s[i], s[i+1], s[i+2], 0xff
			}
		}
	case *image.Paletted:
		palette := make([][3]uint8, len(src.Palette))
		for i, c := range src.Palette {
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			palette[i] = [3]uint8{n.R, n.G, n.B}
		}
		for y := 0; y < bounds.Dy(); y++ {
			s := src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			d := dst.Pix[dst.PixOffset(0, y):]
			for x := 0; x < bounds.Dx(); x++ {
				var c [3]uint8
				if int(s[x]) < len(palette) {
					c = palette[s[x]]
				}
				d[x*4], d[x*4+1], d[x*4+2], d[x*4+3] = c[0], c[1], c[2], 0xff
			}
		}
	default:
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
		unpremultiply(dst)
	}
	return dst
}

// unpremultiply undoes the alpha scaling draw.Src applies and marks every
// pixel opaque. Fully transparent pixels come out black.
func unpremultiply(img *image.RGBA) {
	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		a := uint32(pix[i+3])
		if a != 0xff && a != 0 {
			pix[i] = uint8(uint32(pix[i]) * 0xff / a)
			pix[i+1] = uint8(uint32(pix[i+1]) * 0xff / a)
			pix[i+2] = uint8(uint32(pix[i+2]) * 0xff / a)
		}
		pix[i+3] = 0xff
	}
}

func (p *Preprocessor) tensor(img image.Image) model.Tensor {
	width, height := int(p.width), int(p.height)
	bounds := img.Bounds()
	rgba, fast := img.(*image.RGBA)

	data := make([]float32, height*width*channels)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var r, g, b uint8
			if fast {
				i := rgba.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
				r, g, b = rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2]
			} else {
				r16, g16, b16, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				r, g, b = uint8(r16>>8), uint8(g16>>8), uint8(b16>>8)
			}

			j := (y*width + x) * channels
			data[j] = float32(r)
			data[j+1] = float32(g)
			data[j+2] = float32(b)
		}
	}

	return model.Tensor{
		Shape: []int64{1, int64(height), int64(width), channels},
		Data:  data,
	}
}
