package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Layout is the memory order of the model's input tensor.
type Layout int

const (
	// NHWC is [batch, height, width, channels], the Keras default.
	NHWC Layout = iota
	// NCHW is [batch, channels, height, width].
	NCHW
)

func (l Layout) String() string {
	if l == NCHW {
		return "NCHW"
	}
	return "NHWC"
}

// DecodeImage decodes any registered format (JPEG, PNG, GIF, BMP, TIFF, WebP).
func DecodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, format, nil
}

// Preprocess converts img to opaque RGB, resizes it to width x height (no crop,
// aspect ratio not kept) and scales every channel to [0,1]. The result is a
// single-item batch of 3*width*height floats laid out as requested.
func Preprocess(img image.Image, width, height int, layout Layout) []float32 {
	rgb := toOpaqueRGB(img)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), rgb, rgb.Bounds(), draw.Src, nil)

	out := make([]float32, 3*width*height)
	plane := width * height

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			c := dst.RGBAAt(x, y)
			r, g, b := float32(c.R)/255.0, float32(c.G)/255.0, float32(c.B)/255.0
			if layout == NCHW {
				out[idx] = r
				out[plane+idx] = g
				out[2*plane+idx] = b
				continue
			}
			out[3*idx] = r
			out[3*idx+1] = g
			out[3*idx+2] = b
		}
	}
	return out
}

// toOpaqueRGB keeps each pixel's non-premultiplied color and discards alpha,
// so fully transparent pixels keep their stored RGB instead of turning black.
func toOpaqueRGB(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	out := image.NewNRGBA(bounds)

	if src, ok := img.(*image.NRGBA); ok {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			row := out.Pix[out.PixOffset(bounds.Min.X, y):out.PixOffset(bounds.Max.X, y)]
			copy(row, src.Pix[src.PixOffset(bounds.Min.X, y):src.PixOffset(bounds.Max.X, y)])
			for i := 3; i < len(row); i += 4 {
				row[i] = 0xff
			}
		}
		return out
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 0xff
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}
