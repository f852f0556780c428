package tiles

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	_ "image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// DecodeImage reads a PNG or JPEG produced by the generator.
func DecodeImage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode grid image: %w", err)
	}
	return img, nil
}

// CellRect computes the pixel bounds of one grid cell from the *actual*
// produced-image dimensions. Generators do not always return exact sizes, so
// boundaries are derived proportionally and the remainder pixels land in the
// trailing cells.
func CellRect(bounds image.Rectangle, gridW, gridH, x, y int) image.Rectangle {
	w := bounds.Dx()
	h := bounds.Dy()
	x0 := bounds.Min.X + x*w/gridW
	x1 := bounds.Min.X + (x+1)*w/gridW
	y0 := bounds.Min.Y + y*h/gridH
	y1 := bounds.Min.Y + (y+1)*h/gridH
	return image.Rect(x0, y0, x1, y1)
}

// SliceCell copies one cell out of the grid image.
func SliceCell(src image.Image, gridW, gridH, x, y int) (image.Image, error) {
	if gridW <= 0 || gridH <= 0 {
		return nil, fmt.Errorf("invalid grid %dx%d", gridW, gridH)
	}
	if x < 0 || x >= gridW || y < 0 || y >= gridH {
		return nil, fmt.Errorf("cell (%d,%d) outside grid %dx%d", x, y, gridW, gridH)
	}
	rect := CellRect(src.Bounds(), gridW, gridH, x, y)
	if rect.Empty() {
		return nil, fmt.Errorf("cell (%d,%d) is empty: source image %v too small for grid %dx%d", x, y, src.Bounds(), gridW, gridH)
	}
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	xdraw.Copy(out, image.Point{}, src, rect, xdraw.Src, nil)
	return out, nil
}

// Thumbnail scales an image down so its longest edge is maxDim, preserving
// aspect ratio. Images already small enough are copied unscaled.
func Thumbnail(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		out := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.Copy(out, image.Point{}, src, b, xdraw.Src, nil)
		return out
	}
	var tw, th int
	if w >= h {
		tw = maxDim
		th = h * maxDim / w
	} else {
		th = maxDim
		tw = w * maxDim / h
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, tw, th))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), src, b, xdraw.Src, nil)
	return out
}

// EncodePNG renders an image to PNG bytes for blob upload.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
