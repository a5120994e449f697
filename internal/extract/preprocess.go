package extract

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"

	"golang.org/x/image/draw"
)

// preprocess prepares an identity-document photo for OCR: downscale to a
// bounded dimension, sharpen, stretch contrast and binarize. The result is
// written as a temporary PNG; the caller removes it. Any failure returns
// an error and the extractor falls back to the original file, since a
// best-effort cleanup must never block extraction.
func preprocess(path, tmpDir string, maxDimension int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	img := downscale(src, maxDimension)
	gray := toGray(img)
	gray = sharpen(gray)
	gray = stretchContrast(gray)
	bw := binarize(gray, 128)

	out, err := os.CreateTemp(tmpDir, "docsign-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	defer out.Close()

	if err := png.Encode(out, bw); err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("encode image: %w", err)
	}
	return out.Name(), nil
}

// downscale resizes so the longer side is at most maxDimension. Images
// already within bounds are returned as-is; we never upscale.
func downscale(src image.Image, maxDimension int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if maxDimension <= 0 || longest <= maxDimension {
		return src
	}

	scale := float64(maxDimension) / float64(longest)
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// sharpen applies a 3x3 unsharp kernel. Edges keep the source pixel.
func sharpen(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(b)
	copy(dst.Pix, src.Pix)

	kernel := [3][3]int{
		{0, -1, 0},
		{-1, 5, -1},
		{0, -1, 0},
	}
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var sum int
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					sum += int(src.GrayAt(x+kx, y+ky).Y) * kernel[ky+1][kx+1]
				}
			}
			dst.SetGray(x, y, color.Gray{Y: clampByte(sum)})
		}
	}
	return dst
}

// stretchContrast remaps the observed intensity range onto [0, 255].
func stretchContrast(src *image.Gray) *image.Gray {
	lo, hi := uint8(255), uint8(0)
	for _, p := range src.Pix {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	if hi <= lo {
		return src
	}

	dst := image.NewGray(src.Bounds())
	span := int(hi) - int(lo)
	for i, p := range src.Pix {
		dst.Pix[i] = uint8((int(p) - int(lo)) * 255 / span)
	}
	return dst
}

func binarize(src *image.Gray, threshold uint8) *image.Gray {
	dst := image.NewGray(src.Bounds())
	for i, p := range src.Pix {
		if p >= threshold {
			dst.Pix[i] = 255
		} else {
			dst.Pix[i] = 0
		}
	}
	return dst
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
