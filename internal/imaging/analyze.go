package imaging

import (
	"image"
	"image/color"
)

// channelThreshold is the 8-bit channel value a pixel must reach to count
// towards that channel's ratio.
const channelThreshold = 200

// Ratios holds the share of pixels whose red, green and blue channel reach
// channelThreshold.
type Ratios struct {
	R, G, B float64
}

// ChannelRatios computes Ratios over rect of img.
func ChannelRatios(img image.Image, rect image.Rectangle) Ratios {
	rect = rect.Intersect(img.Bounds())
	total := rect.Dx() * rect.Dy()
	if total == 0 {
		return Ratios{}
	}
	var r, g, b int
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.R >= channelThreshold {
				r++
			}
			if c.G >= channelThreshold {
				g++
			}
			if c.B >= channelThreshold {
				b++
			}
		}
	}
	n := float64(total)
	return Ratios{R: float64(r) / n, G: float64(g) / n, B: float64(b) / n}
}

// Outside classifies a photo as taken outdoors when its top half is mostly
// blue or its bottom half is mostly green.
func Outside(img image.Image) bool {
	b := img.Bounds()
	mid := b.Min.Y + b.Dy()/2
	top := image.Rect(b.Min.X, b.Min.Y, b.Max.X, mid)
	bottom := image.Rect(b.Min.X, mid, b.Max.X, b.Max.Y)

	if t := ChannelRatios(img, top); t.B > t.R && t.B > t.G {
		return true
	}
	if l := ChannelRatios(img, bottom); l.G > l.R && l.G > l.B {
		return true
	}
	return false
}

// CorrectOrientation rotates and mirrors img according to an EXIF orientation
// tag (1-8). Unknown tags leave the image untouched.
func CorrectOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 7, 8:
		img = rotate90(img)
	case 3, 4:
		img = rotate180(img)
	case 5, 6:
		img = rotate270(img)
	}
	switch orientation {
	case 2, 4, 5, 7:
		img = flipHorizontal(img)
	}
	return img
}

// rotate90 turns img a quarter turn counter-clockwise.
func rotate90(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(y, w-1-x, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func rotate180(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(w-1-x, h-1-y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// rotate270 turns img a quarter turn clockwise.
func rotate270(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(h-1-y, x, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func flipHorizontal(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(w-1-x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
