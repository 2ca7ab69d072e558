// Package imaging loads location photos, applies EXIF orientation and
// provides the outside/inside heuristic used by the image classifier.
package imaging

import (
	"image"
	"image/jpeg"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// MaxDimension bounds the width and height of loaded photos.
const MaxDimension = 512

// Photo is a decoded photo with the EXIF metadata the classifiers use.
type Photo struct {
	Image       image.Image
	Orientation int
	// Direction is the GPS image direction in degrees, nil when absent.
	Direction *float64
}

// Load decodes a JPEG file, reads orientation and GPS direction from its EXIF
// block, scales it down to MaxDimension and corrects the orientation.
func Load(path string) (*Photo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "imaging: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, eris.Wrapf(err, "imaging: decode %s", path)
	}

	photo := &Photo{Image: img}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, eris.Wrapf(err, "imaging: rewind %s", path)
	}
	readExif(f, photo, path)

	photo.Image = CorrectOrientation(ScaleDown(photo.Image, MaxDimension), photo.Orientation)
	return photo, nil
}

func readExif(r io.Reader, photo *Photo, path string) {
	x, err := exif.Decode(r)
	if err != nil {
		zap.L().Debug("imaging: no exif data", zap.String("path", path), zap.Error(err))
		return
	}
	if tag, err := x.Get(exif.Orientation); err == nil {
		if o, err := tag.Int(0); err == nil {
			photo.Orientation = o
		}
	}
	if tag, err := x.Get(exif.GPSImgDirection); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			d := float64(num) / float64(den)
			photo.Direction = &d
		}
	}
}

// ScaleDown resizes img with nearest-neighbour sampling so that neither side
// exceeds maxDim. Smaller images are returned unchanged.
func ScaleDown(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim || w == 0 || h == 0 {
		return img
	}
	ratio := min(float64(maxDim)/float64(w), float64(maxDim)/float64(h))
	nw, nh := max(1, int(float64(w)*ratio)), max(1, int(float64(h)*ratio))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Save writes img as a JPEG.
func Save(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "imaging: create %s", path)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "imaging: encode %s", path)
	}
	return eris.Wrapf(f.Close(), "imaging: close %s", path)
}
