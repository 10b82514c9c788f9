package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"vignette/internal/models"
)

const (
	defaultJPEGQuality = 85
	defaultWebPQuality = 80
	gifNumColors       = 256
	// maxSourcePixels guards against decompression bombs.
	maxSourcePixels = 100_000_000
)

// ImagingEngine is the Engine backed by disintegration/imaging. Resampling
// always uses the Lanczos filter and encoder settings are pinned so repeated
// runs produce identical bytes.
type ImagingEngine struct{}

func NewImagingEngine() *ImagingEngine {
	return &ImagingEngine{}
}

func (e *ImagingEngine) Probe(data []byte) (models.ImageInfo, error) {
	var zero models.ImageInfo
	if len(data) == 0 {
		return zero, models.InvalidImage("empty upload", nil)
	}
	format, mediaType, ok := sniffFormat(data)
	if !ok {
		return zero, models.InvalidImage(fmt.Sprintf("unsupported content type %s", mediaType), nil)
	}
	if err := checkDimensions(data); err != nil {
		return zero, err
	}
	img, err := decode(data)
	if err != nil {
		return zero, models.InvalidImage("decode failed", err)
	}
	b := img.Bounds()
	return models.ImageInfo{
		Format:    format,
		MediaType: mediaType,
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}

func (e *ImagingEngine) Transform(ctx context.Context, data []byte, spec models.PresetSpec) (Output, error) {
	var zero Output
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if !encodable(spec.Format) {
		return zero, models.UnsupportedFormat(string(spec.Format))
	}
	if _, mediaType, ok := sniffFormat(data); !ok {
		return zero, models.UnsupportedFormat(mediaType)
	}
	if err := checkDimensions(data); err != nil {
		return zero, models.TransformFailed(spec.Name, err)
	}

	src, err := decode(data)
	if err != nil {
		return zero, models.TransformFailed(spec.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	dst := resize(src, spec)

	var buf bytes.Buffer
	if err := encode(&buf, dst, spec); err != nil {
		return zero, err
	}

	b := dst.Bounds()
	return Output{
		Data:      buf.Bytes(),
		Format:    spec.Format,
		MediaType: spec.Format.MediaType(),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}

// encodable reports whether this build can write format.
func encodable(format models.Format) bool {
	switch format {
	case models.FormatJPEG, models.FormatPNG, models.FormatGIF:
		return true
	case models.FormatWebP:
		return webpEnabled
	default:
		return false
	}
}

func decode(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

func checkDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return models.InvalidImage("decode header failed", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return models.InvalidImage("image has no pixels", nil)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxSourcePixels {
		return models.InvalidImage(fmt.Sprintf("image too large: %dx%d", cfg.Width, cfg.Height), nil)
	}
	return nil
}

func resize(src image.Image, spec models.PresetSpec) *image.NRGBA {
	switch spec.Fit {
	case models.FitContain:
		return imaging.Fit(src, spec.Width, spec.Height, imaging.Lanczos)
	case models.FitStretch:
		return imaging.Resize(src, spec.Width, spec.Height, imaging.Lanczos)
	default:
		return imaging.Fill(src, spec.Width, spec.Height, imaging.Center, imaging.Lanczos)
	}
}

func encode(buf *bytes.Buffer, img *image.NRGBA, spec models.PresetSpec) error {
	var err error
	switch spec.Format {
	case models.FormatJPEG:
		q := spec.Quality
		if q == 0 {
			q = defaultJPEGQuality
		}
		err = imaging.Encode(buf, flatten(img), imaging.JPEG, imaging.JPEGQuality(q))
	case models.FormatPNG:
		err = imaging.Encode(buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression))
	case models.FormatGIF:
		err = imaging.Encode(buf, img, imaging.GIF, imaging.GIFNumColors(gifNumColors))
	case models.FormatWebP:
		q := spec.Quality
		if q == 0 {
			q = defaultWebPQuality
		}
		err = encodeWebP(buf, img, q)
	default:
		return models.UnsupportedFormat(string(spec.Format))
	}
	if err != nil {
		var classified *models.Error
		if errors.As(err, &classified) {
			return err
		}
		return models.TransformFailed(spec.Name, err)
	}
	return nil
}

// flatten composites img over white; JPEG has no alpha channel.
func flatten(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
