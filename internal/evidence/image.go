package evidence

import (
	"bytes"
	"image"
	"io"

	"scamwatch/internal/apperr"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	MinDimension = 50
	MaxDimension = 4000
	MaxWidth     = 1920
	MaxHeight    = 1080
	Quality      = 85
)

const (
	msgInvalidImage = "Invalid image file"
	msgTooSmall     = "Image too small (minimum 50x50 pixels)"
	msgTooLarge     = "Image too large (maximum 4000x4000 pixels)"
)

// Encoder writes img in the stored format.
type Encoder func(w io.Writer, img image.Image) error

type Processor struct {
	encode Encoder
}

func NewProcessor() *Processor {
	return &Processor{encode: encodeWebP}
}

// Decode checks that data is an image within the accepted dimension range
// and decodes it. Bounds are read from the header first so oversized
// images are rejected before their pixels are allocated.
func (p *Processor) Decode(name string, data []byte) (image.Image, error) {
	if len(data) == 0 || rejectScriptable(data) {
		return nil, apperr.Validation(name, msgInvalidImage)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Validation(name, msgInvalidImage)
	}
	if cfg.Width < MinDimension || cfg.Height < MinDimension {
		return nil, apperr.Validation(name, msgTooSmall)
	}
	if cfg.Width > MaxDimension || cfg.Height > MaxDimension {
		return nil, apperr.Validation(name, msgTooLarge)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperr.Validation(name, msgInvalidImage)
	}
	return img, nil
}

// Transcode fits img inside MaxWidth x MaxHeight, never enlarging it, and
// encodes the result.
func (p *Processor) Transcode(img image.Image) ([]byte, error) {
	fitted := imaging.Fit(img, MaxWidth, MaxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := p.encode(&buf, fitted); err != nil {
		return nil, errors.Wrap(err, "encode image")
	}
	return buf.Bytes(), nil
}

// FileName builds the stored name for one screenshot of a report.
func FileName(reportID string) string {
	return reportID + "_" + uuid.NewString() + ".webp"
}

func encodeWebP(w io.Writer, img image.Image) error {
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, Quality)
	if err != nil {
		return errors.Wrap(err, "webp encoder options")
	}
	return webp.Encode(w, img, options)
}
