package numbering

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"
	"golang.org/x/image/bmp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/tiff"

	"github.com/MalithGihan/opis-service/pkg/types"
)

var ErrStampUnsupported = errors.New("stamping not supported for this format")

// StampPrefix is prepended to the name of every stamped copy.
const StampPrefix = "numbered_"

const pdfStampDesc = "pos:tr, off:-24 -24, scale:1 abs, rot:0, points:18, fillcolor:#000000, opacity:1"

// Stamper writes copies of documents with their sequence number drawn on.
type Stamper struct {
	log *zap.Logger
}

func NewStamper(log *zap.Logger) *Stamper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stamper{log: log}
}

// Stamp writes outDir/numbered_<name> and returns its path. PDFs get the
// number on every page, top right; images get it at (10,10).
func (s *Stamper) Stamp(ctx context.Context, rec types.DocumentRecord, outDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rec.Sequence <= 0 {
		return "", fmt.Errorf("stamp %s: record has no sequence number", rec.Path)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	out := filepath.Join(outDir, StampPrefix+StripPrefix(filepath.Base(rec.Path)))
	label := strconv.Itoa(rec.Sequence)

	var err error
	switch types.DetectKind(rec.Path) {
	case types.KindPDF:
		err = api.AddTextWatermarksFile(rec.Path, out, nil, true, label, pdfStampDesc, nil)
	case types.KindRaster:
		err = stampImage(rec.Path, out, label)
	default:
		return "", fmt.Errorf("%s: %w", rec.Path, ErrStampUnsupported)
	}
	if err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("stamp %s: %w", rec.Path, err)
	}
	s.log.Info("stamped", zap.String("path", rec.Path), zap.String("out", out), zap.Int("number", rec.Sequence))
	return out, nil
}

func stampImage(src, dst, label string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return err
	}

	canvas := image.NewRGBA(img.Bounds())
	draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Src)
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.P(canvas.Bounds().Min.X+10, canvas.Bounds().Min.Y+10+face.Ascent),
	}
	d.DrawString(label)

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	switch types.FormatOf(src) {
	case "png":
		err = png.Encode(out, canvas)
	case "jpg", "jpeg":
		err = jpeg.Encode(out, canvas, &jpeg.Options{Quality: 95})
	case "tif", "tiff":
		err = tiff.Encode(out, canvas, nil)
	case "bmp":
		err = bmp.Encode(out, canvas)
	default:
		err = ErrStampUnsupported
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}
