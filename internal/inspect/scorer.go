package inspect

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// MeanLuma scores an image by its mean gray level (0-255).
type MeanLuma struct{}

// Score implements LightScorer.
func (MeanLuma) Score(img image.Image) (float64, error) {
	if img == nil {
		return 0, errors.New("nil image")
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return 0, err
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	return gray.Mean().Val1, nil
}
