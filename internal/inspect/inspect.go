// Package inspect defines the capabilities the capture pipeline consumes from
// the document inspection SDK: card type detection, quality inspection, edge
// detection, light scoring and identification.
package inspect

import (
	"context"
	"image"
)

// CardType is the document generation reported by the inspector.
type CardType int

const (
	// CardTypeInvalid means no supported document was found.
	CardTypeInvalid CardType = -1
	// CardType03 is the 2003 generation identity card.
	CardType03 CardType = 3
	// CardType18 is the 2018 generation identity card, the only one captured.
	CardType18 CardType = 18
)

// Outcome is the result code of a quality inspection.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSuccess
	OutcomeSDKAuthError
	OutcomeNoCardDetected
	OutcomeTooFarOutBorder
	OutcomeNotFitBorder
	OutcomeTooFarInBorder
	OutcomeTooDark
	OutcomeTooBright
	OutcomeHasLightSpot
	OutcomeIsGrayCopy
	OutcomeBlurring
	OutcomeNoWindow
)

var outcomeNames = map[Outcome]string{
	OutcomeNone:            "none",
	OutcomeSuccess:         "success",
	OutcomeSDKAuthError:    "sdk_auth_error",
	OutcomeNoCardDetected:  "no_card_detected",
	OutcomeTooFarOutBorder: "too_far_out_border",
	OutcomeNotFitBorder:    "not_fit_border",
	OutcomeTooFarInBorder:  "too_far_in_border",
	OutcomeTooDark:         "too_dark",
	OutcomeTooBright:       "too_bright",
	OutcomeHasLightSpot:    "has_light_spot",
	OutcomeIsGrayCopy:      "is_gray_copy",
	OutcomeBlurring:        "blurring",
	OutcomeNoWindow:        "no_window",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// ParseOutcome maps a wire name back to an Outcome.
func ParseOutcome(s string) Outcome {
	for o, name := range outcomeNames {
		if name == s {
			return o
		}
	}
	return OutcomeNone
}

// Geometry locates the on-screen document frame: the preview size and the
// four frame corners in preview coordinates.
type Geometry struct {
	Preview image.Point    `json:"preview"`
	Corners [4]image.Point `json:"corners"`
}

// StaticOptions selects the checks of a static quality inspection.
type StaticOptions struct {
	CheckLightSpot bool `json:"check_light_spot"`
	CheckGray      bool `json:"check_gray"`
	ControlAngle   bool `json:"control_angle"`
	FlashCheck     bool `json:"flash_check"`
	CheckWindow    bool `json:"check_window"`
}

// Thresholds is the brightness band accepted during the illumination burst.
type Thresholds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// QualityVerdict is produced by the inspector; the pipeline never builds one.
type QualityVerdict struct {
	Outcome   Outcome
	Corrected image.Image
	Digest    string
	Transport string
	Cut       image.Image
	Score     float64
}

// Passed reports whether v is a successful verdict. A nil verdict never passes.
func (v *QualityVerdict) Passed() bool {
	return v != nil && v.Outcome == OutcomeSuccess
}

// Corrected is an image accepted into the final three-image set with its
// content digest and transport encoding.
type Corrected struct {
	Image     image.Image
	Digest    string
	Transport string
}

// CorrectedFrom builds a slot from img and the digest fields of v.
func CorrectedFrom(img image.Image, v *QualityVerdict) Corrected {
	c := Corrected{Image: img}
	if v != nil {
		c.Digest = v.Digest
		c.Transport = v.Transport
	}
	return c
}

// EdgeResult is the output of edge detection. Classification 0 is acceptable.
type EdgeResult struct {
	Corrected      image.Image
	Classification int
}

// ErrorNoHologram is the identification error code for a missing hologram.
const ErrorNoHologram = 1001

// Identification is the result of the anti-counterfeiting check.
type Identification struct {
	Success    bool
	ErrorCodes []int
}

// Has reports whether code is among the identification errors.
func (id *Identification) Has(code int) bool {
	if id == nil {
		return false
	}
	for _, c := range id.ErrorCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Inspector is the quality inspection capability.
type Inspector interface {
	// CardType classifies the document visible inside the frame geometry.
	CardType(img image.Image, geo Geometry) (CardType, error)

	// StaticQuality inspects a still image before the illumination burst.
	StaticQuality(img image.Image, geo Geometry, opt StaticOptions) (*QualityVerdict, error)

	// LightQuality inspects an NV21 buffer during the illumination burst.
	// relaxed selects the looser acceptance used until the first success.
	LightQuality(nv21 []byte, width, height int, geo Geometry, th Thresholds, relaxed bool) (*QualityVerdict, error)

	// FlashQuality re-inspects a selected flash image; it reports blurring.
	FlashQuality(img image.Image) (*QualityVerdict, error)
}

// EdgeDetector re-crops an image to the document edges.
type EdgeDetector interface {
	DetectEdge(img image.Image) (*EdgeResult, error)
}

// LightScorer measures the light value of an image.
type LightScorer interface {
	Score(img image.Image) (float64, error)
}

// Identifier runs the anti-counterfeiting identification. It may be slow.
type Identifier interface {
	Identify(ctx context.Context, images [3]image.Image) (*Identification, error)
}

// Torch receives illumination intents. Calls are fire-and-forget.
type Torch interface {
	SetIllumination(on bool)
}

// TorchFunc adapts a function to Torch.
type TorchFunc func(on bool)

// SetIllumination calls f(on).
func (f TorchFunc) SetIllumination(on bool) { f(on) }
