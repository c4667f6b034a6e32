// Package quality wraps the inspector with the hint and failure handling of
// the capture flow. Inspector errors never leave this package: a failed call
// reads as "no verdict" and at most costs the current frame.
package quality

import (
	"fmt"
	"image"

	"github.com/ayusman/cardcapture/internal/inspect"
	"github.com/ayusman/cardcapture/internal/logger"
)

// HintFunc receives user-facing status messages.
type HintFunc func(msg string)

// Gate runs the quality checks of the capture flow.
type Gate struct {
	inspector inspect.Inspector
	geometry  inspect.Geometry
	hint      HintFunc
	log       *logger.Logger
}

// New creates a Gate. A nil hint function discards hints.
func New(in inspect.Inspector, hint HintFunc) *Gate {
	if hint == nil {
		hint = func(string) {}
	}
	return &Gate{
		inspector: in,
		hint:      hint,
		log:       logger.Named("quality"),
	}
}

// SetGeometry sets the document frame geometry passed to every check.
func (g *Gate) SetGeometry(geo inspect.Geometry) {
	g.geometry = geo
}

// Geometry returns the current document frame geometry.
func (g *Gate) Geometry() inspect.Geometry {
	return g.geometry
}

// ClassifyCardType detects the document type and emits the matching hint.
// Inspector failure is reported as a hint and read as CardTypeInvalid.
func (g *Gate) ClassifyCardType(img image.Image) inspect.CardType {
	ct, err := g.inspector.CardType(img, g.geometry)
	if err != nil {
		g.log.Warn().Err(err).Msg("card type detection failed")
		g.hint(fmt.Sprintf("card type detection error: %v", err))
		ct = inspect.CardTypeInvalid
	}
	g.hint(CardTypeHint(ct))
	return ct
}

// StaticOptions are the checks requested before the illumination burst.
func StaticOptions() inspect.StaticOptions {
	return inspect.StaticOptions{
		CheckLightSpot: true,
		CheckGray:      true,
		ControlAngle:   false,
		FlashCheck:     false,
		CheckWindow:    true,
	}
}

// CheckStatic inspects a still image before the burst and emits the outcome
// hint. It returns nil when the inspector fails.
func (g *Gate) CheckStatic(img image.Image) *inspect.QualityVerdict {
	v, err := g.inspector.StaticQuality(img, g.geometry, StaticOptions())
	if err != nil {
		g.log.Warn().Err(err).Msg("static quality check failed")
		return nil
	}
	if v != nil {
		if msg, ok := OutcomeHint(v.Outcome); ok {
			g.hint(msg)
		}
	}
	return v
}

// CheckLight inspects an NV21 frame during the burst. relaxed must stay true
// until the first success of the burst. It returns nil when the inspector fails.
func (g *Gate) CheckLight(nv21 []byte, width, height int, th inspect.Thresholds, relaxed bool) *inspect.QualityVerdict {
	v, err := g.inspector.LightQuality(nv21, width, height, g.geometry, th, relaxed)
	if err != nil {
		g.log.Warn().Err(err).Bool("relaxed", relaxed).Msg("light quality check failed")
		return nil
	}
	return v
}

// CheckFlash re-inspects a selected flash image for blur. It returns nil when
// the inspector fails.
func (g *Gate) CheckFlash(img image.Image) *inspect.QualityVerdict {
	v, err := g.inspector.FlashQuality(img)
	if err != nil {
		g.log.Warn().Err(err).Msg("flash quality check failed")
		return nil
	}
	return v
}

// CardTypeHint maps a card type to its hint.
func CardTypeHint(ct inspect.CardType) string {
	switch ct {
	case inspect.CardType03:
		return "2003 card detected, only the 2018 card is supported"
	case inspect.CardType18:
		return "2018 identity card detected"
	case inspect.CardTypeInvalid:
		return "no identity card detected"
	default:
		return fmt.Sprintf("card detection error: %d", ct)
	}
}

var outcomeHints = map[inspect.Outcome]string{
	inspect.OutcomeSDKAuthError:    "SDK authorization error",
	inspect.OutcomeNoCardDetected:  "no identity card detected",
	inspect.OutcomeTooFarOutBorder: "card exceeds the frame",
	inspect.OutcomeNotFitBorder:    "align the card with the frame",
	inspect.OutcomeTooFarInBorder:  "move the card closer to the frame",
	inspect.OutcomeTooDark:         "too dark",
	inspect.OutcomeTooBright:       "too bright",
	inspect.OutcomeHasLightSpot:    "light spot on the card",
	inspect.OutcomeIsGrayCopy:      "photocopy detected",
	inspect.OutcomeBlurring:        "image is blurred",
	inspect.OutcomeNoWindow:        "transparent window not detected",
	inspect.OutcomeSuccess:         "quality check passed",
}

// OutcomeHint maps an inspection outcome to its hint. Outcomes without a
// hint return false.
func OutcomeHint(o inspect.Outcome) (string, bool) {
	msg, ok := outcomeHints[o]
	return msg, ok
}
