// Package selector picks the two representative flash images of a finished
// burst and validates them before identification.
package selector

import (
	"image"

	"github.com/ayusman/cardcapture/internal/flash"
	"github.com/ayusman/cardcapture/internal/inspect"
	"github.com/ayusman/cardcapture/internal/logger"
	"github.com/ayusman/cardcapture/internal/scratch"
)

// MinCandidates is the smallest burst that can be selected from.
const MinCandidates = 2

// Outcome classifies a selection.
type Outcome int

const (
	OutcomeSelected Outcome = iota
	OutcomeInsufficient
	OutcomeQualityRejected
	OutcomeBlurred
	OutcomeFailed
)

// Hint messages per outcome.
const (
	MsgSelected        = "capture complete"
	MsgInsufficient    = "fewer than 2 qualified photos, retake"
	MsgQualityRejected = "image quality rejected, retake"
	MsgBlurred         = "image blurred, retake"
	MsgFailed          = "processing failed, retake"
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSelected:
		return "selected"
	case OutcomeInsufficient:
		return "insufficient"
	case OutcomeQualityRejected:
		return "quality_rejected"
	case OutcomeBlurred:
		return "blurred"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message returns the user-facing hint for o.
func (o Outcome) Message() string {
	switch o {
	case OutcomeSelected:
		return MsgSelected
	case OutcomeInsufficient:
		return MsgInsufficient
	case OutcomeQualityRejected:
		return MsgQualityRejected
	case OutcomeBlurred:
		return MsgBlurred
	default:
		return MsgFailed
	}
}

// BlurChecker runs the post-selection blur inspection. A nil verdict means
// the inspection failed.
type BlurChecker interface {
	CheckFlash(img image.Image) *inspect.QualityVerdict
}

// Result is the outcome of a selection. Images holds corrected slots 2 and 3
// when Outcome is OutcomeSelected.
type Result struct {
	Outcome Outcome
	Images  [2]inspect.Corrected
	Handles [2]string
}

// Selector selects and validates burst candidates.
type Selector struct {
	storage scratch.Storage
	edges   inspect.EdgeDetector
	scorer  inspect.LightScorer
	blur    BlurChecker
	log     *logger.Logger
}

// New creates a Selector.
func New(storage scratch.Storage, edges inspect.EdgeDetector, scorer inspect.LightScorer, blur BlurChecker) *Selector {
	return &Selector{
		storage: storage,
		edges:   edges,
		scorer:  scorer,
		blur:    blur,
		log:     logger.Named("selector"),
	}
}

// Select runs edge correction and light scoring over every candidate, picks
// the lowest and the size/2 ranked candidates, and gates both on edge class
// and blur. Candidate files are deleted before Select returns, whatever the
// outcome.
func (s *Selector) Select(cands *flash.Candidates) Result {
	defer s.cleanup(cands)

	size := cands.Len()
	if size < MinCandidates {
		s.log.Info().Int("candidates", size).Msg("not enough candidates")
		return Result{Outcome: OutcomeInsufficient}
	}

	for _, c := range cands.Items() {
		s.rescore(c)
	}
	cands.SortByScore()

	items := cands.Items()
	first, second := items[0], items[size/2]
	if first.EdgeClass != 0 || second.EdgeClass != 0 {
		s.log.Info().
			Int("first_class", first.EdgeClass).
			Int("second_class", second.EdgeClass).
			Msg("selected candidate rejected by edge detection")
		return Result{Outcome: OutcomeQualityRejected}
	}

	res := Result{Handles: [2]string{first.Handle, second.Handle}}
	var verdicts [2]*inspect.QualityVerdict
	for i, c := range []*flash.Candidate{first, second} {
		img, err := s.storage.Read(c.Handle)
		if err != nil {
			s.log.Warn().Err(err).Str("handle", c.Handle).Msg("reload selected candidate failed")
			return Result{Outcome: OutcomeFailed}
		}
		v := s.blur.CheckFlash(img)
		if v == nil {
			return Result{Outcome: OutcomeFailed}
		}
		verdicts[i] = v
		res.Images[i] = inspect.CorrectedFrom(img, v)
	}
	if verdicts[0].Outcome == inspect.OutcomeBlurring || verdicts[1].Outcome == inspect.OutcomeBlurring {
		return Result{Outcome: OutcomeBlurred}
	}

	res.Outcome = OutcomeSelected
	s.log.Debug().
		Int("candidates", size).
		Float64("first_score", first.Score).
		Float64("second_score", second.Score).
		Msg("candidates selected")
	return res
}

// rescore edge-corrects the stored image of c in place and replaces its
// proxy score with the measured light value.
func (s *Selector) rescore(c *flash.Candidate) {
	img, err := s.storage.Read(c.Handle)
	if err != nil {
		s.log.Warn().Err(err).Str("handle", c.Handle).Msg("reload candidate failed")
		c.EdgeClass = -1
		c.Score = 0
		return
	}

	c.EdgeClass = 0
	edge, err := s.edges.DetectEdge(img)
	if err != nil {
		s.log.Warn().Err(err).Str("handle", c.Handle).Msg("edge detection failed")
	} else if edge != nil {
		c.EdgeClass = edge.Classification
		if edge.Corrected != nil {
			img = edge.Corrected
			if err := s.storage.Overwrite(c.Handle, img); err != nil {
				s.log.Warn().Err(err).Str("handle", c.Handle).Msg("overwrite edge-corrected image failed")
			}
		}
	}

	score, err := s.scorer.Score(img)
	if err != nil {
		s.log.Warn().Err(err).Str("handle", c.Handle).Msg("light value scoring failed")
		score = 0
	}
	c.Score = score
}

func (s *Selector) cleanup(cands *flash.Candidates) {
	for _, h := range cands.Handles() {
		if err := s.storage.Delete(h); err != nil {
			s.log.Warn().Err(err).Str("handle", h).Msg("delete candidate failed")
		}
	}
}
