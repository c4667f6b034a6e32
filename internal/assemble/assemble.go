// Package assemble turns the three corrected images of a capture into the
// final card result: identification first, then the OCR request whose
// completion ends the attempt.
package assemble

import (
	"context"
	"image"
	"sync"

	"github.com/ayusman/cardcapture/internal/inspect"
	"github.com/ayusman/cardcapture/internal/logger"
	"github.com/ayusman/cardcapture/internal/ocr"
	"github.com/ayusman/cardcapture/internal/store"
)

// ResultCardType tags results of the 2018 identity card.
const ResultCardType = 2

// CardResult is the terminal record of a successful capture.
type CardResult struct {
	CardType       int  `json:"card_type"`
	AllPassed      bool `json:"all_passed"`
	HologramPassed bool `json:"hologram_passed"`
}

// Outcome is delivered once per assembly.
type Outcome struct {
	Result CardResult
	OCR    *ocr.Response
	OCRErr error
}

// Publisher receives OCR completion events.
type Publisher interface {
	Publish(ev *store.OCREvent) error
}

// Pending is an assembly in progress. Done yields exactly one Outcome and is
// closed afterwards.
type Pending struct {
	once sync.Once
	ch   chan Outcome
}

func newPending() *Pending {
	return &Pending{ch: make(chan Outcome, 1)}
}

// Done returns the single-fire outcome channel.
func (p *Pending) Done() <-chan Outcome {
	return p.ch
}

func (p *Pending) resolve(out Outcome) bool {
	fired := false
	p.once.Do(func() {
		p.ch <- out
		close(p.ch)
		fired = true
	})
	return fired
}

// Assembler runs identification and OCR for a capture attempt.
type Assembler struct {
	identifier inspect.Identifier
	ocr        ocr.Transport
	publisher  Publisher
	log        *logger.Logger
}

// New creates an Assembler. A nil publisher drops OCR events.
func New(identifier inspect.Identifier, transport ocr.Transport, publisher Publisher) *Assembler {
	return &Assembler{
		identifier: identifier,
		ocr:        transport,
		publisher:  publisher,
		log:        logger.Named("assemble"),
	}
}

// Request identifies one attempt.
type Request struct {
	AttemptID string
	CardType  inspect.CardType
	Images    [3]inspect.Corrected
}

// OCRRequest lays out the OCR request: slot 1, slot 3, then slot 1 twice.
func OCRRequest(images [3]inspect.Corrected) *ocr.Request {
	first, third := images[0], images[2]
	return &ocr.Request{
		SeeThroughFlag: ocr.SeeThrough,
		File: ocr.File{
			Images: []string{first.Transport, third.Transport, first.Transport, first.Transport},
			Tokens: []string{first.Digest, third.Digest, first.Digest, first.Digest},
		},
	}
}

// Assemble starts identification and OCR in the background. The assembler
// owns req.Images from here on.
func (a *Assembler) Assemble(ctx context.Context, req Request) *Pending {
	p := newPending()
	go a.run(ctx, req, p)
	return p
}

func (a *Assembler) run(ctx context.Context, req Request, p *Pending) {
	images := [3]image.Image{req.Images[0].Image, req.Images[1].Image, req.Images[2].Image}
	id, err := a.identifier.Identify(ctx, images)
	if err != nil {
		a.log.Warn().Err(err).Str("attempt", req.AttemptID).Msg("identification failed")
		id = nil
	}

	// The pre-flash image is not needed past identification.
	req.Images[0].Image = nil

	result := CardResult{
		CardType:       ResultCardType,
		AllPassed:      id != nil && id.Success,
		HologramPassed: !id.Has(inspect.ErrorNoHologram),
	}
	a.log.Info().
		Str("attempt", req.AttemptID).
		Bool("all_passed", result.AllPassed).
		Bool("hologram_passed", result.HologramPassed).
		Msg("identification finished")

	if a.ocr == nil {
		p.resolve(Outcome{Result: result})
		return
	}
	if err := ctx.Err(); err != nil {
		a.log.Debug().Str("attempt", req.AttemptID).Msg("attempt cancelled, ocr skipped")
		p.resolve(Outcome{Result: result, OCRErr: err})
		return
	}
	a.ocr.Submit(ctx, OCRRequest(req.Images), func(resp *ocr.Response, err error) {
		if ctx.Err() == nil {
			a.publish(req, resp, err)
		}
		p.resolve(Outcome{Result: result, OCR: resp, OCRErr: err})
	})
}

func (a *Assembler) publish(req Request, resp *ocr.Response, err error) {
	if a.publisher == nil {
		return
	}
	var ev *store.OCREvent
	switch {
	case err != nil:
		ev = &store.OCREvent{AttemptID: req.AttemptID, Completed: true, CardType: int(inspect.CardTypeInvalid)}
	case resp.HasData():
		ev = &store.OCREvent{AttemptID: req.AttemptID, Completed: true, CardType: int(req.CardType), Response: resp.Data}
	default:
		return
	}
	if err := a.publisher.Publish(ev); err != nil {
		a.log.Warn().Err(err).Str("attempt", req.AttemptID).Msg("publish ocr event failed")
	}
}
