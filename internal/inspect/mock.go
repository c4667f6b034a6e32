package inspect

import (
	"context"
	"image"
	"image/color"
	"sync"
)

// SolidImage returns a w x h image filled with a single gray level. Tests use
// it wherever an opaque image buffer is needed.
func SolidImage(w, h int, gray uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = gray
	}
	return img
}

// MockInspector is a test implementation of Inspector. Each capability returns
// the verdict configured with its setter unless the matching Func is set.
type MockInspector struct {
	mu sync.Mutex

	cardType CardType
	static   *QualityVerdict
	light    *QualityVerdict
	flash    *QualityVerdict
	err      error

	CardTypeFunc func(img image.Image, geo Geometry) (CardType, error)
	StaticFunc   func(img image.Image, opt StaticOptions) (*QualityVerdict, error)
	LightFunc    func(nv21 []byte, width, height int, th Thresholds, relaxed bool) (*QualityVerdict, error)
	FlashFunc    func(img image.Image) (*QualityVerdict, error)

	calls map[string]int
}

// NewMockInspector creates a MockInspector that accepts every image as an 18
// generation card of good quality.
func NewMockInspector() *MockInspector {
	return &MockInspector{
		cardType: CardType18,
		static: &QualityVerdict{
			Outcome:   OutcomeSuccess,
			Corrected: SolidImage(8, 8, 120),
			Digest:    "digest-1",
			Transport: "transport-1",
		},
		light: &QualityVerdict{
			Outcome: OutcomeSuccess,
			Cut:     SolidImage(8, 8, 160),
			Score:   0.5,
		},
		flash: &QualityVerdict{
			Outcome:   OutcomeSuccess,
			Digest:    "digest-flash",
			Transport: "transport-flash",
		},
		calls: make(map[string]int),
	}
}

// SetCardType sets the card type returned by CardType.
func (m *MockInspector) SetCardType(t CardType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cardType = t
}

// SetStatic sets the verdict returned by StaticQuality.
func (m *MockInspector) SetStatic(v *QualityVerdict) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.static = v
}

// SetLight sets the verdict returned by LightQuality.
func (m *MockInspector) SetLight(v *QualityVerdict) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.light = v
}

// SetFlash sets the verdict returned by FlashQuality.
func (m *MockInspector) SetFlash(v *QualityVerdict) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flash = v
}

// SetError makes every capability fail with err.
func (m *MockInspector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how often the named capability was invoked.
func (m *MockInspector) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *MockInspector) record(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
	return m.err
}

func (m *MockInspector) CardType(img image.Image, geo Geometry) (CardType, error) {
	if err := m.record("card_type"); err != nil {
		return CardTypeInvalid, err
	}
	if m.CardTypeFunc != nil {
		return m.CardTypeFunc(img, geo)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cardType, nil
}

func (m *MockInspector) StaticQuality(img image.Image, geo Geometry, opt StaticOptions) (*QualityVerdict, error) {
	if err := m.record("static"); err != nil {
		return nil, err
	}
	if m.StaticFunc != nil {
		return m.StaticFunc(img, opt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.static, nil
}

func (m *MockInspector) LightQuality(nv21 []byte, width, height int, geo Geometry, th Thresholds, relaxed bool) (*QualityVerdict, error) {
	if err := m.record("light"); err != nil {
		return nil, err
	}
	if m.LightFunc != nil {
		return m.LightFunc(nv21, width, height, th, relaxed)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.light, nil
}

func (m *MockInspector) FlashQuality(img image.Image) (*QualityVerdict, error) {
	if err := m.record("flash"); err != nil {
		return nil, err
	}
	if m.FlashFunc != nil {
		return m.FlashFunc(img)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flash, nil
}

// MockEdgeDetector returns the configured classification and leaves images
// uncropped unless Func is set.
type MockEdgeDetector struct {
	Classification int
	Err            error
	Func           func(img image.Image) (*EdgeResult, error)
}

func (m *MockEdgeDetector) DetectEdge(img image.Image) (*EdgeResult, error) {
	if m.Func != nil {
		return m.Func(img)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &EdgeResult{Corrected: img, Classification: m.Classification}, nil
}

// MockScorer scores images by their top-left gray level unless Func is set.
type MockScorer struct {
	Func func(img image.Image) (float64, error)
}

func (m *MockScorer) Score(img image.Image) (float64, error) {
	if m.Func != nil {
		return m.Func(img)
	}
	if img == nil {
		return 0, nil
	}
	b := img.Bounds()
	g := color.GrayModel.Convert(img.At(b.Min.X, b.Min.Y)).(color.Gray)
	return float64(g.Y), nil
}

// MockIdentifier returns a fixed identification after an optional gate.
type MockIdentifier struct {
	mu     sync.Mutex
	Result *Identification
	Err    error
	// Gate, when set, blocks Identify until it is closed or ctx ends.
	Gate  chan struct{}
	calls int
	seen  [3]image.Image
}

func (m *MockIdentifier) Identify(ctx context.Context, images [3]image.Image) (*Identification, error) {
	m.mu.Lock()
	m.calls++
	m.seen = images
	gate := m.Gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.Result, m.Err
}

// Calls returns the number of Identify invocations.
func (m *MockIdentifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Seen returns the images of the last Identify call.
func (m *MockIdentifier) Seen() [3]image.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen
}
