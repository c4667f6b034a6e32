package quality

import (
	"errors"
	"image"
	"testing"

	"github.com/ayusman/cardcapture/internal/inspect"
)

type hintLog struct{ msgs []string }

func (h *hintLog) add(msg string) { h.msgs = append(h.msgs, msg) }

func TestGate_ClassifyCardType(t *testing.T) {
	tests := []struct {
		name     string
		cardType inspect.CardType
		err      error
		want     inspect.CardType
		wantHint string
	}{
		{name: "18 card", cardType: inspect.CardType18, want: inspect.CardType18, wantHint: CardTypeHint(inspect.CardType18)},
		{name: "03 card", cardType: inspect.CardType03, want: inspect.CardType03, wantHint: CardTypeHint(inspect.CardType03)},
		{name: "no card", cardType: inspect.CardTypeInvalid, want: inspect.CardTypeInvalid, wantHint: "no identity card detected"},
		{name: "inspector failure", err: errors.New("boom"), want: inspect.CardTypeInvalid, wantHint: "no identity card detected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := inspect.NewMockInspector()
			m.SetCardType(tt.cardType)
			if tt.err != nil {
				m.SetError(tt.err)
			}
			hints := &hintLog{}
			g := New(m, hints.add)

			if got := g.ClassifyCardType(nil); got != tt.want {
				t.Errorf("ClassifyCardType() = %v, want %v", got, tt.want)
			}
			if len(hints.msgs) == 0 || hints.msgs[len(hints.msgs)-1] != tt.wantHint {
				t.Errorf("hints = %v, want last %q", hints.msgs, tt.wantHint)
			}
		})
	}
}

func TestGate_CheckStatic(t *testing.T) {
	t.Run("requests static options", func(t *testing.T) {
		m := inspect.NewMockInspector()
		var got inspect.StaticOptions
		m.StaticFunc = func(_ image.Image, opt inspect.StaticOptions) (*inspect.QualityVerdict, error) {
			got = opt
			return &inspect.QualityVerdict{Outcome: inspect.OutcomeTooDark}, nil
		}
		hints := &hintLog{}
		g := New(m, hints.add)

		v := g.CheckStatic(nil)
		if v == nil || v.Outcome != inspect.OutcomeTooDark {
			t.Fatalf("CheckStatic() = %+v", v)
		}
		if !got.CheckLightSpot || !got.CheckGray || !got.CheckWindow {
			t.Errorf("expected light spot, gray and window checks: %+v", got)
		}
		if got.ControlAngle || got.FlashCheck {
			t.Errorf("angle control and flash check must be off: %+v", got)
		}
		if len(hints.msgs) != 1 || hints.msgs[0] != "too dark" {
			t.Errorf("hints = %v", hints.msgs)
		}
	})

	t.Run("inspector failure yields nil", func(t *testing.T) {
		m := inspect.NewMockInspector()
		m.SetError(errors.New("sdk"))
		g := New(m, nil)

		if v := g.CheckStatic(nil); v != nil {
			t.Errorf("CheckStatic() = %+v, want nil", v)
		}
	})
}

func TestGate_CheckLight(t *testing.T) {
	m := inspect.NewMockInspector()
	var relaxedSeen []bool
	m.LightFunc = func(_ []byte, _, _ int, th inspect.Thresholds, relaxed bool) (*inspect.QualityVerdict, error) {
		relaxedSeen = append(relaxedSeen, relaxed)
		if th.Low != 100 || th.High != 220 {
			t.Errorf("thresholds = %+v", th)
		}
		return &inspect.QualityVerdict{Outcome: inspect.OutcomeSuccess}, nil
	}
	g := New(m, nil)
	th := inspect.Thresholds{Low: 100, High: 220}

	g.CheckLight(nil, 4, 4, th, true)
	g.CheckLight(nil, 4, 4, th, false)

	if len(relaxedSeen) != 2 || !relaxedSeen[0] || relaxedSeen[1] {
		t.Errorf("relaxed flags = %v, want [true false]", relaxedSeen)
	}

	m.LightFunc = nil
	m.SetError(errors.New("sdk"))
	if v := g.CheckLight(nil, 4, 4, th, true); v != nil {
		t.Errorf("CheckLight() on failure = %+v, want nil", v)
	}
}

func TestOutcomeHint(t *testing.T) {
	if _, ok := OutcomeHint(inspect.OutcomeNone); ok {
		t.Error("OutcomeNone should have no hint")
	}
	for o := inspect.OutcomeSuccess; o <= inspect.OutcomeNoWindow; o++ {
		if msg, ok := OutcomeHint(o); !ok || msg == "" {
			t.Errorf("outcome %v has no hint", o)
		}
	}
}
