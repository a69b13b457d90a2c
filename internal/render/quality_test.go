package render

import (
	"testing"
	"time"
)

func feed(g *QualityGovernor, r *Renderer, took time.Duration, frames int) (changes int) {
	for range frames {
		if g.Adjust(r, took) {
			changes++
		}
	}
	return changes
}

func TestGovernorStepsDownOnSlowFrames(t *testing.T) {
	r, _ := New(Config{Width: 4, Height: 4, Quality: "high"})
	g := NewQualityGovernor(60)

	if n := feed(g, r, 20*time.Millisecond, governorWindow-1); n != 0 {
		t.Fatalf("changed before a full window")
	}
	if !g.Adjust(r, 20*time.Millisecond) || r.QualityName() != "balanced" {
		t.Fatalf("quality=%s want balanced", r.QualityName())
	}
	feed(g, r, 20*time.Millisecond, governorWindow)
	if r.QualityName() != "eco" {
		t.Fatalf("quality=%s want eco", r.QualityName())
	}
	if n := feed(g, r, 20*time.Millisecond, governorWindow); n != 0 || r.QualityName() != "eco" {
		t.Fatalf("eco is the floor, got %s after %d changes", r.QualityName(), n)
	}
}

func TestGovernorStepsUpWithHeadroom(t *testing.T) {
	r, _ := New(Config{Width: 4, Height: 4, Quality: "eco"})
	g := NewQualityGovernor(60)
	feed(g, r, time.Millisecond, governorWindow)
	if r.QualityName() != "balanced" {
		t.Fatalf("quality=%s want balanced", r.QualityName())
	}
	feed(g, r, time.Millisecond, 3*governorWindow)
	if r.QualityName() != "high" {
		t.Fatalf("quality=%s want high", r.QualityName())
	}
}

func TestGovernorHoldsInsideBudget(t *testing.T) {
	r, _ := New(Config{Width: 4, Height: 4, Quality: "balanced"})
	g := NewQualityGovernor(60)
	if n := feed(g, r, 10*time.Millisecond, 5*governorWindow); n != 0 {
		t.Fatalf("%d changes for frames inside the budget", n)
	}
}
