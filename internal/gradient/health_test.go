package gradient

import "testing"

func TestAnalyzeEmptyHistoryIsHealthy(t *testing.T) {
	p := newTestProcessor(t, DefaultConfig())

	report := p.Analyze()
	if report.FlowPattern != FlowHealthy {
		t.Fatalf("expected healthy, got %s", report.FlowPattern)
	}
	if report.HealthScore != 1 {
		t.Fatalf("expected health 1, got %f", report.HealthScore)
	}
}

func TestAnalyzeDetectsVanishingGradients(t *testing.T) {
	p := newTestProcessor(t, DefaultConfig())

	for i := 0; i < 20; i++ {
		p.Process(singleBuffer(1e-8, 1e-8, 1e-8))
	}
	report := p.Analyze()
	if report.FlowPattern != FlowVanishing {
		t.Fatalf("expected vanishing, got %s", report.FlowPattern)
	}
	if len(report.Recommendations) == 0 {
		t.Fatal("vanishing pattern should produce recommendations")
	}
}

func TestAnalyzeDetectsExplodingGradients(t *testing.T) {
	p := newTestProcessor(t, DefaultConfig())

	for i := 0; i < 20; i++ {
		p.Process(singleBuffer(500, 800, 1200))
	}
	report := p.Analyze()
	if report.FlowPattern != FlowExploding {
		t.Fatalf("expected exploding, got %s", report.FlowPattern)
	}
}

func TestAnalyzeHealthyFlow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Clip = ClipNone
	p := newTestProcessor(t, cfg)

	for i := 0; i < 20; i++ {
		p.Process(singleBuffer(0.01, -0.02, 0.015, -0.01))
	}
	report := p.Analyze()
	if report.FlowPattern != FlowHealthy {
		t.Fatalf("expected healthy, got %s", report.FlowPattern)
	}
	if report.HealthScore <= 0.5 {
		t.Fatalf("expected decent health score, got %f", report.HealthScore)
	}
}

func TestAnalyzeDetectsOscillation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Clip = ClipNone
	p := newTestProcessor(t, cfg)

	// Alternate between small and large norms every step.
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			p.Process(singleBuffer(0.1, 0.1))
		} else {
			p.Process(singleBuffer(2, 2))
		}
	}
	report := p.Analyze()
	if report.FlowPattern != FlowOscillating {
		t.Fatalf("expected oscillating, got %s", report.FlowPattern)
	}
	if report.Stability > 0.3 {
		t.Fatalf("oscillating flow should have low stability, got %f", report.Stability)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AccumulationSteps = 4
	p := newTestProcessor(t, cfg)

	for i := 0; i < 6; i++ {
		p.Process(singleBuffer(1, 2))
	}
	snap := p.SaveState()

	q := newTestProcessor(t, DefaultConfig())
	if err := q.LoadState(snap); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if q.Step() != p.Step() {
		t.Fatalf("step mismatch: %d != %d", q.Step(), p.Step())
	}

	// The restored processor is mid-round (6 mod 4 = 2 gathered); two more
	// micro-steps complete it.
	if r := q.Process(singleBuffer(1, 2)); !r.Pending {
		t.Fatal("expected pending after restore")
	}
	if r := q.Process(singleBuffer(1, 2)); r.Pending {
		t.Fatal("expected completed accumulation after restore")
	}
}
