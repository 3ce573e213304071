package domain

import "testing"

func TestFusionOverridesApplyPerField(t *testing.T) {
	bonus := 0.0
	semantic := 0.9
	got := FusionOverrides{
		Weights: WeightOverrides{Semantic: &semantic},
		Bonus:   &bonus,
	}.Apply(DefaultFusionConfig())

	want := DefaultFusionConfig()
	want.Weights.Semantic = 0.9
	want.Bonus = 0
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if (FusionOverrides{}).Apply(DefaultFusionConfig()) != DefaultFusionConfig() {
		t.Fatalf("empty overrides must keep the base config")
	}
}
