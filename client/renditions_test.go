package client

import "testing"

func TestClassifyKbps(t *testing.T) {
	tests := []struct {
		kbps float64
		want BandwidthClass
	}{
		{0, ClassLow},
		{500, ClassLow},
		{1499, ClassLow},
		{1500, ClassMedium},
		{3999, ClassMedium},
		{4000, ClassHigh},
		{12000, ClassHigh},
	}
	for _, tt := range tests {
		if got := classifyKbps(tt.kbps); got != tt.want {
			t.Errorf("classifyKbps(%v) = %v, want %v", tt.kbps, got, tt.want)
		}
	}
}

func TestRenditionIndexFor(t *testing.T) {
	tests := []struct {
		class  BandwidthClass
		count  int
		want   int
		wantOK bool
	}{
		{ClassHigh, 5, 0, true},
		{ClassLow, 5, 4, true},
		{ClassMedium, 5, 2, true},
		{ClassMedium, 4, 2, true},
		{ClassHigh, 1, 0, true},
		{ClassLow, 1, 0, true},
		{ClassHigh, 0, 0, false},
	}
	for _, tt := range tests {
		got, ok := renditionIndexFor(tt.class, tt.count)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("renditionIndexFor(%v, %d) = (%d, %v), want (%d, %v)",
				tt.class, tt.count, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestClassForTier(t *testing.T) {
	if _, pinned := classForTier(TierAuto); pinned {
		t.Fatal("classForTier(TierAuto) reported pinned")
	}
	for tier, want := range map[QualityTier]BandwidthClass{
		TierLow:    ClassLow,
		TierMedium: ClassMedium,
		TierHigh:   ClassHigh,
	} {
		got, pinned := classForTier(tier)
		if !pinned || got != want {
			t.Errorf("classForTier(%v) = (%v, %v), want (%v, true)", tier, got, pinned, want)
		}
	}
}
