package models

import "testing"

func TestQualityFromHeight(t *testing.T) {
	cases := []struct {
		height int
		want   Quality
	}{
		{480, QualityLow},
		{720, QualityMedium},
		{1080, QualityHigh},
		{360, QualityHigh},  // unmapped heights default to HIGH
		{1440, QualityHigh},
		{0, QualityHigh},
	}
	for _, c := range cases {
		if got := QualityFromHeight(c.height); got != c.want {
			t.Errorf("QualityFromHeight(%d) = %s, want %s", c.height, got, c.want)
		}
	}
}

func TestQualityHeight(t *testing.T) {
	cases := []struct {
		q    Quality
		want int
	}{
		{QualityLow, 480},
		{QualityMedium, 720},
		{QualityHigh, 1080},
		{Quality("ULTRA"), 1080}, // unknown values default to 1080
		{Quality(""), 1080},
	}
	for _, c := range cases {
		if got := c.q.Height(); got != c.want {
			t.Errorf("%q.Height() = %d, want %d", c.q, got, c.want)
		}
	}
}

func TestQualityRoundTrip(t *testing.T) {
	for _, q := range []Quality{QualityLow, QualityMedium, QualityHigh} {
		if got := QualityFromHeight(q.Height()); got != q {
			t.Errorf("round trip for %s: got %s", q, got)
		}
	}
}
