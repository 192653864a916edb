package media

import "testing"

func probeWithDurations(format, video string) ProbeResult {
	return ProbeResult{
		Format: ProbeFormat{Duration: format},
		Streams: []ProbeStream{
			{CodecType: "audio", Duration: "1.0"},
			{CodecType: "video", Duration: video},
		},
	}
}

func TestIsCorrupt(t *testing.T) {
	cases := []struct {
		name   string
		format string
		video  string
		want   bool
	}{
		{"matching durations", "3600.0", "3600.0", false},
		{"small drift tolerated", "3600.0", "3560.0", false},
		{"exactly at threshold", "3650.0", "3600.0", false},
		{"past threshold", "3660.5", "3600.0", true},
		{"video longer than container", "3600.0", "3700.0", true},
		{"missing video duration", "3600.0", "", true},
		{"unparseable treated as zero", "3600.0", "n/a", true},
		{"both missing", "", "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsCorrupt(probeWithDurations(c.format, c.video)); got != c.want {
				t.Fatalf("IsCorrupt(format=%q, video=%q) = %v, want %v", c.format, c.video, got, c.want)
			}
		})
	}
}

func TestVideoStreamDurationPicksVideoStream(t *testing.T) {
	probe := ProbeResult{Streams: []ProbeStream{
		{CodecType: "audio", Duration: "100.0"},
		{CodecType: "video", Duration: "250.5"},
		{CodecType: "video", Duration: "999.0"}, // only the first video stream counts
	}}
	if got := probe.VideoStreamDuration(); got != 250.5 {
		t.Fatalf("VideoStreamDuration = %v, want 250.5", got)
	}

	noVideo := ProbeResult{Streams: []ProbeStream{{CodecType: "audio", Duration: "100.0"}}}
	if got := noVideo.VideoStreamDuration(); got != 0 {
		t.Fatalf("VideoStreamDuration with no video stream = %v, want 0", got)
	}
}

func TestParseSeconds(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"3600.52", 3600.52},
		{" 12 ", 12},
		{"", 0},
		{"N/A", 0},
		{"-5", 0},
	}
	for _, c := range cases {
		if got := parseSeconds(c.in); got != c.want {
			t.Errorf("parseSeconds(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
