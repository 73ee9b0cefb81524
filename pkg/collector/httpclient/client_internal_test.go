package httpclient

import "testing"

func TestParseRetryAfter(t *testing.T) {
	cases := map[string]int{
		"":     0,
		"5":    5,
		"-1":   0,
		"abc":  0,
		"0":    0,
		"120":  120,
	}
	for in, want := range cases {
		if got := parseRetryAfter(in); got != want {
			t.Errorf("parseRetryAfter(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestRetryableStatusSet(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !retryableStatus[code] {
			t.Errorf("expected status %d to be retryable", code)
		}
	}
	if retryableStatus[200] || retryableStatus[404] {
		t.Errorf("2xx/4xx (non-429) statuses must not be retryable")
	}
}
