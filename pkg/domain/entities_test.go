package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestApprovedZoneContainsInclusiveBounds(t *testing.T) {
	zone := ApprovedZone{Name: "Rajasthan Zone 1", MinLat: 26.9124, MinLong: 75.7873, MaxLat: 27.2124, MaxLong: 76.0873}
	cases := []struct {
		lat, long float64
		want      bool
	}{
		{27.0, 75.9, true},
		{26.9124, 75.7873, true}, // min corner is inside
		{27.2124, 76.0873, true}, // max corner is inside
		{26.9123, 75.9, false},
		{27.0, 76.0874, false},
	}
	for _, tc := range cases {
		if got := zone.Contains(tc.lat, tc.long); got != tc.want {
			t.Fatalf("Contains(%v,%v)=%v want %v", tc.lat, tc.long, got, tc.want)
		}
	}
}

func TestQRPayload(t *testing.T) {
	ts := time.Date(2024, time.November, 5, 10, 30, 0, 0, time.UTC)
	payload := QRPayload("EVT_000001_ab12cd34", "collection", ts)
	var decoded map[string]string
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded["id"] != "EVT_000001_ab12cd34" {
		t.Fatalf("unexpected id %q", decoded["id"])
	}
	if decoded["type"] != "collection" {
		t.Fatalf("unexpected type %q", decoded["type"])
	}
	if decoded["timestamp"] != "2024-11-05T10:30:00Z" {
		t.Fatalf("unexpected timestamp %q", decoded["timestamp"])
	}
	if decoded["network"] != "herbtrace" {
		t.Fatalf("unexpected network %q", decoded["network"])
	}
}

func TestResultBlocking(t *testing.T) {
	var res Result
	if res.HasBlocking() {
		t.Fatalf("empty result should not block")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "a", Severity: SeverityWarn}}})
	if res.HasBlocking() {
		t.Fatalf("warn-only result should not block")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "b", Severity: SeverityBlock, Message: "nope"}}})
	if !res.HasBlocking() {
		t.Fatalf("expected blocking result")
	}
	v, ok := res.FirstBlocking()
	if !ok || v.Rule != "b" {
		t.Fatalf("unexpected first blocking violation %+v ok=%v", v, ok)
	}
	err := RuleViolationError{Result: res}
	if err.Error() != "transaction blocked by rule b: nope" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}
