package pipeline

import (
	"encoding/json"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/reservations_backend/extract"
	"bitbucket.org/mmdatafocus/reservations_backend/utils"
)

func TestParseFilenameHint(t *testing.T) {
	cases := []struct {
		filename string
		num      int
		edition  int
		ok       bool
	}{
		{"RES_1001_0.pdf", 1001, 0, true},
		{"RES_1647075_2.PDF", 1647075, 2, true},
		{"res_42_1.pdf", 42, 1, true},
		{"invoice_1001.pdf", 0, 0, false},
		{"RES_1001.pdf", 0, 0, false},
		{"RES_0_1.pdf", 0, 0, false},
	}
	for _, tc := range cases {
		key, ok := ParseFilenameHint(tc.filename)
		if ok != tc.ok {
			t.Fatalf("%s: ok = %v, expected %v", tc.filename, ok, tc.ok)
		}
		if ok && (key.ReservationNumber != tc.num || key.Edition != tc.edition) {
			t.Fatalf("%s: got %v, expected %d/%d", tc.filename, key, tc.num, tc.edition)
		}
	}
}

func TestResolveIdentity_AgreeingSourcesUseHint(t *testing.T) {
	cand := extract.CandidateFields{ReservationNumber: json.Number("1001"), Edition: json.Number("5")}
	key, err := ResolveIdentity("RES_1001_2.pdf", cand)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Filename edition wins a disagreement; the mail side stamps it.
	if key.ReservationNumber != 1001 || key.Edition != 2 {
		t.Fatalf("got %v, expected 1001/2", key)
	}
}

func TestResolveIdentity_MismatchFails(t *testing.T) {
	cand := extract.CandidateFields{ReservationNumber: json.Number("9999")}
	_, err := ResolveIdentity("RES_1001_0.pdf", cand)
	if !errors.Is(err, utils.ErrMalformedIdentity) {
		t.Fatalf("expected ErrMalformedIdentity, got %v", err)
	}
}

func TestResolveIdentity_ContentOnly(t *testing.T) {
	cand := extract.CandidateFields{ReservationNumber: json.Number("1001"), Edition: json.Number("1")}
	key, err := ResolveIdentity("scan-07.pdf", cand)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.ReservationNumber != 1001 || key.Edition != 1 {
		t.Fatalf("got %v, expected 1001/1", key)
	}
}

func TestResolveIdentity_NothingDerivableFails(t *testing.T) {
	_, err := ResolveIdentity("scan-07.pdf", extract.CandidateFields{})
	if !errors.Is(err, utils.ErrMalformedIdentity) {
		t.Fatalf("expected ErrMalformedIdentity, got %v", err)
	}
}

func TestResolveIdentity_SameIdentitySameKey(t *testing.T) {
	cand := extract.CandidateFields{ReservationNumber: json.Number("1001"), Edition: json.Number("1")}
	a, err := ResolveIdentity("RES_1001_1.pdf", cand)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ResolveIdentity("RES_1001_1.PDF", cand)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("identical documents resolved to different keys: %v vs %v", a, b)
	}
}
