package pagination

import (
	"errors"
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size, got %d", params.PageSize)
	}
	if !params.Cursor.Empty() {
		t.Fatalf("expected empty cursor")
	}
}

func TestParseClampsPageSize(t *testing.T) {
	params, err := Parse(url.Values{"page_size": {"500"}})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.PageSize != MaxPageSize {
		t.Fatalf("expected clamp to %d, got %d", MaxPageSize, params.PageSize)
	}

	for _, raw := range []string{"0", "-3", "ten"} {
		if _, err := Parse(url.Values{"page_size": {raw}}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("expected ErrInvalidPageSize for %q, got %v", raw, err)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := EncodeToken(Cursor{StartAfter: []string{"2025-03-01T09:30:00Z", "ord_01"}})
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	params, err := Parse(url.Values{"page_token": {token}})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := params.Cursor.StartAfter; len(got) != 2 || got[1] != "ord_01" {
		t.Fatalf("unexpected cursor %+v", params.Cursor)
	}

	if empty, _ := EncodeToken(Cursor{}); empty != "" {
		t.Fatalf("expected empty token for first page, got %q", empty)
	}
}

func TestParseRejectsGarbageToken(t *testing.T) {
	if _, err := Parse(url.Values{"page_token": {"%%%"}}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}
