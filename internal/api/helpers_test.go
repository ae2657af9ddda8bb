package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestParseLimitOffset(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", 20, 0},
		{"explicit values", "?limit=50&offset=100", 50, 100},
		{"limit capped at 200", "?limit=500", 20, 0},
		{"negative limit ignored", "?limit=-5", 20, 0},
		{"negative offset ignored", "?offset=-1", 20, 0},
		{"garbage ignored", "?limit=abc&offset=xyz", 20, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/search"+tt.query, nil)
			limit, offset := parseLimitOffset(r)
			if limit != tt.wantLimit || offset != tt.wantOffset {
				t.Errorf("parseLimitOffset(%q) = (%d, %d), want (%d, %d)",
					tt.query, limit, offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestBoolQuery(t *testing.T) {
	for _, v := range []string{"1", "true", "yes"} {
		r := httptest.NewRequest("GET", "/x?flag="+v, nil)
		if !boolQuery(r, "flag") {
			t.Errorf("boolQuery(%q) = false, want true", v)
		}
	}
	for _, v := range []string{"", "0", "false", "no", "on"} {
		r := httptest.NewRequest("GET", "/x?flag="+v, nil)
		if boolQuery(r, "flag") {
			t.Errorf("boolQuery(%q) = true, want false", v)
		}
	}
}

func TestWriteAPIError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeAPIError(rec, 404, "asset not found")

	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var envelope struct {
		Error map[string]string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if envelope.Error["message"] != "asset not found" {
		t.Errorf("message = %q", envelope.Error["message"])
	}
}
