package domain

import (
	"reflect"
	"testing"
)

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Categories
	}{
		{"empty", "", nil},
		{"null", "null", nil},
		{"stored array", `["Source - Webform","VIP"]`, Categories{"Source - Webform", "VIP"}},
		{"json encoded string", `"[\"Lead\"]"`, Categories{"Lead"}},
		{"comma separated", "Lead, VIP ,,", Categories{"Lead", "VIP"}},
		{"broken array falls back to csv", `[Lead`, Categories{"[Lead"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCategories(tt.raw)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseCategories(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCategories_EncodeIsReadBack(t *testing.T) {
	cats := Categories{"Source - Webform", "Stage, Qualified"}
	stored := cats.Encode()
	if got := ParseCategories(stored); !reflect.DeepEqual(got, cats) {
		t.Errorf("read back %#v from %s", got, stored)
	}
	if (Categories(nil)).Encode() != "[]" {
		t.Error("empty categories must encode as []")
	}
}
