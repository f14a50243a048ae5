package numeric

import "testing"

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		decimals uint8
		want     string
		wantErr  bool
	}{
		{name: "whole", in: "1", decimals: 18, want: "1000000000000000000"},
		{name: "fraction", in: "1.5", decimals: 18, want: "1500000000000000000"},
		{name: "six_decimals", in: "2000", decimals: 6, want: "2000000000"},
		{name: "truncates_excess_digits", in: "1.123456789", decimals: 6, want: "1123456"},
		{name: "leading_dot", in: ".5", decimals: 6, want: "500000"},
		{name: "trailing_dot", in: "5.", decimals: 6, want: "5000000"},
		{name: "zero", in: "0", decimals: 18, want: "0"},
		{name: "empty", in: "", decimals: 18, wantErr: true},
		{name: "garbage", in: "1.2.3", decimals: 18, wantErr: true},
		{name: "letters", in: "12a", decimals: 18, wantErr: true},
		{name: "negative_rejected", in: "-1", decimals: 18, wantErr: true},
		{name: "lone_dot", in: ".", decimals: 18, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnits(tt.in, tt.decimals)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseUnits(%q) expected error, got %s", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseUnits(%q) unexpected error: %v", tt.in, err)
			}
			if got.Cmp(bi(tt.want)) != 0 {
				t.Errorf("ParseUnits(%q, %d) = %s, want %s", tt.in, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		decimals  uint8
		maxPlaces int
		want      string
	}{
		{name: "pads_display_places", raw: "1500000000000000000", decimals: 18, maxPlaces: 6, want: "1.500000"},
		{name: "truncates_not_rounds", raw: "1999999999999999999", decimals: 18, maxPlaces: 2, want: "1.99"},
		{name: "zero_places_drops_dot", raw: "1999999", decimals: 6, maxPlaces: 0, want: "1"},
		{name: "small_value_leading_zero", raw: "123456", decimals: 18, maxPlaces: 18, want: "0.000000000000123456"},
		{name: "places_clamped_to_decimals", raw: "1500000", decimals: 6, maxPlaces: 9, want: "1.500000"},
		{name: "negative", raw: "-1500000", decimals: 6, maxPlaces: 2, want: "-1.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatUnits(bi(tt.raw), tt.decimals, tt.maxPlaces)
			if got != tt.want {
				t.Errorf("FormatUnits(%s, %d, %d) = %q, want %q", tt.raw, tt.decimals, tt.maxPlaces, got, tt.want)
			}
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	raw, err := ParseUnits("1.5", 18)
	if err != nil {
		t.Fatal(err)
	}
	if got := FormatUnits(raw, 18, 6); got != "1.500000" {
		t.Errorf("round trip = %q, want %q", got, "1.500000")
	}
}

func TestFormatUnitsNil(t *testing.T) {
	if got := FormatUnits(nil, 6, 2); got != "0.00" {
		t.Errorf("FormatUnits(nil) = %q, want %q", got, "0.00")
	}
}
