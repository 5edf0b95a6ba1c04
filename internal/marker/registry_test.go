package marker

import (
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	for _, c := range Colors() {
		t.Run(c.String(), func(t *testing.T) {
			got, ok := FromTag(ToTag(c))
			if !ok {
				t.Fatalf("FromTag(ToTag(%s)) not recognized", c)
			}
			if got != c {
				t.Errorf("FromTag(ToTag(%s)) = %s", c, got)
			}
		})
	}
}

func TestTagsUnique(t *testing.T) {
	seen := make(map[Tag]Color)
	for _, c := range Colors() {
		tag := ToTag(c)
		if prev, dup := seen[tag]; dup {
			t.Errorf("tag %s shared by %s and %s", tag, prev, c)
		}
		seen[tag] = c
	}
	if len(seen) != 12 {
		t.Errorf("expected 12 distinct tags, got %d", len(seen))
	}
}

func TestFromTag_Unrecognized(t *testing.T) {
	tests := []struct {
		name string
		tag  Tag
	}{
		{"zero", Tag{}},
		{"off_by_one_byte", Tag{4, 61, 48, 18, 54, 30, 145}},
		{"last_byte_changed", Tag{4, 61, 60, 18, 54, 30, 146}},
		{"all_ones", Tag{255, 255, 255, 255, 255, 255, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if c, ok := FromTag(tt.tag); ok {
				t.Errorf("FromTag(%s) = %s, want unrecognized", tt.tag, c)
			}
		})
	}
}

func TestFromTag_ExhaustiveSingleByteVariation(t *testing.T) {
	known := make(map[Tag]bool)
	for _, c := range Colors() {
		known[ToTag(c)] = true
	}

	base := ToTag(Red)
	for i := 0; i < TagSize; i++ {
		for v := 0; v < 256; v++ {
			tag := base
			tag[i] = byte(v)
			_, ok := FromTag(tag)
			if ok != known[tag] {
				t.Fatalf("FromTag(%s) recognized=%v, want %v", tag, ok, known[tag])
			}
		}
	}
}

func TestParams(t *testing.T) {
	tests := []struct {
		color Color
		want  HSB
	}{
		{Red, HSB{0, 100, 100}},
		{Brown, HSB{30, 100, 30}},
		{Black, HSB{0, 0, 1}},
		{Blue, HSB{240, 100, 100}},
		{Pink, HSB{340, 100, 100}},
		{Violet, HSB{0, 0, 70}},
	}

	for _, tt := range tests {
		t.Run(tt.color.String(), func(t *testing.T) {
			if got := Params(tt.color); got != tt.want {
				t.Errorf("Params(%s) = %+v, want %+v", tt.color, got, tt.want)
			}
		})
	}
}

func TestParams_InRange(t *testing.T) {
	for _, c := range Colors() {
		p := Params(c)
		if p.Hue > 360 || p.Saturation > 100 || p.Brightness > 100 {
			t.Errorf("Params(%s) out of range: %+v", c, p)
		}
	}
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		input   string
		want    Tag
		wantErr error
	}{
		{"04:3d:3c:12:36:1e:91", ToTag(Red), nil},
		{"043d3c12361e91", ToTag(Red), nil},
		{"04-3D-34-12-36-1E-91", ToTag(Blue), nil},
		{" 04 3d 31 12 36 1e 91 ", ToTag(Violet), nil},
		{"04:3d:3c:12", Tag{}, ErrTagLength},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTag(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseTag(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTag(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseTag(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTag_InvalidHex(t *testing.T) {
	if _, err := ParseTag("zz:3d:3c:12:36:1e:91"); err == nil {
		t.Error("expected error for invalid hex")
	}
}

func TestTagString(t *testing.T) {
	if got := ToTag(Red).String(); got != "04:3d:3c:12:36:1e:91" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseColor(t *testing.T) {
	for _, c := range Colors() {
		got, err := ParseColor(c.String())
		if err != nil {
			t.Fatalf("ParseColor(%q): %v", c.String(), err)
		}
		if got != c {
			t.Errorf("ParseColor(%q) = %s", c.String(), got)
		}
	}
	if _, err := ParseColor("none"); err == nil {
		t.Error("ParseColor(none) should fail")
	}
	if _, err := ParseColor("chartreuse"); err == nil {
		t.Error("ParseColor(chartreuse) should fail")
	}
}

func TestColorValid(t *testing.T) {
	if None.Valid() {
		t.Error("None should not be valid")
	}
	if !Violet.Valid() {
		t.Error("Violet should be valid")
	}
	if Color(13).Valid() {
		t.Error("Color(13) should not be valid")
	}
}
