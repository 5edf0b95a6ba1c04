package marker

// HSB holds the light parameters for a color.
// Hue is 0-360, saturation and brightness are 0-100.
type HSB struct {
	Hue        uint16 `json:"hue"`
	Saturation uint8  `json:"saturation"`
	Brightness uint8  `json:"brightness"`
}

// entry pairs a color with its tag and light parameters.
type entry struct {
	tag    Tag
	params HSB
}

// registry is the fixed marker table. Tags must be unique across colors.
var registry = map[Color]entry{
	Red:        {Tag{4, 61, 60, 18, 54, 30, 145}, HSB{0, 100, 100}},
	Brown:      {Tag{4, 61, 59, 18, 54, 30, 145}, HSB{30, 100, 30}},
	BlueLagoon: {Tag{4, 61, 58, 18, 54, 30, 145}, HSB{180, 100, 100}},
	Green:      {Tag{4, 61, 57, 18, 54, 30, 145}, HSB{120, 100, 100}},
	Black:      {Tag{4, 61, 56, 18, 54, 30, 145}, HSB{0, 0, 1}},
	SandyTan:   {Tag{4, 61, 55, 18, 54, 30, 145}, HSB{30, 100, 100}},
	Gray:       {Tag{4, 61, 54, 18, 54, 30, 145}, HSB{0, 0, 50}},
	Pink:       {Tag{4, 61, 53, 18, 54, 30, 145}, HSB{340, 100, 100}},
	Blue:       {Tag{4, 61, 52, 18, 54, 30, 145}, HSB{240, 100, 100}},
	Yellow:     {Tag{4, 61, 51, 18, 54, 30, 145}, HSB{60, 100, 100}},
	Orange:     {Tag{4, 61, 50, 18, 54, 30, 145}, HSB{30, 100, 100}},
	Violet:     {Tag{4, 61, 49, 18, 54, 30, 145}, HSB{0, 0, 70}},
}

// byTag is the reverse index, built once from registry.
var byTag = func() map[Tag]Color {
	m := make(map[Tag]Color, len(registry))
	for c, e := range registry {
		m[e.tag] = c
	}
	return m
}()

// ToTag returns the hardware tag of the marker with color c.
// Calling it with None or an out-of-range value returns the zero Tag.
func ToTag(c Color) Tag {
	return registry[c].tag
}

// FromTag returns the color whose marker carries tag t.
// The second result is false for unrecognized tags.
func FromTag(t Tag) (Color, bool) {
	c, ok := byTag[t]
	return c, ok
}

// Params returns the fixed light parameters for color c.
func Params(c Color) HSB {
	return registry[c].params
}
