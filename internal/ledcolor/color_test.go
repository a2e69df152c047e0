package ledcolor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLerp(t *testing.T) {
	from := New(0, 100, 200, 10)
	to := New(100, 0, 200, 20)

	tests := []struct {
		name  string
		ratio float64
		want  Color
	}{
		{name: "start", ratio: 0, want: from},
		{name: "end", ratio: 1, want: to},
		{name: "quarter truncates", ratio: 0.25, want: New(25, 75, 200, 12)},
		{name: "third truncates toward zero", ratio: 1.0 / 3, want: New(33, 66, 200, 13)},
		{name: "negative clamps", ratio: -2, want: from},
		{name: "overshoot clamps", ratio: 3, want: to},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Lerp(from, to, tt.ratio))
		})
	}
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("grb")
	require.NoError(t, err)
	assert.Equal(t, OrderGRB, o)
	assert.Equal(t, "GRB", o.String())

	o, err = ParseOrder("")
	require.NoError(t, err)
	assert.Equal(t, OrderRGB, o)

	_, err = ParseOrder("RGBW")
	assert.ErrorIs(t, err, ErrBadOrder)
}

func TestOrderApply(t *testing.T) {
	c := New(1, 2, 3, 4)

	assert.Equal(t, c, OrderRGB.Apply(c))
	assert.Equal(t, New(2, 1, 3, 4), OrderGRB.Apply(c))
	assert.Equal(t, New(3, 2, 1, 4), OrderBGR.Apply(c))
	assert.Equal(t, New(2, 3, 1, 4), OrderGBR.Apply(c))
}

func TestTranslateRGBA(t *testing.T) {
	buf := []byte{10, 20, 30, 40, 1, 2, 3, 4}

	out := OrderBRG.TranslateRGBA(buf)

	assert.Equal(t, []byte{30, 10, 20, 40, 3, 1, 2, 4}, out)
	assert.Equal(t, []byte{10, 20, 30, 40, 1, 2, 3, 4}, buf, "source buffer must not change")
}

func TestColorUnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Color
		wantErr bool
	}{
		{name: "sequence", input: "[31, 0, 0, 5]", want: New(31, 0, 0, 5)},
		{name: "sequence without brightness", input: "[1, 2, 3]", want: New(1, 2, 3, 255)},
		{name: "hex mapping", input: "{hex: \"#ff8000\", brightness: 7}", want: New(255, 128, 0, 7)},
		{name: "hex without brightness", input: "{hex: \"#000010\"}", want: New(0, 0, 16, 255)},
		{name: "too few channels", input: "[1, 2]", wantErr: true},
		{name: "channel out of range", input: "[1, 2, 300, 4]", wantErr: true},
		{name: "bad hex", input: "{hex: \"nope\"}", wantErr: true},
		{name: "scalar", input: "red", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Color
			err := yaml.Unmarshal([]byte(tt.input), &c)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, c)
		})
	}
}
