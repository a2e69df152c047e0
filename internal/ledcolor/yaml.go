package ledcolor

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

// hexColor is the mapping form of a color in config files:
//
//	color_on: {hex: "#1f1f1f", brightness: 5}
type hexColor struct {
	Hex        string `yaml:"hex"`
	Brightness *int   `yaml:"brightness"`
}

// UnmarshalYAML accepts either a [r, g, b, l] sequence (brightness may be
// omitted and defaults to 255) or a {hex, brightness} mapping.
func (c *Color) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var channels []int
		if err := value.Decode(&channels); err != nil {
			return fmt.Errorf("color: %w", err)
		}

		if len(channels) != 3 && len(channels) != 4 {
			return fmt.Errorf("color: expected 3 or 4 channels, got %d", len(channels))
		}

		if len(channels) == 3 {
			channels = append(channels, 255)
		}

		for i, v := range channels {
			if v < 0 || v > 255 {
				return fmt.Errorf("color: channel %d out of range: %d", i, v)
			}
		}

		*c = New(uint8(channels[0]), uint8(channels[1]), uint8(channels[2]), uint8(channels[3]))

		return nil
	case yaml.MappingNode:
		var h hexColor
		if err := value.Decode(&h); err != nil {
			return fmt.Errorf("color: %w", err)
		}

		parsed, err := colorful.Hex(h.Hex)
		if err != nil {
			return fmt.Errorf("color: %w", err)
		}

		brightness := 255
		if h.Brightness != nil {
			brightness = *h.Brightness
		}

		if brightness < 0 || brightness > 255 {
			return fmt.Errorf("color: brightness out of range: %d", brightness)
		}

		r, g, b := parsed.RGB255()
		*c = New(r, g, b, uint8(brightness))

		return nil
	default:
		return fmt.Errorf("color: unsupported YAML node at line %d", value.Line)
	}
}

// MarshalYAML always writes the sequence form.
func (c Color) MarshalYAML() (interface{}, error) {
	return []int{int(c.Red), int(c.Green), int(c.Blue), int(c.Brightness)}, nil
}
