package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// GeometryFlagPrefix is the command-line form of the geometry option.
const GeometryFlagPrefix = "--geometry="

// ErrZeroDimension is returned for a geometry with a zero width or height.
var ErrZeroDimension = errors.New("Invalid geometry: Window dimensions should be greater than 0.") //nolint:staticcheck // user-facing message

// Geometry is a grid size in cells.
type Geometry struct {
	Width  int
	Height int
}

func (g Geometry) String() string { return fmt.Sprintf("%dx%d", g.Width, g.Height) }

// ParseGeometry parses "<width>x<height>". Each dimension must be a
// positive integer.
func ParseGeometry(input string) (Geometry, error) {
	invalid := fmt.Errorf("Invalid geometry: %s\nValid format: <width>x<height>", input) //nolint:staticcheck // user-facing message

	parts := strings.Split(input, "x")
	dims := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return Geometry{}, invalid
		}
		if n == 0 {
			return Geometry{}, ErrZeroDimension
		}
		dims = append(dims, int(n))
	}
	if len(dims) != 2 {
		return Geometry{}, invalid
	}
	return Geometry{Width: dims[0], Height: dims[1]}, nil
}

// InitialGeometry resolves the attach size: the configured geometry, then
// the terminal size, then DefaultWidth x DefaultHeight. terminal may be nil.
func InitialGeometry(configured string, terminal func() (int, int, error)) (Geometry, error) {
	if configured != "" {
		return ParseGeometry(configured)
	}
	if terminal != nil {
		if w, h, err := terminal(); err == nil && w > 0 && h > 0 {
			return Geometry{Width: w, Height: h}, nil
		}
	}
	return Geometry{Width: DefaultWidth, Height: DefaultHeight}, nil
}
