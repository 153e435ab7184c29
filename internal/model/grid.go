package model

import (
	"fmt"
	"regexp"
	"strconv"
)

var cellIDPattern = regexp.MustCompile(`^G_(\d{2})_(\d{2})$`)

// CellID formats a grid coordinate as the canonical G_XX_YY identifier.
func CellID(x, y int) string {
	return fmt.Sprintf("G_%02d_%02d", x, y)
}

// ParseCellID validates and decodes a grid cell identifier against the
// configured grid bounds.
func ParseCellID(id string, width, height int) (x, y int, err error) {
	m := cellIDPattern.FindStringSubmatch(id)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid grid cell id %q", id)
	}
	x, _ = strconv.Atoi(m[1])
	y, _ = strconv.Atoi(m[2])
	if x < 0 || x >= width || y < 0 || y >= height {
		return 0, 0, fmt.Errorf("grid cell id %q out of bounds for %dx%d grid", id, width, height)
	}
	return x, y, nil
}

// ValidCellID reports whether id matches the grid-id regex and fits
// within the given grid bounds.
func ValidCellID(id string, width, height int) bool {
	_, _, err := ParseCellID(id, width, height)
	return err == nil
}
