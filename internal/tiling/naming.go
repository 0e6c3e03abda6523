package tiling

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"wildfire-rf/internal/common"
)

var tileNameRe = regexp.MustCompile(`^(.+)_(\d+)_(\d+)\.tiff?$`)

// SampleDir is the container holding every channel's tile for one sample.
func SampleDir(root, prefix string, index int) string {
	return filepath.Join(root, fmt.Sprintf("%s%d", prefix, index))
}

// TileName follows <channel>_<origin_x>_<origin_y>.tif.
func TileName(channel string, x, y int) string {
	return fmt.Sprintf("%s_%d_%d%s", channel, x, y, common.TileExt)
}

// ParseTileName splits a tile file name into its channel and origin.
func ParseTileName(name string) (channel string, x, y int, ok bool) {
	m := tileNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", 0, 0, false
	}
	x, errX := strconv.Atoi(m[2])
	y, errY := strconv.Atoi(m[3])
	if errX != nil || errY != nil {
		return "", 0, 0, false
	}
	return m[1], x, y, true
}
