package main

import (
	"flag"

	"wildfire-rf/internal/cfg"
)

// tileFlags are the command line overrides of the tiling settings.
type tileFlags struct {
	source  string
	name    string
	dest    string
	window  int
	overlap float64
}

func (f *tileFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.source, "source", "", "Source raster file, directory of rasters, or http(s) URL (default: config source dir)")
	fs.StringVar(&f.name, "name", "", "Channel name for a single source file (default: file stem)")
	fs.StringVar(&f.dest, "dest", "", "Destination root for sample directories (overrides config)")
	fs.IntVar(&f.window, "window", 0, "Tile size in pixels (overrides config)")
	fs.Float64Var(&f.overlap, "overlap", 0, "Fractional overlap in [0, 1) (overrides config)")
}

// apply copies the flags set on the command line onto config. Values are
// copied as given so Validate rejects out of range ones.
func (f *tileFlags) apply(fs *flag.FlagSet, config *cfg.Settings) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "source":
			config.SourceDir = f.source
		case "dest":
			config.DestDir = f.dest
		case "window":
			config.WindowSize = f.window
		case "overlap":
			config.Overlap = f.overlap
		}
	})
}
