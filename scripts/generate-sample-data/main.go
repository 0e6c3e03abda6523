package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"wildfire-rf/internal/raster"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// burn is a circular burned area.
type burn struct {
	cx, cy, r float64
}

// channel describes one synthetic layer: its storage encoding and how a
// pixel value depends on whether the pixel burned.
type channel struct {
	name          string
	scale, offset float64
	value         func(rng *rand.Rand, burned bool) float64
}

var channels = []channel{
	{"humidity", 0.01, 0, func(rng *rand.Rand, burned bool) float64 {
		if burned {
			return 15 + rng.Float64()*20
		}
		return 40 + rng.Float64()*45
	}},
	{"temperature", 0.01, 0, func(rng *rand.Rand, burned bool) float64 {
		if burned {
			return 305 + rng.NormFloat64()*3
		}
		return 292 + rng.NormFloat64()*4
	}},
	{"ndvi", 0.0001, -1, func(rng *rand.Rand, burned bool) float64 {
		if burned {
			return -0.1 + rng.Float64()*0.25
		}
		return 0.3 + rng.Float64()*0.5
	}},
	{"lst", 0.01, 0, func(rng *rand.Rand, burned bool) float64 {
		if burned {
			return 318 + rng.NormFloat64()*4
		}
		return 298 + rng.NormFloat64()*4
	}},
	{"label", 1, 0, func(_ *rand.Rand, burned bool) float64 {
		if burned {
			return 1
		}
		return 0
	}},
}

func main() {
	var (
		out      = flag.String("out", "source_data", "Directory to write channel rasters into")
		width    = flag.Int("width", 1000, "Raster width in pixels")
		height   = flag.Int("height", 1000, "Raster height in pixels")
		burns    = flag.Int("burns", 6, "Number of burned areas")
		seed     = flag.Uint64("seed", 1, "Random seed")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *width < 1 || *height < 1 {
		log.Fatal().Int("width", *width).Int("height", *height).Msg("Raster must have positive dimensions")
	}

	rng := rand.New(rand.NewPCG(*seed, 0))
	areas := make([]burn, *burns)
	maxR := float64(min(*width, *height)) / 6
	for i := range areas {
		areas[i] = burn{
			cx: rng.Float64() * float64(*width),
			cy: rng.Float64() * float64(*height),
			r:  maxR/4 + rng.Float64()*maxR*3/4,
		}
	}

	burned := make([]bool, *width**height)
	count := 0
	for y := 0; y < *height; y++ {
		for x := 0; x < *width; x++ {
			for _, a := range areas {
				if math.Hypot(float64(x)-a.cx, float64(y)-a.cy) <= a.r {
					burned[y**width+x] = true
					count++
					break
				}
			}
		}
	}

	// Roughly 30 m pixels in a projected CRS, matching the cropped
	// Landsat-derived inputs.
	transform := raster.GeoTransform{500000, 30, 0, 4200000, 0, -30}
	var rw raster.TIFF
	for i, ch := range channels {
		chRng := rand.New(rand.NewPCG(*seed, uint64(i+1)))
		g := raster.NewGrid(*width, *height)
		g.Transform = transform
		g.CRS = "EPSG:32611"
		g.Scale = ch.scale
		g.Offset = ch.offset
		for p := range g.Data {
			g.Data[p] = ch.value(chRng, burned[p])
		}
		path := filepath.Join(*out, ch.name+".tif")
		if err := rw.Write(path, g); err != nil {
			log.Fatal().Err(err).Str("channel", ch.name).Msg("Failed to write raster")
		}
		log.Info().Str("file", path).Msg("Channel written")
	}

	fmt.Printf("Generated %d channels of %dx%d pixels in %s (%.1f%% burned)\n",
		len(channels), *width, *height, *out, 100*float64(count)/float64(len(burned)))
}
