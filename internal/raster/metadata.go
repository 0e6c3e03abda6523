package raster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MetadataSuffix is appended to a raster path to name its sidecar.
const MetadataSuffix = ".meta.yaml"

// Metadata is the georeferencing sidecar stored next to each raster file.
type Metadata struct {
	Transform GeoTransform `yaml:"transform"`
	CRS       string       `yaml:"crs,omitempty"`
	Scale     float64      `yaml:"scale"`
	Offset    float64      `yaml:"offset"`
}

func MetadataPath(rasterPath string) string {
	return rasterPath + MetadataSuffix
}

// ReadMetadata loads the sidecar for rasterPath. A missing sidecar is not an
// error and yields an identity transform with unit scale.
func ReadMetadata(rasterPath string) (Metadata, error) {
	meta := Metadata{Transform: IdentityTransform(), Scale: 1}

	data, err := os.ReadFile(MetadataPath(rasterPath))
	if err != nil {
		if os.IsNotExist(err) {
			return meta, nil
		}
		return meta, fmt.Errorf("read raster metadata: %w", err)
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse raster metadata %s: %w", MetadataPath(rasterPath), err)
	}
	if meta.Scale == 0 {
		meta.Scale = 1
	}
	return meta, nil
}

func WriteMetadata(rasterPath string, meta Metadata) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal raster metadata: %w", err)
	}
	if err := os.WriteFile(MetadataPath(rasterPath), data, 0o644); err != nil {
		return fmt.Errorf("write raster metadata: %w", err)
	}
	return nil
}
