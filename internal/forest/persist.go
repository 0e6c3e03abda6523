package forest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"wildfire-rf/internal/common"

	"github.com/rs/zerolog/log"
)

// FormatVersion is bumped whenever the persisted layout changes.
const FormatVersion = 1

type envelope struct {
	Format int     `json:"format"`
	Forest *Forest `json:"forest"`
}

// Save writes the forest as JSON. The file is written to a temporary name
// in the target directory and renamed, so readers never see a partial model.
func (f *Forest) Save(path string) error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("save model: %w: forest is not fitted", common.ErrPersistence)
	}
	data, err := json.Marshal(envelope{Format: FormatVersion, Forest: f})
	if err != nil {
		return fmt.Errorf("save model: %w: encode: %v", common.ErrPersistence, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save model: %w: %v", common.ErrPersistence, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("save model: %w: %v", common.ErrPersistence, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save model: %w: %v", common.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save model: %w: %v", common.ErrPersistence, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save model: %w: %v", common.ErrPersistence, err)
	}

	log.Info().Str("path", path).Int("trees", len(f.Trees)).Int("bytes", len(data)).Msg("Model saved")
	return nil
}

// Load reads a forest written by Save and checks its structure before
// returning it.
func Load(path string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w: %v", common.ErrPersistence, err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("load model %s: %w: decode: %v", path, common.ErrPersistence, err)
	}
	if env.Format != FormatVersion {
		return nil, fmt.Errorf("load model %s: %w: unsupported format %d", path, common.ErrPersistence, env.Format)
	}
	if env.Forest == nil {
		return nil, fmt.Errorf("load model %s: %w: no forest", path, common.ErrPersistence)
	}
	if err := env.Forest.check(); err != nil {
		return nil, fmt.Errorf("load model %s: %w: %v", path, common.ErrPersistence, err)
	}
	return env.Forest, nil
}

func (f *Forest) check() error {
	if f.NumFeatures < 1 {
		return fmt.Errorf("model declares %d features", f.NumFeatures)
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("model has no trees")
	}
	if len(f.Importance) != f.NumFeatures {
		return fmt.Errorf("model has %d importances for %d features", len(f.Importance), f.NumFeatures)
	}
	for t := range f.Trees {
		nodes := f.Trees[t].Nodes
		if len(nodes) == 0 {
			return fmt.Errorf("tree %d is empty", t)
		}
		for i, n := range nodes {
			if n.isLeaf() {
				continue
			}
			if n.Feature >= f.NumFeatures {
				return fmt.Errorf("tree %d node %d splits on feature %d", t, i, n.Feature)
			}
			// Children always follow their parent, which also rules out cycles.
			if n.Left <= i || n.Left >= len(nodes) || n.Right <= i || n.Right >= len(nodes) {
				return fmt.Errorf("tree %d node %d has invalid children", t, i)
			}
		}
	}
	return nil
}
