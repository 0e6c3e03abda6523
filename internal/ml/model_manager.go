package ml

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"wildfire-rf/internal/common"

	"github.com/rs/zerolog/log"
)

const versionsFileName = "model_versions.json"

// ModelVersion is one saved model and how it scored.
type ModelVersion struct {
	Version   string       `json:"version"`
	Path      string       `json:"path"`
	CreatedAt time.Time    `json:"created_at"`
	Metrics   ModelMetrics `json:"metrics"`
	IsActive  bool         `json:"is_active"`
}

// ModelMetrics summarises a Report for the ledger. Precision, recall and
// F1 are those of the positive class.
type ModelMetrics struct {
	Accuracy        float64 `json:"accuracy"`
	F1Score         float64 `json:"f1_score"`
	Precision       float64 `json:"precision"`
	Recall          float64 `json:"recall"`
	TrainingSamples int     `json:"training_samples"`
	TestSamples     int     `json:"test_samples"`
	NumTrees        int     `json:"num_trees"`
}

func MetricsFromReport(r Report, numTrees int) ModelMetrics {
	pos := r.Classes[1]
	return ModelMetrics{
		Accuracy:        r.Accuracy,
		F1Score:         pos.F1,
		Precision:       pos.Precision,
		Recall:          pos.Recall,
		TrainingSamples: r.TrainRows,
		TestSamples:     r.TestRows,
		NumTrees:        numTrees,
	}
}

// ModelManager keeps the model_versions.json ledger next to the served
// model file, newest version first. Every version owns a snapshot of the
// model; activating a version copies its snapshot over the served path.
type ModelManager struct {
	modelsDir    string
	modelPath    string
	versionsFile string
	versions     []ModelVersion
	currentModel *ModelVersion
	now          func() time.Time
}

// NewModelManager manages the model served at modelPath and loads the
// ledger in its directory if one exists. A corrupt ledger is logged and
// replaced on the next write.
func NewModelManager(modelPath string) (*ModelManager, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("%w: model path cannot be empty", common.ErrInvalidConfiguration)
	}
	modelsDir := filepath.Dir(modelPath)
	mm := &ModelManager{
		modelsDir:    modelsDir,
		modelPath:    modelPath,
		versionsFile: filepath.Join(modelsDir, versionsFileName),
		versions:     make([]ModelVersion, 0),
		now:          time.Now,
	}
	if err := mm.loadVersions(); err != nil {
		log.Warn().Err(err).Str("file", mm.versionsFile).Msg("Failed to load model versions, starting fresh")
		mm.versions = mm.versions[:0]
		mm.currentModel = nil
	}
	return mm, nil
}

// snapshotPath names a version's copy: <stem>-<version><ext>.
func (mm *ModelManager) snapshotPath(version string) string {
	ext := filepath.Ext(mm.modelPath)
	stem := strings.TrimSuffix(filepath.Base(mm.modelPath), ext)
	return filepath.Join(mm.modelsDir, stem+"-"+version+ext)
}

// AddVersion snapshots the model currently at the served path, records it
// and makes it the active version.
func (mm *ModelManager) AddVersion(metrics ModelMetrics) (ModelVersion, error) {
	created := mm.now()
	name := mm.uniqueVersion(created.Format("20060102-150405"))
	version := ModelVersion{
		Version:   name,
		Path:      mm.snapshotPath(name),
		CreatedAt: created,
		Metrics:   metrics,
	}
	if err := copyFile(mm.modelPath, version.Path); err != nil {
		return ModelVersion{}, fmt.Errorf("%w: snapshot model: %v", common.ErrPersistence, err)
	}

	mm.versions = append(mm.versions, version)
	sort.SliceStable(mm.versions, func(i, j int) bool {
		return mm.versions[i].CreatedAt.After(mm.versions[j].CreatedAt)
	})
	if err := mm.ActivateVersion(version.Version); err != nil {
		return ModelVersion{}, err
	}
	version.IsActive = true
	log.Info().Str("version", version.Version).Str("path", version.Path).Float64("accuracy", metrics.Accuracy).Msg("Model version recorded")
	return version, nil
}

func (mm *ModelManager) uniqueVersion(base string) string {
	name := base
	for n := 2; mm.find(name) >= 0; n++ {
		name = fmt.Sprintf("%s-%d", base, n)
	}
	return name
}

func (mm *ModelManager) find(version string) int {
	for i := range mm.versions {
		if mm.versions[i].Version == version {
			return i
		}
	}
	return -1
}

// ActivateVersion copies the version's snapshot to the served model path
// and marks it active. The ledger is unchanged when the copy fails.
func (mm *ModelManager) ActivateVersion(version string) error {
	idx := mm.find(version)
	if idx < 0 {
		return fmt.Errorf("version %s not found", version)
	}
	if err := copyFile(mm.versions[idx].Path, mm.modelPath); err != nil {
		return fmt.Errorf("%w: activate %s: %v", common.ErrPersistence, version, err)
	}
	for i := range mm.versions {
		mm.versions[i].IsActive = i == idx
	}
	mm.currentModel = &mm.versions[idx]
	return mm.saveVersions()
}

// Rollback activates the version saved before the active one.
func (mm *ModelManager) Rollback() error {
	if len(mm.versions) < 2 {
		return fmt.Errorf("no previous version available for rollback")
	}
	currentIdx := -1
	for i, v := range mm.versions {
		if v.IsActive {
			currentIdx = i
			break
		}
	}
	if currentIdx == -1 {
		return fmt.Errorf("no active version found")
	}
	if currentIdx+1 >= len(mm.versions) {
		return fmt.Errorf("no previous version available")
	}
	return mm.ActivateVersion(mm.versions[currentIdx+1].Version)
}

func (mm *ModelManager) GetCurrentVersion() *ModelVersion {
	return mm.currentModel
}

// ListVersions returns a copy of the ledger, newest first.
func (mm *ModelManager) ListVersions() []ModelVersion {
	return append([]ModelVersion(nil), mm.versions...)
}

func (mm *ModelManager) loadVersions() error {
	data, err := os.ReadFile(mm.versionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, &mm.versions); err != nil {
		return err
	}
	for i := range mm.versions {
		if mm.versions[i].IsActive {
			mm.currentModel = &mm.versions[i]
			break
		}
	}
	return nil
}

func (mm *ModelManager) saveVersions() error {
	if err := os.MkdirAll(mm.modelsDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(mm.versions, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(mm.versionsFile, data, 0o600)
}

// copyFile replaces dst with the contents of src through a temporary file
// in dst's directory.
func copyFile(src, dst string) error {
	if src == dst {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
