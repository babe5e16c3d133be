package classifier

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/audiolibrelab/sleepstage/internal/errs"
	"github.com/audiolibrelab/sleepstage/internal/recording"
	"github.com/audiolibrelab/sleepstage/internal/staging"
)

const (
	// AutoRef selects a model by naming convention.
	AutoRef        = "auto"
	DefaultVersion = "0.1.0"
)

var extensions = []string{".yaml", ".yml", ".json"}

// ConventionResolver finds models named after the channel roles and
// metadata a pipeline offers, e.g. clf_eeg+eog+demo_lin_0.1.0.yaml, in
// Directory. References other than "auto" are file paths.
type ConventionResolver struct {
	Directory string
	Version   string
}

// ModelName is the file name, without extension, of the model matching req.
func ModelName(req staging.ModelRequest, version string) string {
	if version == "" {
		version = DefaultVersion
	}
	has := make(map[recording.Role]bool, len(req.Roles))
	for _, r := range req.Roles {
		has[r] = true
	}
	parts := []string{}
	for _, r := range recording.Roles() {
		if has[r] {
			parts = append(parts, string(r))
		}
	}
	if req.HasMetadata {
		parts = append(parts, "demo")
	}
	return "clf_" + strings.Join(parts, "+") + "_lin_" + version
}

func (r *ConventionResolver) Resolve(ref string, req staging.ModelRequest) (staging.FeatureClassifier, error) {
	path, err := r.locate(ref, req)
	if err != nil {
		return nil, err
	}
	slog.Debug("Loading model", "model", path)
	return Load(path)
}

func (r *ConventionResolver) locate(ref string, req staging.ModelRequest) (string, error) {
	if ref != "" && ref != AutoRef {
		return ref, nil
	}
	name := ModelName(req, r.Version)
	for _, ext := range extensions {
		candidate := filepath.Join(r.Directory, name+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", &errs.ModelNotFoundError{Path: filepath.Join(r.Directory, name+extensions[0])}
}
