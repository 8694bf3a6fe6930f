package loaders

import (
	"path/filepath"
	"strings"

	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/pkg/errors"
)

var ErrUnsupported = errors.New("unsupported or unknown experiment format")

// NewEventSource opens the experiment at path, choosing the loader from the
// file extension.
func NewEventSource(path string) (types.EventSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".openss", ".db", ".sqlite":
		return NewSQLiteLoader(path)
	case ".yaml", ".yml":
		return NewYAMLLoader(path)
	default:
		return nil, errors.Wrapf(ErrUnsupported, "%q", path)
	}
}

// Opener opens experiments without caching.
var Opener types.Opener = types.OpenerFunc(NewEventSource)

// ExperimentName strips directories and known dataset suffixes from path.
func ExperimentName(path string) string {
	name := filepath.Base(path)
	for _, suffix := range []string{".openss", ".db", ".sqlite", ".yaml", ".yml"} {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}
