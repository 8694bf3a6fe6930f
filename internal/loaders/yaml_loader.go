package loaders

import (
	"os"

	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// NewYAMLLoader reads a whole experiment from a YAML document.
func NewYAMLLoader(path string) (*Memory, error) {
	logger := logutil.GetLogger()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading experiment")
	}
	exp, err := ParseExperiment(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if exp.Name == "" {
		exp.Name = path
	}
	m, err := NewMemory(exp)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded yaml experiment",
		zap.String("path", path),
		zap.Int("threads", len(exp.Threads)),
		zap.Int("counters", len(exp.Counters)))
	return m, nil
}

func ParseExperiment(data []byte) (*Experiment, error) {
	var exp Experiment
	if err := yaml.Unmarshal(data, &exp); err != nil {
		return nil, err
	}
	return &exp, nil
}

func MarshalExperiment(exp *Experiment) ([]byte, error) {
	return yaml.Marshal(exp)
}
