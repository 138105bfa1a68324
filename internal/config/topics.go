package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/deal-radar/internal/model"
)

type topicsFile struct {
	Topics []model.Topic `yaml:"topics"`
}

// LoadTopics reads the topics file. Topics without queries are rejected
// rather than silently producing an empty scan.
func LoadTopics(path string) ([]model.Topic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read topics file %s", path)
	}

	var f topicsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse topics file %s", path)
	}
	if len(f.Topics) == 0 {
		return nil, eris.Errorf("config: no topics in %s", path)
	}

	for _, t := range f.Topics {
		if t.Name == "" {
			return nil, eris.Errorf("config: topic without name in %s", path)
		}
		if len(t.Queries) == 0 {
			return nil, eris.Errorf("config: topic %q has no queries", t.Name)
		}
	}
	return f.Topics, nil
}
