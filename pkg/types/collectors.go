package types

const ValueTypeDouble = "double"

// MetricDesc describes one metric offered by a collector.
type MetricDesc struct {
	ID        string `yaml:"id"`
	ShortName string `yaml:"short_name"`
	ValueType string `yaml:"value_type"`
}

type Collector struct {
	ID      string       `yaml:"id"`
	Metrics []MetricDesc `yaml:"metrics"`
}

// HasCollector reports whether a collector with the given id is present.
func HasCollector(collectors []Collector, id string) bool {
	for _, c := range collectors {
		if c.ID == id {
			return true
		}
	}
	return false
}
