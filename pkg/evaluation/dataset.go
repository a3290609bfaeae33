package evaluation

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed dataset.yaml
var datasetYAML []byte

type Dataset struct {
	// Drugs is the default bulk load list.
	Drugs   []string      `yaml:"drugs"`
	Queries []DrugQueries `yaml:"queries"`
}

type DrugQueries struct {
	Drug      string   `yaml:"drug"`
	Questions []string `yaml:"questions"`
}

// Query is one benchmark question about a drug.
type Query struct {
	Drug     string `json:"drug"`
	Question string `json:"question"`
}

// LoadDataset parses the embedded benchmark dataset.
func LoadDataset() (*Dataset, error) {
	return ParseDataset(datasetYAML)
}

func ParseDataset(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse evaluation dataset: %w", err)
	}
	return &ds, nil
}

// Flatten returns every question in dataset order.
func (d *Dataset) Flatten() []Query {
	var queries []Query
	for _, dq := range d.Queries {
		for _, q := range dq.Questions {
			queries = append(queries, Query{Drug: dq.Drug, Question: q})
		}
	}
	return queries
}
