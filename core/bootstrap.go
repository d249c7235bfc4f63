package core

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// BootstrapRecord is one account the operator seeds before the API serves.
type BootstrapRecord struct {
	Key  string `yaml:"key" json:"key"`
	Name string `yaml:"name" json:"name"`
}

type bootstrapDocument struct {
	Accounts []BootstrapRecord `yaml:"accounts" json:"accounts"`
}

// LoadBootstrapRecords reads a YAML or JSON document of the form
// {accounts: [{key, name}]}.
func LoadBootstrapRecords(r io.Reader) ([]BootstrapRecord, error) {
	if r == nil {
		return nil, fmt.Errorf("core: bootstrap reader is nil")
	}
	var doc bootstrapDocument
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if err == io.EOF {
			return []BootstrapRecord{}, nil
		}
		return nil, fmt.Errorf("core: decode bootstrap records: %w", err)
	}
	records := make([]BootstrapRecord, 0, len(doc.Accounts))
	for i, record := range doc.Accounts {
		record.Key = strings.TrimSpace(record.Key)
		record.Name = strings.TrimSpace(record.Name)
		if err := ValidateAPIKey(record.Key); err != nil {
			return nil, fmt.Errorf("core: bootstrap record %d: %w", i, err)
		}
		if record.Name == "" {
			return nil, fmt.Errorf("core: bootstrap record %d: %w: name is required", i, ErrInvalidAccountName)
		}
		records = append(records, record)
	}
	return records, nil
}

func LoadBootstrapFile(path string) ([]BootstrapRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("core: open bootstrap file: %w", err)
	}
	defer file.Close()
	return LoadBootstrapRecords(file)
}
