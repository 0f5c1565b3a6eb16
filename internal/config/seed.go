package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedPatient is one fixture entry of the seed file.
type SeedPatient struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type seedFile struct {
	Patients []SeedPatient `yaml:"patients"`
}

// LoadSeedPatients reads a YAML document of the form
//
//	patients:
//	  - id: patient-1
//	    name: John Doe
func LoadSeedPatients(path string) ([]SeedPatient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var doc seedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(doc.Patients))
	for i, p := range doc.Patients {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("seed file %s: entry %d needs id and name", path, i)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("seed file %s: duplicate id %q", path, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return doc.Patients, nil
}
