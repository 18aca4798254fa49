package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/taskdesk/internal/task"
)

type ownersFile struct {
	Me     string       `yaml:"me"`
	Owners []task.Owner `yaml:"owners"`
}

// Directory is the owner list used to resolve "me" and to label groups.
type Directory struct {
	MeEmail string
	Owners  []task.Owner
}

// Name returns the display name of owner id, or id itself when unknown.
func (d Directory) Name(id string) string {
	for _, o := range d.Owners {
		if o.ID == id {
			return o.Name
		}
	}
	return id
}

// LoadOwners reads an owners YAML file. An empty path or a missing file
// yields an empty directory.
func LoadOwners(path string) (Directory, error) {
	if path == "" {
		return Directory{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Directory{}, nil
		}
		return Directory{}, fmt.Errorf("failed to read owners file %s: %w", path, err)
	}
	var f ownersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Directory{}, fmt.Errorf("failed to parse owners file %s: %w", path, err)
	}
	return Directory{MeEmail: f.Me, Owners: f.Owners}, nil
}
