package form

import (
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Seed is a sample template shipped with the binary.
type Seed struct {
	Slug        string `yaml:"slug"`
	NewTemplate `yaml:",inline"`
}

// LoadSeeds decodes every YAML file under dir, sorted by file name.
func LoadSeeds(fsys fs.FS, dir string) ([]Seed, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading seeds directory")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var seeds []Seed
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", name)
		}

		var seed Seed
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return nil, errors.Wrapf(err, "decoding %s", name)
		}
		if seed.Slug == "" {
			seed.Slug = strings.TrimSuffix(strings.TrimSuffix(name, ".yml"), ".yaml")
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}
