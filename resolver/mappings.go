package resolver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ErrNoMappings is returned by LoadMappings when the mappings file does not exist.
var ErrNoMappings = errors.New("resolver: mappings file not found")

// Mappings is an ordered table from symbol prefix to candidate directories.
// Prefixes are consulted in the order they were first added.
type Mappings struct {
	order []string
	dirs  map[string][]string
}

// NewMappings creates an empty table.
func NewMappings() *Mappings {
	return &Mappings{dirs: map[string][]string{}}
}

// Set adds prefix or replaces its directories, keeping its position.
func (m *Mappings) Set(prefix string, dirs ...string) {
	if _, ok := m.dirs[prefix]; !ok {
		m.order = append(m.order, prefix)
	}
	m.dirs[prefix] = slices.Clone(dirs)
}

// Merge copies every prefix of other into m. A prefix present in both keeps
// its position in m and takes the directories from other.
func (m *Mappings) Merge(other *Mappings) {
	if other == nil {
		return
	}
	for _, prefix := range other.order {
		m.Set(prefix, other.dirs[prefix]...)
	}
}

// Prefixes returns the prefixes in lookup order.
func (m *Mappings) Prefixes() []string {
	return slices.Clone(m.order)
}

// Dirs returns the directories mapped to prefix.
func (m *Mappings) Dirs(prefix string) []string {
	return slices.Clone(m.dirs[prefix])
}

// Len returns the number of prefixes.
func (m *Mappings) Len() int {
	return len(m.order)
}

// Clone returns an independent copy.
func (m *Mappings) Clone() *Mappings {
	out := NewMappings()
	out.Merge(m)
	return out
}

// LoadMappings reads a YAML document mapping each prefix to a directory or a
// list of directories. Relative directories are resolved against the
// directory holding the file.
//
//	App\:
//	  - src
//	Acme\Lib\: vendor/acme/lib/src
func LoadMappings(fsys afero.Fs, path string) (*Mappings, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoMappings, path)
		}
		return nil, fmt.Errorf("reading mappings: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing mappings %s: %w", path, err)
	}

	m := NewMappings()
	if len(doc.Content) == 0 {
		return m, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parsing mappings %s: line %d: expected a mapping of prefix to directories", path, root.Line)
	}

	base := filepath.Dir(path)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]

		var dirs []string
		switch value.Kind {
		case yaml.ScalarNode:
			dirs = []string{value.Value}
		case yaml.SequenceNode:
			if err := value.Decode(&dirs); err != nil {
				return nil, fmt.Errorf("parsing mappings %s: prefix %q: %w", path, key.Value, err)
			}
		default:
			return nil, fmt.Errorf("parsing mappings %s: line %d: prefix %q must map to a directory or a list of directories", path, value.Line, key.Value)
		}

		for j, dir := range dirs {
			if !filepath.IsAbs(dir) {
				dirs[j] = filepath.Join(base, dir)
			}
		}
		m.Set(key.Value, dirs...)
	}
	return m, nil
}
