package ecosystem

import (
	"path/filepath"
	"sort"

	"github.com/cywhale/woa23/pkg/errors"
)

// Ecosystem is a loaded ecosystem document: the list of process specs an
// operator hands to the supervisor. Values returned from it are copies.
type Ecosystem struct {
	apps   []ProcessSpec
	source string
}

// document is the on-disk shape
type document struct {
	Apps []ProcessSpec `yaml:"apps" json:"apps"`
}

// New builds an Ecosystem from literal specs, applying defaults and validating them
func New(apps ...ProcessSpec) (*Ecosystem, error) {
	eco := &Ecosystem{apps: make([]ProcessSpec, 0, len(apps))}
	for _, app := range apps {
		app = app.Clone()
		app.applyDefaults()
		eco.apps = append(eco.apps, app)
	}
	if err := eco.Validate(); err != nil {
		return nil, err
	}
	return eco, nil
}

// Apps returns copies of every process spec in document order
func (e *Ecosystem) Apps() []ProcessSpec {
	apps := make([]ProcessSpec, 0, len(e.apps))
	for _, app := range e.apps {
		apps = append(apps, app.Clone())
	}
	return apps
}

func (e *Ecosystem) Len() int {
	return len(e.apps)
}

func (e *Ecosystem) Names() []string {
	names := make([]string, 0, len(e.apps))
	for _, app := range e.apps {
		names = append(names, app.Name)
	}
	return names
}

// Find returns the process spec with the given name
func (e *Ecosystem) Find(name string) (ProcessSpec, error) {
	for _, app := range e.apps {
		if app.Name == name {
			return app.Clone(), nil
		}
	}
	return ProcessSpec{}, errors.NewNotFoundError("app not found", nil).
		WithContext("app", name).
		WithContext("available", e.Names())
}

// Select returns the named app, or the only app when name is empty
func (e *Ecosystem) Select(name string) (ProcessSpec, error) {
	if name != "" {
		return e.Find(name)
	}
	if len(e.apps) != 1 {
		return ProcessSpec{}, errors.NewValidationError("app name is required when the ecosystem defines several apps", nil).
			WithContext("available", e.Names())
	}
	return e.apps[0].Clone(), nil
}

// Source is the file the ecosystem was loaded from, empty for in-memory documents
func (e *Ecosystem) Source() string {
	return e.source
}

// BaseDir is the directory relative paths in the document resolve against
func (e *Ecosystem) BaseDir() string {
	if e.source == "" {
		return "."
	}
	return filepath.Dir(e.source)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
