// Package stages provides the construction-stage catalog: per-stage
// display names, minimum photo counts, and measurement requirements.
//
// The catalog ships embedded in the binary so stage metadata is available
// offline; the remote schema remains the authority on which codes exist.
package stages

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/cometa-fiber/fieldsync/internal/model"
)

//go:embed stages.toml
var catalogTOML []byte

// Def describes one construction stage.
type Def struct {
	Code                 model.StageCode `toml:"code"`
	Name                 string          `toml:"name"`
	Order                int             `toml:"order"`
	RequiresPhotosMin    int             `toml:"requires_photos_min"`
	RequiresMeasurements bool            `toml:"requires_measurements"`
	RequiresDensity      bool            `toml:"requires_density"`
}

type catalogFile struct {
	Stages []Def `toml:"stages"`
}

var (
	loadOnce sync.Once
	loadErr  error
	byCode   map[model.StageCode]Def
	ordered  []Def
)

func load() {
	var f catalogFile
	if _, err := toml.Decode(string(catalogTOML), &f); err != nil {
		loadErr = fmt.Errorf("failed to decode stage catalog: %w", err)
		return
	}
	byCode = make(map[model.StageCode]Def, len(f.Stages))
	for _, d := range f.Stages {
		byCode[d.Code] = d
	}
	ordered = f.Stages
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })
}

// Catalog returns all stage definitions in installation order.
func Catalog() ([]Def, error) {
	loadOnce.Do(load)
	return ordered, loadErr
}

// Get returns the definition for a stage code.
func Get(code model.StageCode) (Def, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return Def{}, loadErr
	}
	d, ok := byCode[code]
	if !ok {
		return Def{}, fmt.Errorf("unknown stage code %q", code)
	}
	return d, nil
}

// Valid reports whether the code exists in the catalog.
func Valid(code model.StageCode) bool {
	_, err := Get(code)
	return err == nil
}
