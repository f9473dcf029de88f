package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
)

// supportedSchema is the range of config-file schema versions this build
// understands. Bumped only on a breaking change to the Tunables shape.
var supportedSchema = mustConstraint("^1.0.0")

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}

	return constraint
}

// Document is the on-disk shape: a schema version plus the tunables
// themselves, so a future breaking change can be detected before the
// tunables are even parsed into the wrong shape.
type Document struct {
	SchemaVersion string   `json:"schema_version"`
	Tunables      Tunables `json:"tunables"`
}

// Load reads and validates a configuration file from path, checking the
// schema version against supportedSchema before validating the tunables
// themselves.
func Load(path string) (Tunables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tunables{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes and validates a configuration document already read into
// memory (used directly by the hot-reload watcher, which receives file
// contents rather than a path to re-open).
func Parse(data []byte) (Tunables, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Tunables{}, fmt.Errorf("config: parse: %w", err)
	}

	v, err := semver.NewVersion(doc.SchemaVersion)
	if err != nil {
		return Tunables{}, fmt.Errorf("config: invalid schema_version %q: %w", doc.SchemaVersion, err)
	}

	if !supportedSchema.Check(v) {
		return Tunables{}, fmt.Errorf("config: schema_version %s is not compatible with %s", doc.SchemaVersion, supportedSchema)
	}

	if err := doc.Tunables.Validate(); err != nil {
		return Tunables{}, err
	}

	return doc.Tunables, nil
}
