package degrade

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"aegis/internal/evidence"
)

// CatalogEntry is the static remediation record for one source.
type CatalogEntry struct {
	Action        string `yaml:"action" json:"action"`
	Cost          string `yaml:"cost" json:"cost"`
	PatientFacing string `yaml:"patient_facing" json:"patient_facing"`
}

// Catalog maps canonical source ids to remediation guidance. It is an
// external configuration collaborator; the embedded default covers the
// standard LMIC deployment.
type Catalog map[evidence.SourceID]CatalogEntry

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// DefaultCatalog parses the embedded catalog. It panics on a malformed embed,
// which can only happen at build time.
func DefaultCatalog() Catalog {
	c, err := parseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("degrade: embedded catalog invalid: %v", err))
	}
	return c
}

// LoadCatalog reads a site-specific catalog from a YAML file.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("degrade: read catalog: %w", err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("degrade: parse catalog: %w", err)
	}
	return c, nil
}

// nbaPriorities orders remediation items; lower is more urgent. Pathology
// first: staging is impossible without it.
var nbaPriorities = map[evidence.SourceID]int{
	evidence.SourcePathFoundation: 1,
	evidence.SourceCXRFoundation:  2,
	evidence.SourceHeAR:           3,
	evidence.SourceDermFoundation: 4,
	evidence.SourceTranscript:     5,
}

const defaultPriority = 10

func priorityFor(src evidence.SourceID) int {
	if p, ok := nbaPriorities[evidence.Canonical(src)]; ok {
		return p
	}
	return defaultPriority
}
