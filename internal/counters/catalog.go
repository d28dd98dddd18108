package counters

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"gopkg.in/yaml.v3"
)

// DefaultVendor is the catalog section used when the CPU vendor has no
// section of its own.
const DefaultVendor = "default"

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog holds interval bounds per CPU vendor.
type Catalog struct {
	Vendors map[string]map[ID]SourceInfo
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := parseCatalog(defaultCatalog)
	if err != nil {
		panic("counters: embedded catalog is invalid: " + err.Error())
	}
	return c
}

// LoadCatalog reads a catalog from path. Vendors missing from the file fall
// back to the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading counter catalog: %w", err)
	}
	c, err := parseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parsing counter catalog %s: %w", path, err)
	}
	for vendor, sources := range DefaultCatalog().Vendors {
		if _, ok := c.Vendors[vendor]; !ok {
			c.Vendors[vendor] = sources
		}
	}
	return c, nil
}

func parseCatalog(data []byte) (*Catalog, error) {
	var vendors map[string]map[ID]SourceInfo
	if err := yaml.Unmarshal(data, &vendors); err != nil {
		return nil, err
	}
	if vendors == nil {
		vendors = map[string]map[ID]SourceInfo{}
	}
	for vendor, sources := range vendors {
		for id, src := range sources {
			if !id.Valid() {
				return nil, fmt.Errorf("vendor %s: %w: %q", vendor, ErrUnknownCounter, id)
			}
			if src.Min > src.Max {
				return nil, fmt.Errorf("vendor %s: counter %s: min %d exceeds max %d", vendor, id, src.Min, src.Max)
			}
		}
	}
	return &Catalog{Vendors: vendors}, nil
}

// Sources returns the interval bounds for vendor, falling back to the
// default section.
func (c *Catalog) Sources(vendor string) map[ID]SourceInfo {
	if c == nil {
		return nil
	}
	if s, ok := c.Vendors[vendor]; ok {
		return s
	}
	return c.Vendors[DefaultVendor]
}

// Lookup returns the bounds for one counter on vendor.
func (c *Catalog) Lookup(vendor string, id ID) (SourceInfo, bool) {
	s, ok := c.Sources(vendor)[id]
	return s, ok
}

// DetectVendor reports the vendor id of the first CPU, or DefaultVendor
// when it cannot be determined.
func DetectVendor() string {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		return DefaultVendor
	}
	v := strings.TrimSpace(infos[0].VendorID)
	if v == "" {
		return DefaultVendor
	}
	return v
}

// DetectModel reports the model name of the first CPU.
func DetectModel() string {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		return ""
	}
	return strings.TrimSpace(infos[0].ModelName)
}
