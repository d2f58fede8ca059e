package geometry

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed cities.yaml
var citiesYAML []byte

// CityCatalog is the curated city-to-zips map.
type CityCatalog struct {
	Cities  map[string][]string `yaml:"cities"`
	Aliases map[string]string   `yaml:"aliases"`
}

// LoadCityCatalog parses a catalog document.
func LoadCityCatalog(data []byte) (*CityCatalog, error) {
	var c CityCatalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse city catalog: %w", err)
	}
	norm := make(map[string][]string, len(c.Cities))
	for city, zips := range c.Cities {
		norm[normCity(city)] = zips
	}
	c.Cities = norm
	aliases := make(map[string]string, len(c.Aliases))
	for a, city := range c.Aliases {
		aliases[normCity(a)] = normCity(city)
	}
	c.Aliases = aliases
	return &c, nil
}

// DefaultCityCatalog returns the embedded catalog.
func DefaultCityCatalog() *CityCatalog {
	c, err := LoadCityCatalog(citiesYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Canonical maps a city name or alias to its catalog key.
func (c *CityCatalog) Canonical(city string) string {
	key := normCity(city)
	if alias, ok := c.Aliases[key]; ok {
		return alias
	}
	return key
}

// Zips returns the curated zips for a city, if any.
func (c *CityCatalog) Zips(city string) ([]string, bool) {
	zips, ok := c.Cities[c.Canonical(city)]
	if !ok {
		return nil, false
	}
	return append([]string(nil), zips...), true
}

// HasZip reports whether zip belongs to city in the catalog.
func (c *CityCatalog) HasZip(city, zip string) bool {
	zips, _ := c.Zips(city)
	for _, z := range zips {
		if z == zip {
			return true
		}
	}
	return false
}

// Names returns the catalog city names, sorted.
func (c *CityCatalog) Names() []string {
	names := make([]string, 0, len(c.Cities))
	for n := range c.Cities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func normCity(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	s = strings.TrimSuffix(s, ", az")
	return strings.TrimSuffix(s, " az")
}
