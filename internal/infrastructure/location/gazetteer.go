package location

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/platewise/platewise-api/internal/domain/repository"
	"gopkg.in/yaml.v3"
)

//go:embed gazetteer.yaml
var defaultGazetteer []byte

// Gazetteer is an in-memory city and country reference table.
type Gazetteer struct {
	countryByAlias map[string]string
	citiesToISO    map[string][]string
}

var _ repository.Gazetteer = (*Gazetteer)(nil)

type gazetteerFile struct {
	Countries map[string][]string `yaml:"countries"`
	Cities    map[string][]string `yaml:"cities"`
}

// LoadGazetteer reads the table from path, or the embedded default when path is empty.
func LoadGazetteer(path string) (*Gazetteer, error) {
	data := defaultGazetteer
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read gazetteer %s: %w", path, err)
		}
		data = b
	}
	return ParseGazetteer(data)
}

// ParseGazetteer decodes a YAML gazetteer.
func ParseGazetteer(data []byte) (*Gazetteer, error) {
	var raw gazetteerFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse gazetteer: %w", err)
	}
	g := &Gazetteer{
		countryByAlias: make(map[string]string),
		citiesToISO:    make(map[string][]string, len(raw.Cities)),
	}
	for iso, aliases := range raw.Countries {
		code := strings.ToUpper(strings.TrimSpace(iso))
		for _, a := range aliases {
			g.countryByAlias[normalize(a)] = code
		}
	}
	for city, codes := range raw.Cities {
		norm := make([]string, 0, len(codes))
		for _, c := range codes {
			norm = append(norm, strings.ToUpper(strings.TrimSpace(c)))
		}
		sort.Strings(norm)
		g.citiesToISO[normalize(city)] = norm
	}
	return g, nil
}

// CountriesForCity returns every country code with a city of that name.
func (g *Gazetteer) CountriesForCity(city string) []string {
	return g.citiesToISO[normalize(city)]
}

// CountryCode resolves a country name or code, "" if unknown.
func (g *Gazetteer) CountryCode(text string) string {
	return g.countryByAlias[normalize(text)]
}

// IsCity reports whether the name is a known city.
func (g *Gazetteer) IsCity(name string) bool {
	_, ok := g.citiesToISO[normalize(name)]
	return ok
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}
