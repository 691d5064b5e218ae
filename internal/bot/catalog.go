package bot

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog holds every fixed text the bot sends.
type Catalog struct {
	Welcome          string   `yaml:"welcome"`
	NamePrompt       string   `yaml:"name_prompt"`
	Greeting         string   `yaml:"greeting"`
	SuggestedActions []string `yaml:"suggested_actions"`
	NoAnswer         string   `yaml:"no_answer"`
	Unconfigured     string   `yaml:"unconfigured"`
	TimestampLayout  string   `yaml:"timestamp_layout"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	var c Catalog
	if err := yaml.Unmarshal(defaultCatalogYAML, &c); err != nil {
		panic("bot: embedded catalog is invalid: " + err.Error())
	}
	return &c
}

// LoadCatalog overlays the YAML file at path onto the default catalog. An
// empty path returns the default.
func LoadCatalog(path string) (*Catalog, error) {
	c := DefaultCatalog()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validating catalog: %w", err)
	}
	return c, nil
}

// Validate checks that every text is present.
func (c *Catalog) Validate() error {
	var errs []error
	for name, v := range map[string]string{
		"welcome":          c.Welcome,
		"name_prompt":      c.NamePrompt,
		"greeting":         c.Greeting,
		"no_answer":        c.NoAnswer,
		"unconfigured":     c.Unconfigured,
		"timestamp_layout": c.TimestampLayout,
	} {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s cannot be empty", name))
		}
	}
	if len(c.SuggestedActions) == 0 {
		errs = append(errs, errors.New("suggested_actions cannot be empty"))
	}
	return errors.Join(errs...)
}

// GreetingFor renders the greeting for name.
func (c *Catalog) GreetingFor(name string) string {
	return strings.ReplaceAll(c.Greeting, "{name}", name)
}
