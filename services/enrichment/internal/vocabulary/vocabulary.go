// Package vocabulary holds the canonical metro, category, experience and skill
// tables. A Vocabulary is loaded once at start-up and treated as read-only.
package vocabulary

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

const OtherSkillCategory = "Other"

type Metro struct {
	Name    string   `yaml:"name"`
	Slug    string   `yaml:"slug"`
	Aliases []string `yaml:"aliases"`
}

type Remote struct {
	Remote []string `yaml:"remote"`
	Hybrid []string `yaml:"hybrid"`
}

type Experience struct {
	Default string   `yaml:"default"`
	Senior  []string `yaml:"senior"`
	Entry   []string `yaml:"entry"`
}

type CategoryRule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

type Categories struct {
	Default string         `yaml:"default"`
	Rules   []CategoryRule `yaml:"rules"`
}

type Skill struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type SkillCategory struct {
	Name   string  `yaml:"name"`
	Skills []Skill `yaml:"skills"`
}

type Bucket struct {
	Key     string `yaml:"key"`
	Slug    string `yaml:"slug"`
	Display string `yaml:"display"`
}

type Benchmarks struct {
	Roles      []Bucket `yaml:"roles"`
	Experience []Bucket `yaml:"experience"`
}

type Vocabulary struct {
	Metros          []Metro         `yaml:"metros"`
	Remote          Remote          `yaml:"remote"`
	Experience      Experience      `yaml:"experience"`
	Categories      Categories      `yaml:"categories"`
	SkillCategories []SkillCategory `yaml:"skill_categories"`
	Benchmarks      Benchmarks      `yaml:"benchmarks"`

	skillCategory map[string]string
}

// Default returns the vocabulary compiled into the binary.
func Default() (*Vocabulary, error) {
	return Parse(defaultVocabulary)
}

// Load reads a vocabulary file, or the compiled-in default when path is empty.
func Load(path string) (*Vocabulary, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NotFound(fmt.Sprintf("vocabulary file %s", path), err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, errors.InvalidInput("decoding vocabulary", err)
	}
	if err := v.validate(); err != nil {
		return nil, err
	}

	v.skillCategory = make(map[string]string)
	for _, category := range v.SkillCategories {
		for _, skill := range category.Skills {
			v.skillCategory[skill.Name] = category.Name
		}
	}
	return &v, nil
}

func (v *Vocabulary) validate() error {
	switch {
	case len(v.Metros) == 0:
		return errors.InvalidInput("vocabulary has no metros", nil)
	case v.Categories.Default == "":
		return errors.InvalidInput("vocabulary has no default category", nil)
	case v.Experience.Default == "":
		return errors.InvalidInput("vocabulary has no default experience level", nil)
	case len(v.SkillCategories) == 0:
		return errors.InvalidInput("vocabulary has no skills", nil)
	}

	for _, rule := range v.Categories.Rules {
		for _, keyword := range rule.Keywords {
			if strings.TrimSpace(keyword) == "" {
				return errors.InvalidInput(fmt.Sprintf("empty keyword in category %q", rule.Category), nil)
			}
		}
	}
	for _, category := range v.SkillCategories {
		for _, skill := range category.Skills {
			if len(skill.Keywords) == 0 {
				return errors.InvalidInput(fmt.Sprintf("skill %q has no keywords", skill.Name), nil)
			}
		}
	}
	return nil
}

// SkillCategoryOf returns the category of a canonical skill, or "Other".
func (v *Vocabulary) SkillCategoryOf(skill string) string {
	if category, ok := v.skillCategory[skill]; ok {
		return category
	}
	return OtherSkillCategory
}

// SkillCategoryNames returns the configured skill categories in file order.
func (v *Vocabulary) SkillCategoryNames() []string {
	names := make([]string, len(v.SkillCategories))
	for i, category := range v.SkillCategories {
		names[i] = category.Name
	}
	return names
}
