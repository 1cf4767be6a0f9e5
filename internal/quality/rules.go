package quality

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// Rules configures the deterministic checks.
type Rules struct {
	Tone      ToneRules      `yaml:"tone"`
	Structure StructureRules `yaml:"structure"`
	Accuracy  AccuracyRules  `yaml:"accuracy"`
	Penalties Penalties      `yaml:"penalties"`
}

// ToneRules lists phrases that read as presumptuous, commanding, or too casual.
type ToneRules struct {
	Deny []string `yaml:"deny"`
}

// StructureRules lists accepted greeting and closing words and how far from
// the top or bottom of the body they may appear, in characters.
type StructureRules struct {
	Greetings      []string `yaml:"greetings"`
	Closings       []string `yaml:"closings"`
	GreetingWindow int      `yaml:"greeting_window"`
	ClosingWindow  int      `yaml:"closing_window"`
}

// AccuracyRules configures the fact cross-check.
type AccuracyRules struct {
	RequireOrgName  bool     `yaml:"require_org_name"`
	ProgramKeywords []string `yaml:"program_keywords"`
}

// Penalties is the score deducted per violation of each kind.
type Penalties struct {
	Tone      int `yaml:"tone"`
	Accuracy  int `yaml:"accuracy"`
	Structure int `yaml:"structure"`
	Length    int `yaml:"length"`
}

// DefaultRules returns the built-in rules.
func DefaultRules() Rules {
	var r Rules
	if err := yaml.Unmarshal(defaultRulesYAML, &r); err != nil {
		panic("quality: embedded rules are invalid: " + err.Error())
	}
	return r
}

// LoadRules reads a rules file layered over the defaults. An empty path
// returns the defaults.
func LoadRules(path string) (Rules, error) {
	r := DefaultRules()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, eris.Wrapf(err, "quality: read rules %s", path)
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, eris.Wrapf(err, "quality: parse rules %s", path)
	}
	if err := r.validate(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

func (r Rules) validate() error {
	p := r.Penalties
	if p.Tone < 0 || p.Accuracy < 0 || p.Structure < 0 || p.Length < 0 {
		return eris.New("quality: penalties must be >= 0")
	}
	if r.Structure.GreetingWindow <= 0 || r.Structure.ClosingWindow <= 0 {
		return eris.New("quality: greeting_window and closing_window must be > 0")
	}
	return nil
}
