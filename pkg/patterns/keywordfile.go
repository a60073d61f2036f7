package patterns

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// keywordFile is the on-disk shape of an operator-supplied keyword list:
//
//	hindi:
//	  - खाता सत्यापन
//	english:
//	  - gift card
type keywordFile map[string][]string

// LoadKeywordFile merges extra suspicious keywords from a YAML file into the
// registry. Map keys are language display names or BCP-47 tags; unknown keys
// fold into the English (always-checked) list.
func (r *Registry) LoadKeywordFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read keyword file: %w", err)
	}

	var kf keywordFile
	if err := yaml.Unmarshal(raw, &kf); err != nil {
		return fmt.Errorf("parse keyword file %s: %w", path, err)
	}

	for name, words := range kf {
		r.AddKeywords(ResolveLanguage(name), words)
	}
	return nil
}
