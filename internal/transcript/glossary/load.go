package glossary

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// termsFile mirrors the YAML glossary file layout: a flat list of in-game
// vocabulary terms under a single "terms" key.
type termsFile struct {
	Terms []string `yaml:"terms"`
}

// LoadTerms reads a YAML glossary file from path and returns its term list.
// Unknown fields are rejected so typos in hand-edited glossaries fail loudly.
func LoadTerms(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("glossary: open %q: %w", path, err)
	}
	defer f.Close()
	return LoadTermsFromReader(f)
}

// LoadTermsFromReader decodes a YAML glossary from r.
func LoadTermsFromReader(r io.Reader) ([]string, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var tf termsFile
	if err := dec.Decode(&tf); err != nil {
		return nil, fmt.Errorf("glossary: decode: %w", err)
	}
	for i, t := range tf.Terms {
		if t == "" {
			return nil, fmt.Errorf("glossary: terms[%d] must not be empty", i)
		}
	}
	return tf.Terms, nil
}
