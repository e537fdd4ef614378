// Package rulebook loads the board size and fleet a node plays with.
package rulebook

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/park285/sealed-battleship/internal/battleship"
)

//go:embed standard.yaml
var standardYAML []byte

type Ship struct {
	Name   string `yaml:"name" json:"name"`
	Length int    `yaml:"length" json:"length"`
}

// Book is a named rule set.
type Book struct {
	Name      string `yaml:"name" json:"name"`
	BoardSize int    `yaml:"board_size" json:"board_size"`
	Ships     []Ship `yaml:"ships" json:"ships"`
}

// Rules converts the book to engine parameters.
func (b Book) Rules() battleship.Rules {
	fleet := make([]int, len(b.Ships))
	for i, s := range b.Ships {
		fleet[i] = s.Length
	}
	return battleship.Rules{BoardSize: b.BoardSize, Fleet: fleet}
}

// Standard returns the embedded 10x10 rule set.
func Standard() Book {
	b, err := Parse(standardYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rulebook: %v", err))
	}
	return b
}

// Load reads path, or returns the standard book when path is empty.
func Load(path string) (Book, error) {
	if strings.TrimSpace(path) == "" {
		return Standard(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Book{}, fmt.Errorf("read rules: %w", err)
	}
	b, err := Parse(raw)
	if err != nil {
		return Book{}, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Parse decodes and validates a YAML rule set. Unknown fields are rejected.
func Parse(raw []byte) (Book, error) {
	var b Book
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return Book{}, fmt.Errorf("parse rules: %w", err)
	}
	if strings.TrimSpace(b.Name) == "" {
		b.Name = "custom"
	}
	for i, s := range b.Ships {
		if strings.TrimSpace(s.Name) == "" {
			b.Ships[i].Name = fmt.Sprintf("ship%d", i+1)
		}
	}
	if err := b.Rules().Validate(); err != nil {
		return Book{}, err
	}
	return b, nil
}
