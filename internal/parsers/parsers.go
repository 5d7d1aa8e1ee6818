// Package parsers turns declared dependency files into pinned version
// maps.
package parsers

import (
	"fmt"
	"regexp"
	"strings"
)

// Parser extracts {packageName: pinnedVersion} from the lines of a
// dependency declaration file. Lines that cannot be resolved to an
// exact pin land in the missing list.
type Parser interface {
	Name() string
	Title() string
	Parse(lines []string) (map[string]string, []string)
}

var registry = []Parser{
	PipRequirementsParser{},
}

// Get returns the parser registered under the given name.
func Get(name string) (Parser, error) {
	for _, p := range registry {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("parser %s does not exist", name)
}

// Choice is a (name, title) pair for selection UIs.
type Choice struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Choices lists all registered parsers.
func Choices() []Choice {
	out := make([]Choice, 0, len(registry))
	for _, p := range registry {
		out = append(out, Choice{Name: p.Name(), Title: p.Title()})
	}
	return out
}

// requirementLine matches "name<op>version" with optional extras,
// stopping before comments and environment markers.
var requirementLine = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(?:\[[^\]]*\])?\s*(==|>=|<=|>|<|!=|~=)\s*([^\s;#]+)`)

// PipRequirementsParser parses pip requirements.txt lines. Only exact
// "==" pins produce entries; looser specifiers are reported as missing
// by project name, unparseable lines as the raw line.
type PipRequirementsParser struct{}

func (PipRequirementsParser) Name() string  { return "pip_requirements" }
func (PipRequirementsParser) Title() string { return "Pip Requirements" }

func (PipRequirementsParser) Parse(lines []string) (map[string]string, []string) {
	packages := map[string]string{}
	var missing []string

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Option lines (-r, -e, --index-url) carry no pin.
		if strings.HasPrefix(line, "-") {
			missing = append(missing, raw)
			continue
		}

		m := requirementLine.FindStringSubmatch(line)
		if m == nil {
			missing = append(missing, raw)
			continue
		}
		name, op, ver := m[1], m[2], m[3]
		if op != "==" {
			missing = append(missing, name)
			continue
		}
		packages[name] = ver
	}

	return packages, missing
}
