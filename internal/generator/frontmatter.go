package generator

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// frontMatter is the optional YAML header a PRD can carry ahead of its
// free-text body, grounded on the teacher's own front-matter parsing in
// cmd/bd/autoimport.go (yaml.Unmarshal into a small config-shaped
// struct). Astrotask generalizes it to generator input: a PRD author
// can pin a priority or hand-pick a title instead of leaving everything
// to the model.
type frontMatter struct {
	Title         string `yaml:"title"`
	PriorityScore int    `yaml:"priorityScore"`
}

// splitFrontMatter strips a leading "---\n...\n---\n" YAML block from
// content, if present, and parses it. Absent or malformed front matter
// is not an error: the whole input is treated as body text and meta is
// the zero value, since a PRD is not required to carry one.
func splitFrontMatter(content string) (meta frontMatter, body string) {
	const delim = "---"
	trimmed := strings.TrimLeft(content, "\n")
	if !strings.HasPrefix(trimmed, delim) {
		return frontMatter{}, content
	}
	rest := strings.TrimPrefix(trimmed, delim)
	end := strings.Index(rest, "\n"+delim)
	if end == -1 {
		return frontMatter{}, content
	}
	block := rest[:end]
	body = strings.TrimPrefix(rest[end+1+len(delim):], "\n")

	var m frontMatter
	if err := yaml.Unmarshal([]byte(block), &m); err != nil {
		return frontMatter{}, content
	}
	return m, body
}
