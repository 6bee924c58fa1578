// Package docs serves the embedded documentation corpus: PQL guides, data
// preparation guides and query examples, exposed as kumo:// MCP resources.
package docs

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/adrg/frontmatter"
)

//go:embed content/*.md
var contentFS embed.FS

// resourceMatter is the YAML frontmatter expected at the top of every
// embedded documentation file.
type resourceMatter struct {
	URI         string `yaml:"uri"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Resource is one documentation page with its MCP resource identity.
type Resource struct {
	URI         string
	Name        string
	Description string
	Content     string
}

// Load parses every embedded documentation file. Files without valid
// frontmatter or with a duplicate URI are a build defect, not a runtime
// condition, so Load fails loudly.
func Load() ([]Resource, error) {
	entries, err := fs.ReadDir(contentFS, "content")
	if err != nil {
		return nil, fmt.Errorf("reading embedded docs: %w", err)
	}

	seen := make(map[string]string)
	resources := make([]Resource, 0, len(entries))
	for _, entry := range entries {
		raw, err := contentFS.ReadFile("content/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading embedded doc %s: %w", entry.Name(), err)
		}

		var matter resourceMatter
		body, err := frontmatter.Parse(bytes.NewReader(raw), &matter)
		if err != nil {
			return nil, fmt.Errorf("parsing frontmatter of %s: %w", entry.Name(), err)
		}
		if matter.URI == "" || matter.Name == "" || matter.Description == "" {
			return nil, fmt.Errorf("doc %s is missing uri, name or description", entry.Name())
		}
		if !strings.HasPrefix(matter.URI, "kumo://") {
			return nil, fmt.Errorf("doc %s has non-kumo URI %q", entry.Name(), matter.URI)
		}
		if prev, dup := seen[matter.URI]; dup {
			return nil, fmt.Errorf("docs %s and %s share URI %q", prev, entry.Name(), matter.URI)
		}
		seen[matter.URI] = entry.Name()

		resources = append(resources, Resource{
			URI:         matter.URI,
			Name:        matter.Name,
			Description: matter.Description,
			Content:     strings.TrimSpace(string(body)) + "\n",
		})
	}

	sort.Slice(resources, func(i, j int) bool { return resources[i].URI < resources[j].URI })
	return resources, nil
}

// Find returns the resource with the given URI.
func Find(resources []Resource, uri string) (*Resource, bool) {
	for i := range resources {
		if resources[i].URI == uri {
			return &resources[i], true
		}
	}
	return nil, false
}

// URIs lists all resource URIs in sorted order.
func URIs(resources []Resource) []string {
	uris := make([]string, len(resources))
	for i, r := range resources {
		uris[i] = r.URI
	}
	return uris
}
