// Package extract pulls the transcript, tags and image reference out of an
// archived strip page.
package extract

import (
	"strings"

	"github.com/JakeFAU/comic-archiver/internal/comics"
)

// Extractor reads strip metadata from page bytes.
type Extractor struct {
	parse Parser
}

// New returns an Extractor backed by goquery and DefaultLayout.
func New() *Extractor {
	return NewWithParser(GoqueryParser(DefaultLayout))
}

// NewWithParser returns an Extractor using a custom document parser.
func NewWithParser(parse Parser) *Extractor {
	return &Extractor{parse: parse}
}

// Extract never fails on missing elements: absent pieces come back empty and
// only an unparseable document is an error.
func (e *Extractor) Extract(page []byte) (comics.Metadata, error) {
	root, err := e.parse(page)
	if err != nil {
		return comics.Metadata{}, err
	}

	var meta comics.Metadata
	if container, ok := root.Find(RoleMetadata); ok {
		meta.HasMetadata = true
		meta.Tags = tags(container)
		if p, ok := container.Find(RoleTranscript); ok {
			meta.Transcript = strings.TrimSpace(p.Text())
		}
	}
	if img, ok := root.Find(RoleImage); ok {
		if src, ok := img.Attr("src"); ok {
			meta.AssetRef = strings.TrimSpace(src)
		}
	}
	return meta, nil
}

func tags(container Node) []string {
	links := container.FindAll(RoleTagLinks)
	out := make([]string, 0, len(links))
	for _, link := range links {
		if name := comics.NormalizeTag(link.Text()); name != "" {
			out = append(out, name)
		}
	}
	return out
}
