package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stripPage = `<html><body>
<div class="comic-item">
  <img class="img-comic" src="/dyn/str_strip/000000000/00000001.strip.gif" alt="strip">
</div>
<div class="meta-info-container">
  <p class="small comic-tags">Tags
    <a href="/search_results?terms=work">#work</a>
    <a href="/search_results?terms=wally"> #wally </a>
    <a href="#"> </a>
  </p>
  <div class="comic-transcript">
    <p>  Dilbert talks to Wally about TPS reports.  </p>
    <p>Second paragraph is ignored.</p>
  </div>
</div>
</body></html>`

func TestExtractFullPage(t *testing.T) {
	t.Parallel()

	meta, err := New().Extract([]byte(stripPage))
	require.NoError(t, err)

	assert.True(t, meta.HasMetadata)
	assert.Equal(t, "Dilbert talks to Wally about TPS reports.", meta.Transcript)
	assert.Equal(t, []string{"work", "wally"}, meta.Tags)
	assert.Equal(t, "/dyn/str_strip/000000000/00000001.strip.gif", meta.AssetRef)
}

func TestExtractWithoutMetadataContainer(t *testing.T) {
	t.Parallel()

	page := `<html><body><img class="img-comic" src="https://web.archive.org/web/2009im_/x.gif"></body></html>`
	meta, err := New().Extract([]byte(page))
	require.NoError(t, err)

	assert.False(t, meta.HasMetadata)
	assert.Empty(t, meta.Transcript)
	assert.Empty(t, meta.Tags)
	assert.Equal(t, "https://web.archive.org/web/2009im_/x.gif", meta.AssetRef)
}

func TestExtractWithoutImage(t *testing.T) {
	t.Parallel()

	page := `<div class="meta-info-container"><div class="comic-transcript"><p>Only words.</p></div></div>`
	meta, err := New().Extract([]byte(page))
	require.NoError(t, err)

	assert.True(t, meta.HasMetadata)
	assert.Equal(t, "Only words.", meta.Transcript)
	assert.Empty(t, meta.Tags)
	assert.Empty(t, meta.AssetRef)
}

func TestExtractImageWithoutSrc(t *testing.T) {
	t.Parallel()

	meta, err := New().Extract([]byte(`<img class="img-comic">`))
	require.NoError(t, err)
	assert.Empty(t, meta.AssetRef)
}

// fakeNode proves the extractor only needs the Node capability.
type fakeNode struct {
	text     string
	attrs    map[string]string
	children map[Role][]*fakeNode
}

func (n *fakeNode) Find(role Role) (Node, bool) {
	if kids := n.children[role]; len(kids) > 0 {
		return kids[0], true
	}
	return nil, false
}

func (n *fakeNode) FindAll(role Role) []Node {
	out := make([]Node, 0, len(n.children[role]))
	for _, kid := range n.children[role] {
		out = append(out, kid)
	}
	return out
}

func (n *fakeNode) Text() string { return n.text }

func (n *fakeNode) Attr(name string) (string, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

func TestExtractWithCustomParser(t *testing.T) {
	t.Parallel()

	root := &fakeNode{children: map[Role][]*fakeNode{
		RoleMetadata: {{children: map[Role][]*fakeNode{
			RoleTagLinks:   {{text: "#pointy-haired boss"}, {text: "Dogbert"}},
			RoleTranscript: {{text: "Catbert smiles."}},
		}}},
		RoleImage: {{attrs: map[string]string{"src": "/strip.gif"}}},
	}}

	e := NewWithParser(func([]byte) (Node, error) { return root, nil })
	meta, err := e.Extract(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"pointy-haired boss", "Dogbert"}, meta.Tags)
	assert.Equal(t, "Catbert smiles.", meta.Transcript)
	assert.Equal(t, "/strip.gif", meta.AssetRef)
}

func TestExtractParserError(t *testing.T) {
	t.Parallel()

	boom := errors.New("unreadable")
	_, err := NewWithParser(func([]byte) (Node, error) { return nil, boom }).Extract([]byte("x"))
	require.ErrorIs(t, err, boom)
}
