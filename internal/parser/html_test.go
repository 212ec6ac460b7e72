package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acmeAbout = `<!doctype html>
<html>
<head>
  <title>About Acme | Acme Corp</title>
  <style>body { color: red }</style>
  <script>trackVisitor()</script>
</head>
<body>
  <header><a href="/">Home</a></header>
  <nav><ul><li>Products</li><li>Careers</li></ul></nav>
  <h1>About Acme</h1>
  <p>Acme Corp makes   anvils.</p>
  <h2>Leadership</h2>
  <p>Jane Roe is <b>CEO</b>.</p>
  <ul><li>John Doe, CFO</li></ul>
  <h2>History</h2>
  <p>Founded in 1999.</p>
  <footer>Copyright Acme</footer>
</body>
</html>`

func TestHTMLParser_ExtractsSections(t *testing.T) {
	tree, err := (&HTMLParser{}).Parse(strings.NewReader(acmeAbout), "https://acme.com/about")
	require.NoError(t, err)

	assert.Equal(t, "About Acme | Acme Corp", tree.Title)
	require.Len(t, tree.Children, 1)
	h1 := tree.Children[0]
	assert.Equal(t, "About Acme", h1.Title)
	assert.Equal(t, "Acme Corp makes anvils.", h1.Text)
	require.Len(t, h1.Children, 2)
	assert.Equal(t, "Leadership", h1.Children[0].Title)
	assert.Equal(t, "Jane Roe is CEO .\n\nJohn Doe, CFO", h1.Children[0].Text)
	assert.Equal(t, "Founded in 1999.", h1.Children[1].Text)

	text := tree.PlainText()
	assert.NotContains(t, text, "trackVisitor")
	assert.NotContains(t, text, "Careers")
	assert.NotContains(t, text, "Copyright")
}

func TestHTMLParser_KeepsArticleHeader(t *testing.T) {
	page := `<html><body>
  <header><a href="/">Home</a> <a href="/login">Sign in</a></header>
  <article>
    <header><h1>Acme raises Series B</h1><p>By Staff Writer</p></header>
    <p>Acme Corp raised $20M.</p>
  </article>
</body></html>`
	tree, err := (&HTMLParser{}).Parse(strings.NewReader(page), "https://news.example.com/acme")
	require.NoError(t, err)

	require.Len(t, tree.Children, 1)
	assert.Equal(t, "Acme raises Series B", tree.Children[0].Title)
	text := tree.PlainText()
	assert.Contains(t, text, "By Staff Writer")
	assert.Contains(t, text, "Acme Corp raised $20M.")
	assert.NotContains(t, text, "Sign in")
}

func TestHTMLParser_DivOnlyPageFallsBackToBodyText(t *testing.T) {
	page := `<html><body><div>Acme <span>filed</span> for IPO.</div><script>x()</script></body></html>`
	tree, err := (&HTMLParser{}).Parse(strings.NewReader(page), "https://news.example.com/acme-ipo")
	require.NoError(t, err)

	assert.Equal(t, "acme-ipo", tree.Title)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, "Acme filed for IPO.", tree.Children[0].Text)
}

func TestHTMLParser_TitleFallbacks(t *testing.T) {
	og := `<html><head><meta property="og:title" content="Acme raises Series B"></head><body><h1>Other</h1></body></html>`
	tree, err := (&HTMLParser{}).Parse(strings.NewReader(og), "https://x.com/a")
	require.NoError(t, err)
	assert.Equal(t, "Acme raises Series B", tree.Title)

	h1 := `<html><body><h1>Acme Careers</h1><p>Join us.</p></body></html>`
	tree, err = (&HTMLParser{}).Parse(strings.NewReader(h1), "https://x.com/b")
	require.NoError(t, err)
	assert.Equal(t, "Acme Careers", tree.Title)
}
