package extract

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webclone/internal/providers/render"
)

// Defaults applied when Options leaves a field zero
const (
	DefaultMaxDepth   = 6
	DefaultMaxBytes   = 50 * 1024
	DefaultMaxTextLen = 400
)

// Non-visual elements removed before the walk
const droppedTags = "script, style, noscript, template, meta, link, head, title, iframe, object, embed, svg, canvas"

// Elements hidden by markup rather than style
const hiddenXPath = `//*[@hidden] | //*[@aria-hidden='true'] | //input[@type='hidden']`

var landmarks = map[string]bool{
	"header": true, "nav": true, "main": true, "footer": true,
	"aside": true, "section": true, "article": true, "form": true,
}

var paragraphTags = map[string]bool{
	"p": true, "blockquote": true, "pre": true, "figcaption": true,
	"button": true, "label": true,
}

// Elements that continue a run of inline text
var inlineTags = map[string]bool{
	"span": true, "b": true, "strong": true, "i": true, "em": true, "u": true,
	"small": true, "code": true, "abbr": true, "cite": true, "q": true,
	"s": true, "sub": true, "sup": true, "mark": true, "time": true,
	"br": true, "kbd": true, "var": true, "font": true, "del": true,
	"ins": true, "bdi": true, "bdo": true, "wbr": true, "data": true,
	"samp": true, "dfn": true,
}

// Options bounds the model
type Options struct {
	MaxDepth   int
	MaxBytes   int
	MaxTextLen int
	// MaxNesting bounds element nesting before the DOM is parsed
	MaxNesting int
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.MaxTextLen <= 0 {
		o.MaxTextLen = DefaultMaxTextLen
	}
	if o.MaxNesting <= 0 {
		o.MaxNesting = DefaultMaxNesting
	}
	return o
}

// Extractor turns rendered pages into page models. Safe for concurrent use.
type Extractor struct {
	opts    Options
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New creates an extractor
func New(opts Options, log *logging.Logger, metrics *monitoring.Metrics) *Extractor {
	if log == nil {
		log = logging.NewNop()
	}
	return &Extractor{
		opts:    opts.withDefaults(),
		log:     log.Named("extract"),
		metrics: metrics,
	}
}

// Options returns the effective bounds
func (e *Extractor) Options() Options {
	return e.opts
}

// Extract builds the bounded model of page. It never fails: unparseable or
// empty pages yield a model with no blocks.
func (e *Extractor) Extract(page *render.Page) *PageModel {
	model := &PageModel{Blocks: []Block{}}
	if page == nil {
		return model
	}
	model.URL = page.FinalURL

	doc, nestingCut, err := loadHTML(page.HTML, e.opts.MaxNesting)
	if err != nil {
		e.log.Warn("Unparseable page, returning empty model", logging.URL(page.FinalURL), zap.Error(err))
		return model
	}

	base, _ := url.Parse(page.FinalURL)
	w := &walker{opts: e.opts, base: base}

	model.Title = capRunes(normalizeWhitespace(doc.Find("title").First().Text()), e.opts.MaxTextLen)
	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		model.Description = capRunes(normalizeWhitespace(desc), e.opts.MaxTextLen)
	}
	model.Lang = strings.TrimSpace(doc.Find("html").First().AttrOr("lang", ""))

	doc.Find(droppedTags).Remove()
	removeHidden(doc)

	body := doc.Find("body").First()
	if body.Length() > 0 {
		model.Blocks = w.children(body.Nodes[0])
	}
	if model.Blocks == nil {
		model.Blocks = []Block{}
	}

	blocks, flattened := enforceDepth(model.Blocks, 1, e.opts)
	model.Blocks = blocks
	model.Truncated = page.Truncated || flattened || nestingCut
	enforceSize(model, e.opts.MaxBytes)

	e.metrics.RecordExtraction(model.Count())
	e.log.Debug("Extracted page model",
		logging.URL(page.FinalURL),
		zap.Int("blocks", model.Count()),
		zap.Int("depth", model.Depth()),
		zap.Int("omitted", model.Omitted),
		zap.Bool("flattened", flattened),
		zap.Bool("nesting_cut", nestingCut))
	return model
}

// removeHidden drops nodes hidden by attribute. The XPath runs against the
// same tree goquery holds so removals are shared.
func removeHidden(doc *goquery.Document) {
	if len(doc.Nodes) == 0 {
		return
	}
	nodes, err := htmlquery.QueryAll(doc.Nodes[0], hiddenXPath)
	if err != nil || len(nodes) == 0 {
		return
	}
	doc.FindNodes(nodes...).Remove()
}

type walker struct {
	opts Options
	base *url.URL
}

// children converts the child nodes of n into blocks, merging inline runs
func (w *walker) children(n *html.Node) []Block {
	var (
		blocks []Block
		run    []string
	)
	flush := func() {
		text := capRunes(normalizeWhitespace(strings.Join(run, "")), w.opts.MaxTextLen)
		run = run[:0]
		if text != "" {
			blocks = append(blocks, Block{Kind: KindParagraph, Text: text})
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			run = append(run, c.Data)
		case html.ElementNode:
			if hiddenByStyle(c) {
				continue
			}
			if isInlineTree(c) {
				run = append(run, rawText(c))
				continue
			}
			flush()
			blocks = append(blocks, w.element(c)...)
		}
	}
	flush()
	return blocks
}

// element converts one element into zero or more blocks. More than one block
// is returned only when a trivial wrapper is collapsed into its children.
func (w *walker) element(n *html.Node) []Block {
	tag := n.Data
	switch {
	case headingLevel(tag) > 0:
		return w.text(Block{Kind: KindHeading, Level: headingLevel(tag), Style: styleOf(n)}, textOf(n))

	case tag == "img":
		return w.image(n)

	case tag == "picture":
		if img := firstElement(n, "img"); img != nil {
			return w.image(img)
		}
		return nil

	case tag == "a" && hasAttr(n, "href"):
		return w.link(n)

	case paragraphTags[tag] || (tag == "li" && !hasBlockDescendant(n)):
		if text := textOf(n); text != "" {
			return w.text(Block{Kind: KindParagraph, Style: styleOf(n)}, text)
		}
		// A paragraph wrapping only an image is the image
		if img := firstElement(n, "img"); img != nil {
			return w.image(img)
		}
		return nil
	}

	return w.container(n)
}

func (w *walker) text(b Block, text string) []Block {
	b.Text = capRunes(text, w.opts.MaxTextLen)
	if b.Text == "" {
		return nil
	}
	return []Block{b}
}

func (w *walker) image(n *html.Node) []Block {
	src := w.resolve(attr(n, "src"))
	alt := capRunes(normalizeWhitespace(attr(n, "alt")), w.opts.MaxTextLen)
	if src == "" && alt == "" {
		return nil
	}
	return []Block{{Kind: KindImage, Src: src, Alt: alt, Style: styleOf(n)}}
}

func (w *walker) link(n *html.Node) []Block {
	text := textOf(n)
	if text == "" {
		if img := firstElement(n, "img"); img != nil {
			text = normalizeWhitespace(attr(img, "alt"))
		}
	}
	text = capRunes(text, w.opts.MaxTextLen)
	if text == "" {
		return nil
	}
	return []Block{{Kind: KindLink, Text: text, Href: w.resolve(attr(n, "href")), Style: styleOf(n)}}
}

func (w *walker) container(n *html.Node) []Block {
	children := w.children(n)
	if len(children) == 0 {
		return nil
	}

	b := Block{
		Kind:     KindContainer,
		Landmark: landmarkOf(n),
		Style:    styleOf(n),
		Children: children,
	}
	if len(children) == 1 && b.Style == nil && b.Landmark == "" {
		return children
	}
	return []Block{b}
}

// resolve makes ref absolute against the page URL. Schemes that cannot be
// fetched by a viewer are dropped.
func (w *walker) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	lower := strings.ToLower(ref)
	for _, scheme := range []string{"data:", "javascript:", "vbscript:", "blob:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if w.base != nil {
		u = w.base.ResolveReference(u)
	}
	return u.String()
}

func landmarkOf(n *html.Node) string {
	if role := strings.ToLower(strings.TrimSpace(attr(n, "role"))); role != "" {
		return role
	}
	if landmarks[n.Data] {
		return n.Data
	}
	return ""
}

// textOf returns the normalised visible text beneath n
func textOf(n *html.Node) string {
	return normalizeWhitespace(rawText(n))
}

// rawText concatenates the visible text beneath n. Block boundaries and
// line breaks become spaces; inline boundaries add nothing.
func rawText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			b.WriteString(node.Data)
			return
		case html.ElementNode:
			if hiddenByStyle(node) {
				return
			}
			if node.Data == "br" {
				b.WriteByte(' ')
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if node.Type == html.ElementNode && !inlineTags[node.Data] {
			b.WriteByte(' ')
		}
	}
	walk(n)
	return b.String()
}

// isInlineTree reports whether n and all its element descendants are inline
func isInlineTree(n *html.Node) bool {
	if !inlineTags[n.Data] {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !isInlineTree(c) {
			return false
		}
	}
	return true
}

func hasBlockDescendant(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !isInlineTree(c) {
			return true
		}
	}
	return false
}

func firstElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.Data == tag {
			return c
		}
		if found := firstElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// headingLevel maps h1..h6 to 1..6, anything else to 0
func headingLevel(tag string) int {
	if len(tag) != 2 || tag[0] != 'h' {
		return 0
	}
	level, err := strconv.Atoi(tag[1:])
	if err != nil || level < 1 || level > 6 {
		return 0
	}
	return level
}
