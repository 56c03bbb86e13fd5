package clone

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webclone/internal/providers/llm"
	"github.com/GriffinCanCode/webclone/internal/shared/types"
)

// Elements that can load or replace the page
const embeddedTags = "base, iframe, frame, frameset, object, embed"

// Attributes that carry a URL
var urlAttrs = map[string]bool{
	"href": true, "src": true, "action": true, "formaction": true,
	"xlink:href": true, "poster": true, "background": true, "data": true,
}

// SanitizerOptions configures the sanitizer
type SanitizerOptions struct {
	// Strict runs the body through a bluemonday allow-list as well
	Strict bool
	// KeepScripts leaves inline <script> elements in place
	KeepScripts bool
}

// Sanitizer makes generated markup safe to show in a sandboxed frame
type Sanitizer struct {
	opts    SanitizerOptions
	policy  *bluemonday.Policy
	metrics *monitoring.Metrics
}

// NewSanitizer creates a sanitizer
func NewSanitizer(opts SanitizerOptions, metrics *monitoring.Metrics) *Sanitizer {
	return &Sanitizer{
		opts:    opts,
		policy:  strictPolicy(),
		metrics: metrics,
	}
}

// strictPolicy extends the UGC policy with the layout vocabulary a cloned
// page needs
func strictPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("header", "nav", "main", "section", "article", "aside", "footer",
		"figure", "figcaption", "button", "label", "form", "input", "select", "option", "textarea")
	p.AllowAttrs("class", "id", "role", "aria-label").Globally()
	p.AllowAttrs("type", "name", "placeholder", "value").OnElements("input", "button", "select", "option", "textarea")
	p.AllowAttrs("data-original-href").OnElements("a", "area")
	p.AllowStyles("color", "background", "background-color", "font-size", "font-weight",
		"font-family", "text-align", "display", "margin", "padding", "width", "height",
		"max-width", "border", "border-radius", "flex", "gap", "justify-content",
		"align-items").Globally()
	return p
}

// Sanitize cleans raw model output. Fragments stay fragments; a full
// document comes back as a well-formed document with a doctype. Output with
// no element nodes is MalformedOutput.
func (s *Sanitizer) Sanitize(raw string) (string, error) {
	cleaned := llm.StripFences(raw)
	if cleaned == "" {
		return "", types.NewError(types.KindMalformedOutput, "provider returned empty output")
	}

	if isDocument(cleaned) {
		return s.sanitizeDocument(cleaned)
	}
	return s.sanitizeFragment(cleaned)
}

func isDocument(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "<!doctype") || strings.Contains(lower, "<html")
}

func (s *Sanitizer) sanitizeDocument(raw string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", types.WrapError(types.KindMalformedOutput, "output is not parseable markup", err)
	}

	s.clean(doc.Selection)

	body := doc.Find("body").First()
	head := doc.Find("head").First()
	if body.Children().Length() == 0 && head.Children().Length() == 0 {
		return "", types.NewError(types.KindMalformedOutput, "output contains no markup")
	}

	if s.opts.Strict {
		inner, _ := body.Html()
		body.SetHtml(s.policy.Sanitize(inner))
	}

	out, err := goquery.OuterHtml(doc.Find("html").First())
	if err != nil {
		return "", types.WrapError(types.KindInternal, "failed to render sanitized document", err)
	}
	return "<!DOCTYPE html>\n" + out, nil
}

func (s *Sanitizer) sanitizeFragment(raw string) (string, error) {
	parent := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(raw), parent)
	if err != nil {
		return "", types.WrapError(types.KindMalformedOutput, "output is not parseable markup", err)
	}

	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	doc := goquery.NewDocumentFromNode(root)
	s.clean(doc.Selection)

	if doc.Children().Length() == 0 {
		return "", types.NewError(types.KindMalformedOutput, "output contains no markup")
	}

	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", types.WrapError(types.KindInternal, "failed to render sanitized fragment", err)
		}
	}
	out := strings.TrimSpace(buf.String())
	if s.opts.Strict {
		out = s.policy.Sanitize(out)
	}
	return out, nil
}

// clean applies the removal and neutralisation rules in place
func (s *Sanitizer) clean(sel *goquery.Selection) {
	if !s.opts.KeepScripts {
		s.remove(sel.Find("script"), "script")
	}
	s.remove(sel.Find(embeddedTags), "embedded")
	s.remove(sel.Find("meta").FilterFunction(func(_ int, m *goquery.Selection) bool {
		return strings.EqualFold(strings.TrimSpace(m.AttrOr("http-equiv", "")), "refresh")
	}), "refresh")

	handlers, badURLs := 0, 0
	sel.Find("*").Each(func(_ int, el *goquery.Selection) {
		node := el.Get(0)
		kept := node.Attr[:0]
		for _, a := range node.Attr {
			key := strings.ToLower(a.Key)
			switch {
			case strings.HasPrefix(key, "on"):
				handlers++
				continue
			case urlAttrs[key] && isScriptURL(a.Val):
				badURLs++
				continue
			}
			kept = append(kept, a)
		}
		node.Attr = kept
	})
	s.metrics.AddSanitizerRemovals("handler", handlers)
	s.metrics.AddSanitizerRemovals("script_url", badURLs)

	inert := 0
	sel.Find("a[href], area[href]").Each(func(_ int, el *goquery.Selection) {
		if href := el.AttrOr("href", ""); isAbsolute(href) {
			el.SetAttr("data-original-href", href)
			el.SetAttr("href", "#")
			inert++
		}
		el.RemoveAttr("target")
	})
	sel.Find("form").Each(func(_ int, el *goquery.Selection) {
		if action := el.AttrOr("action", ""); isAbsolute(action) {
			el.SetAttr("data-original-action", action)
			el.SetAttr("action", "#")
			inert++
		}
		el.RemoveAttr("target")
	})
	s.metrics.AddSanitizerRemovals("navigation", inert)
}

func (s *Sanitizer) remove(sel *goquery.Selection, what string) {
	if n := sel.Length(); n > 0 {
		sel.Remove()
		s.metrics.AddSanitizerRemovals(what, n)
	}
}

// isScriptURL matches javascript: and vbscript: URLs, ignoring the
// whitespace and control characters browsers skip
func isScriptURL(v string) bool {
	var b strings.Builder
	for _, r := range v {
		if r > ' ' {
			b.WriteRune(r)
		}
	}
	lower := strings.ToLower(b.String())
	return strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "vbscript:")
}

// isAbsolute reports whether ref leaves the document: a scheme-qualified or
// protocol-relative URL
func isAbsolute(ref string) bool {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "//") {
		return true
	}
	u, err := url.Parse(ref)
	return err == nil && u.Scheme != ""
}
