package extract

import (
	"strconv"
	"strings"

	"github.com/gorilla/css/scanner"
	"golang.org/x/net/html"
)

const maxStyleValue = 64

// declarations tokenises an inline style attribute into property/value
// pairs. Later declarations win, as in a browser.
func declarations(style string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(style) == "" {
		return out
	}

	var (
		s        = scanner.New(style)
		property string
		value    strings.Builder
		inValue  bool
	)

	flush := func() {
		if property != "" {
			v := strings.TrimSpace(value.String())
			v = strings.TrimSpace(strings.TrimSuffix(v, "!important"))
			if v != "" {
				out[property] = v
			}
		}
		property, inValue = "", false
		value.Reset()
	}

	for {
		tok := s.Next()
		if tok.Type == scanner.TokenEOF || tok.Type == scanner.TokenError {
			break
		}
		switch {
		case tok.Type == scanner.TokenComment:
		case tok.Type == scanner.TokenChar && tok.Value == ";":
			flush()
		case !inValue && tok.Type == scanner.TokenIdent:
			property = strings.ToLower(tok.Value)
		case !inValue && tok.Type == scanner.TokenChar && tok.Value == ":":
			inValue = property != ""
		case inValue && tok.Type == scanner.TokenS:
			value.WriteByte(' ')
		case inValue:
			value.WriteString(tok.Value)
		}
	}
	flush()
	return out
}

// styleOf reads the allow-listed hints of an element. Returns nil when none
// apply.
func styleOf(n *html.Node) *Style {
	decls := declarations(attr(n, "style"))
	st := &Style{
		Color:      decls["color"],
		FontSize:   decls["font-size"],
		FontWeight: decls["font-weight"],
		Layout:     layoutOf(decls["display"]),
	}

	bg := decls["background-color"]
	if bg == "" {
		bg = decls["background"]
	}
	st.Background = bg

	// Legacy presentational attributes lose to inline styles
	if st.Background == "" {
		st.Background = strings.TrimSpace(attr(n, "bgcolor"))
	}
	if st.Color == "" && n.Data == "font" {
		st.Color = strings.TrimSpace(attr(n, "color"))
	}

	st.Color = cleanValue(st.Color)
	st.Background = cleanValue(st.Background)
	st.FontSize = cleanValue(st.FontSize)
	st.FontWeight = cleanValue(st.FontWeight)

	if st.IsZero() {
		return nil
	}
	return st
}

// cleanValue drops image references and over-long values
func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > maxStyleValue || strings.Contains(strings.ToLower(v), "url(") {
		return ""
	}
	return v
}

func layoutOf(display string) string {
	switch strings.ToLower(strings.TrimSpace(display)) {
	case "flex", "inline-flex":
		return LayoutFlex
	case "grid", "inline-grid":
		return LayoutGrid
	case "block":
		return LayoutBlock
	}
	return ""
}

// hiddenByStyle reports inline styles that keep an element off screen
func hiddenByStyle(n *html.Node) bool {
	decls := declarations(attr(n, "style"))
	if strings.EqualFold(decls["display"], "none") || strings.EqualFold(decls["visibility"], "hidden") {
		return true
	}
	w, wok := decls["width"]
	h, hok := decls["height"]
	return wok && hok && isZeroLength(w) && isZeroLength(h)
}

func isZeroLength(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, unit := range []string{"px", "em", "rem", "%", "vh", "vw", "pt"} {
		v = strings.TrimSuffix(v, unit)
	}
	f, err := strconv.ParseFloat(v, 64)
	return err == nil && f == 0
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
