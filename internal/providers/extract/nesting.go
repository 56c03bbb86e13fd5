package extract

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// DefaultMaxNesting bounds element nesting handed to the HTML parser
const DefaultMaxNesting = 512

// Elements that never hold children
var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// Elements whose end tag may be omitted; the parser closes them implicitly so
// they do not deepen the tree
var implicitEndTags = map[string]bool{
	"html": true, "head": true, "body": true, "p": true, "li": true,
	"dt": true, "dd": true, "option": true, "optgroup": true, "tr": true,
	"td": true, "th": true, "thead": true, "tbody": true, "tfoot": true,
	"colgroup": true, "rb": true, "rt": true, "rp": true,
}

// limitNesting drops start and end tags opened deeper than max while keeping
// their text. It runs in one linear tokenizer pass so the parse that follows
// never sees a pathologically deep tree.
func limitNesting(markup string, max int) (string, bool) {
	if max <= 0 {
		return markup, false
	}

	z := html.NewTokenizer(strings.NewReader(markup))
	var out bytes.Buffer
	out.Grow(len(markup))

	depth, limited, skipText := 0, false, false
	for {
		tt := z.Next()
		if tt == html.TextToken && skipText {
			skipText = false
			continue
		}
		skipText = false

		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				if !limited {
					return markup, false
				}
				return out.String(), true
			}
			return markup, false

		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if voidTags[tag] || implicitEndTags[tag] {
				out.Write(z.Raw())
				continue
			}
			depth++
			if depth > max {
				limited = true
				// raw text of a dropped script or style must not surface as page text
				skipText = tag == "script" || tag == "style"
				continue
			}
			out.Write(z.Raw())

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if voidTags[tag] || implicitEndTags[tag] {
				out.Write(z.Raw())
				continue
			}
			if depth > max {
				depth--
				continue
			}
			if depth > 0 {
				depth--
			}
			out.Write(z.Raw())

		default:
			out.Write(z.Raw())
		}
	}
}
