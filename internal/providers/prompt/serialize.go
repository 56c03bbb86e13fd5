package prompt

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"

	"github.com/GriffinCanCode/webclone/internal/providers/extract"
)

// serialize renders the model in format
func serialize(model *extract.PageModel, format string) (string, error) {
	switch format {
	case FormatJSON:
		data, err := sonic.ConfigStd.Marshal(model)
		if err != nil {
			return "", fmt.Errorf("marshal page model json: %w", err)
		}
		return string(data), nil
	case FormatYAML:
		data, err := yaml.Marshal(model)
		if err != nil {
			return "", fmt.Errorf("marshal page model yaml: %w", err)
		}
		return string(data), nil
	case FormatXML:
		return outline(model), nil
	}
	return "", fmt.Errorf("unknown prompt format %q", format)
}

// outline renders the model as XML-tagged lines, one element per block
func outline(model *extract.PageModel) string {
	var buf bytes.Buffer

	buf.WriteString("<page")
	writeAttr(&buf, "url", model.URL)
	writeAttr(&buf, "lang", model.Lang)
	if model.Truncated {
		writeAttr(&buf, "truncated", "true")
	}
	if model.Omitted > 0 {
		writeAttr(&buf, "omitted", strconv.Itoa(model.Omitted))
	}
	buf.WriteString(">\n")
	if model.Title != "" {
		buf.WriteString("<title>")
		escape(&buf, model.Title)
		buf.WriteString("</title>\n")
	}
	if model.Description != "" {
		buf.WriteString("<description>")
		escape(&buf, model.Description)
		buf.WriteString("</description>\n")
	}
	for i := range model.Blocks {
		writeBlock(&buf, &model.Blocks[i], 0)
	}
	buf.WriteString("</page>\n")
	return buf.String()
}

func writeBlock(buf *bytes.Buffer, b *extract.Block, indent int) {
	for i := 0; i < indent; i++ {
		buf.WriteString("  ")
	}
	tag := string(b.Kind)

	buf.WriteString("<" + tag)
	if b.Level > 0 {
		writeAttr(buf, "level", strconv.Itoa(b.Level))
	}
	writeAttr(buf, "landmark", b.Landmark)
	writeAttr(buf, "href", b.Href)
	writeAttr(buf, "src", b.Src)
	writeAttr(buf, "alt", b.Alt)
	if s := b.Style; s != nil {
		writeAttr(buf, "color", s.Color)
		writeAttr(buf, "background", s.Background)
		writeAttr(buf, "font-size", s.FontSize)
		writeAttr(buf, "font-weight", s.FontWeight)
		writeAttr(buf, "layout", s.Layout)
	}

	if len(b.Children) == 0 {
		if b.Text == "" {
			buf.WriteString("/>\n")
			return
		}
		buf.WriteString(">")
		escape(buf, b.Text)
		buf.WriteString("</" + tag + ">\n")
		return
	}

	buf.WriteString(">\n")
	for i := range b.Children {
		writeBlock(buf, &b.Children[i], indent+1)
	}
	for i := 0; i < indent; i++ {
		buf.WriteString("  ")
	}
	buf.WriteString("</" + tag + ">\n")
}

func writeAttr(buf *bytes.Buffer, key, value string) {
	if value == "" {
		return
	}
	buf.WriteString(" " + key + `="`)
	escape(buf, value)
	buf.WriteString(`"`)
}

func escape(buf *bytes.Buffer, s string) {
	_ = xml.EscapeText(buf, []byte(s))
}
