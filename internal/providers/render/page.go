package render

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"

	"github.com/GriffinCanCode/webclone/internal/shared/types"
)

// snapshot turns a raw service payload into page HTML. overflow reports that
// the transport stopped reading at the ceiling.
func snapshot(raw []byte, contentType string, maxBytes int64, overflow bool) (string, bool, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false, types.NewError(types.KindRenderUnavailable, "render service returned an empty document")
	}

	if !isTextual(mimetype.Detect(raw)) {
		return "", false, types.NewError(types.KindRenderUnavailable, "render service returned a non-HTML payload")
	}

	decoded, err := decode(raw, contentType)
	if err != nil {
		return "", false, types.WrapError(types.KindRenderUnavailable, "render service payload could not be decoded", err)
	}

	truncated := overflow || int64(len(decoded)) > maxBytes
	if int64(len(decoded)) > maxBytes {
		decoded = cutUTF8(decoded, int(maxBytes))
	}
	return decoded, truncated, nil
}

// isTextual accepts text/* payloads (HTML, XHTML, plain text)
func isTextual(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") || m.Is("text/html") {
			return true
		}
	}
	return false
}

// decode converts raw bytes to UTF-8 using the declared charset, falling back
// to statistical detection when the header names none.
func decode(raw []byte, contentType string) (string, error) {
	label := declaredCharset(contentType)
	if label == "" {
		if utf8.Valid(raw) {
			return string(raw), nil
		}
		label = detectCharset(raw)
	}
	if strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return strings.ToValidUTF8(string(raw), "�"), nil
	}

	reader, err := charset.NewReader(bytes.NewReader(raw), "text/html; charset="+label)
	if err != nil {
		return "", fmt.Errorf("charset %q: %w", label, err)
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}

func detectCharset(data []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// cutUTF8 truncates s to at most n bytes without splitting a rune
func cutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
