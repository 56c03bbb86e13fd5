package clone

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webclone/internal/shared/types"
)

func TestSanitizeKeepsFragmentAsFragment(t *testing.T) {
	s := NewSanitizer(SanitizerOptions{}, nil)

	out, err := s.Sanitize("<div>Hi World</div>")
	require.NoError(t, err)
	assert.Equal(t, "<div>Hi World</div>", out)
}

func TestSanitizeStripsFences(t *testing.T) {
	s := NewSanitizer(SanitizerOptions{}, nil)

	out, err := s.Sanitize("```html\n<div>Hi World</div>\n```")
	require.NoError(t, err)
	assert.Equal(t, "<div>Hi World</div>", out)
}

func TestSanitizeDocumentGetsDoctype(t *testing.T) {
	s := NewSanitizer(SanitizerOptions{}, nil)

	out, err := s.Sanitize("<html><head><title>T</title></head><body><h1>Hi</h1></body></html>")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>\n<html>"))
	assert.Contains(t, out, "<h1>Hi</h1>")
	assert.Contains(t, out, "<title>T</title>")
}

func TestSanitizeRemovesActiveContent(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		absent  []string
		present []string
	}{
		{
			name:    "script",
			input:   `<div><script>alert(1)</script><p>x</p></div>`,
			absent:  []string{"<script", "alert"},
			present: []string{"<p>x</p>"},
		},
		{
			name:    "embedded frames",
			input:   `<div><iframe src="https://evil.test"></iframe><object data="x.swf"></object><embed src="x"><p>x</p></div>`,
			absent:  []string{"<iframe", "<object", "<embed"},
			present: []string{"<p>x</p>"},
		},
		{
			name:    "event handlers",
			input:   `<div onclick="steal()" ONMOUSEOVER="x()"><img src="a.png" onerror="y()"></div>`,
			absent:  []string{"onclick", "onmouseover", "onerror", "steal"},
			present: []string{`src="a.png"`},
		},
		{
			name:    "script urls",
			input:   "<div><a href=\" java\tscript:alert(1)\">a</a><img src=\"vbscript:x\"></div>",
			absent:  []string{"script:"},
			present: []string{">a</a>"},
		},
		{
			name:    "meta refresh",
			input:   `<html><head><meta http-equiv="Refresh" content="0;url=https://evil.test"></head><body><p>x</p></body></html>`,
			absent:  []string{"http-equiv", "evil.test"},
			present: []string{"<p>x</p>"},
		},
		{
			name:    "base element",
			input:   `<html><head><base href="https://evil.test/"></head><body><p>x</p></body></html>`,
			absent:  []string{"<base"},
			present: []string{"<p>x</p>"},
		},
	}

	s := NewSanitizer(SanitizerOptions{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.Sanitize(tt.input)
			require.NoError(t, err)
			lower := strings.ToLower(out)
			for _, a := range tt.absent {
				assert.NotContains(t, lower, strings.ToLower(a))
			}
			for _, p := range tt.present {
				assert.Contains(t, out, p)
			}
		})
	}
}

func TestSanitizeMakesNavigationInert(t *testing.T) {
	s := NewSanitizer(SanitizerOptions{}, nil)

	out, err := s.Sanitize(`<nav><a href="https://example.com/about" target="_top">About</a>` +
		`<a href="#top">Top</a><a href="/local">Local</a>` +
		`<form action="//example.com/login"><input name="q"></form></nav>`)
	require.NoError(t, err)

	assert.Contains(t, out, `href="#" data-original-href="https://example.com/about"`)
	assert.NotContains(t, out, "target=")
	assert.Contains(t, out, `href="#top"`)
	assert.Contains(t, out, `href="/local"`)
	assert.Contains(t, out, `action="#" data-original-action="//example.com/login"`)
}

func TestSanitizeRejectsOutputWithoutMarkup(t *testing.T) {
	s := NewSanitizer(SanitizerOptions{}, nil)

	for _, raw := range []string{"", "   ", "ERROR: cannot comply", "```\n```", "<script>x()</script>"} {
		_, err := s.Sanitize(raw)
		require.Error(t, err, raw)
		assert.Equal(t, types.KindMalformedOutput, types.KindOf(err), raw)
	}
}

func TestSanitizeKeepScripts(t *testing.T) {
	s := NewSanitizer(SanitizerOptions{KeepScripts: true}, nil)

	out, err := s.Sanitize(`<div><script>init()</script><button onclick="x()">b</button></div>`)
	require.NoError(t, err)
	assert.Contains(t, out, "<script>init()</script>")
	assert.NotContains(t, out, "onclick", "handlers are removed even when scripts are kept")
}

func TestSanitizeStrict(t *testing.T) {
	s := NewSanitizer(SanitizerOptions{Strict: true}, nil)

	out, err := s.Sanitize(`<section class="hero" style="color: red"><h1>Hi</h1><marquee>old</marquee><svg><circle/></svg></section>`)
	require.NoError(t, err)
	assert.Contains(t, out, `<section class="hero"`)
	assert.Contains(t, out, "<h1>Hi</h1>")
	assert.NotContains(t, out, "<marquee")
	assert.NotContains(t, out, "<svg")
}

func TestIsScriptURL(t *testing.T) {
	assert.True(t, isScriptURL("javascript:alert(1)"))
	assert.True(t, isScriptURL("  JaVaScRiPt:x"))
	assert.True(t, isScriptURL("java\nscript:x"))
	assert.True(t, isScriptURL("vbscript:x"))
	assert.False(t, isScriptURL("https://example.com/javascript:"))
	assert.False(t, isScriptURL("/path"))
}

func TestIsAbsolute(t *testing.T) {
	assert.True(t, isAbsolute("https://example.com"))
	assert.True(t, isAbsolute("//cdn.example.com/x"))
	assert.True(t, isAbsolute("mailto:a@example.com"))
	assert.False(t, isAbsolute("/about"))
	assert.False(t, isAbsolute("#top"))
	assert.False(t, isAbsolute("page.html"))
}
