package service

import (
	"regexp"
	"strings"
)

// responsiveStyle is injected before </head> so exported documents fit the reading pane.
const responsiveStyle = `<style>
  html, body {
    max-width: 100%;
    overflow-x: hidden;
    font-family: 'Times New Roman', Times, serif;
    font-size: 12pt;
    line-height: 1.6;
    color: #000;
  }
  img, table {
    max-width: 100% !important;
    height: auto !important;
  }
  * {
    max-width: 100% !important;
    box-sizing: border-box;
  }
  body { margin: 0; padding: 0; }
  p, div, span {
    white-space: normal !important;
    overflow-wrap: anywhere;
    word-break: break-word;
  }
  strong, b, .bold,
  span[style*="font-weight:700"],
  span[style*="font-weight: 700"],
  span[style*="font-weight:bold"],
  span[style*="font-weight: bold"] {
    font-weight: 700 !important;
  }
  h1, h2, h3 {
    font-weight: 700 !important;
    margin: 16pt 0 12pt 0;
  }
</style>`

var (
	headCloseRe = regexp.MustCompile(`(?i)</head>`)
	maxWidthRe  = regexp.MustCompile(`(?i)max-width:\s*\d+(?:\.\d+)?(?:px|pt);?`)
	widthRe     = regexp.MustCompile(`(?i)width:\s*\d+(?:\.\d+)?(?:px|pt);?`)
)

// NormalizeContractHTML rewrites a contract document for display:
//   - the responsive style block is inserted before the first </head>
//     (documents without a head are left unstyled)
//   - fixed max-width declarations in px/pt become max-width:100%;
//   - fixed width declarations in px/pt become width:auto;
//
// Text content is not touched. The function is pure.
func NormalizeContractHTML(raw string) string {
	if raw == "" {
		return ""
	}

	out := raw
	if loc := headCloseRe.FindStringIndex(out); loc != nil {
		out = out[:loc[0]] + responsiveStyle + "</head>" + out[loc[1]:]
	}

	out = maxWidthRe.ReplaceAllString(out, "max-width:100%;")
	return replaceWidths(out)
}

// replaceWidths rewrites bare width declarations. Matches preceded by a
// letter, digit, underscore or hyphen belong to another property (min-width,
// border-width) and are kept.
func replaceWidths(s string) string {
	matches := widthRe.FindAllStringIndex(s, -1)
	if matches == nil {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		if m[0] > 0 && isPropertyChar(s[m[0]-1]) {
			continue
		}
		b.WriteString(s[last:m[0]])
		b.WriteString("width:auto;")
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func isPropertyChar(c byte) bool {
	return c == '-' || c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
