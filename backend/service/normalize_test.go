package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeContractHTMLInjectsStyle(t *testing.T) {
	raw := "<html><HEAD><title>Sözleşme</title></HEAD><body><p>Madde 1</p></body></html>"
	out := NormalizeContractHTML(raw)

	styleAt := strings.Index(out, "<style>")
	headAt := strings.Index(out, "</head>")
	assert.True(t, styleAt > 0 && styleAt < headAt, "style must be injected before </head>")
	assert.Equal(t, 1, strings.Count(out, "<style>"))
	assert.Contains(t, out, "<p>Madde 1</p>")
	assert.Contains(t, out, "overflow-wrap: anywhere")
	assert.Contains(t, out, "font-weight: 700 !important")
}

func TestNormalizeContractHTMLWithoutHead(t *testing.T) {
	raw := "<html><body><p>Hi</p></body></html>"
	assert.Equal(t, raw, NormalizeContractHTML(raw))
	assert.Equal(t, raw, NormalizeContractHTML(NormalizeContractHTML(raw)))
}

func TestNormalizeContractHTMLWidths(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"px width", `<div style="width:600px">`, `<div style="width:auto;">`},
		{"pt width with space", `<td style="WIDTH: 451.3pt;color:red">`, `<td style="width:auto;color:red">`},
		{"max-width", `<div style="max-width: 468pt;padding:72pt">`, `<div style="max-width:100%;padding:72pt">`},
		{"both", `<div style="max-width:600px;width:500px">`, `<div style="max-width:100%;width:auto;">`},
		{"consecutive widths", `<div style="width:1px;width:2px;">`, `<div style="width:auto;width:auto;">`},
		{"min-width kept", `<div style="min-width:100px">`, `<div style="min-width:100px">`},
		{"border-width kept", `<td style="border-width:1pt">`, `<td style="border-width:1pt">`},
		{"percent kept", `<table style="width:100%">`, `<table style="width:100%">`},
		{"em kept", `<p style="width:30em">`, `<p style="width:30em">`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeContractHTML(tt.in))
		})
	}
}

func TestNormalizeContractHTMLKeepsText(t *testing.T) {
	raw := `<html><head></head><body><p style="width:500px">Taraflar, işbu sözleşmenin <b>tüm</b> maddelerini kabul eder.</p></body></html>`
	out := NormalizeContractHTML(raw)

	assert.Contains(t, out, `<p style="width:auto;">Taraflar, işbu sözleşmenin <b>tüm</b> maddelerini kabul eder.</p>`)
	assert.Empty(t, NormalizeContractHTML(""))
}
