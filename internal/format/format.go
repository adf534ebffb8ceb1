// Package format renders the widget's constrained markdown subset into safe HTML.
//
// Rendering is an ordered pipeline of pure string stages. Escape always runs
// first, so every later stage operates on text that contains no raw '<', '>',
// '&' or quote characters from the input; the only markup in the output is
// markup a stage produced itself.
package format

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Stage is one step of the rendering pipeline.
type Stage func(string) string

// Pipeline is the fixed stage order used by Format.
var Pipeline = []Stage{
	Escape,
	Headings,
	ButtonLinks,
	Links,
	Emphasis,
	Paragraphs,
}

// PlaceholderURL replaces every link target that fails validation.
const PlaceholderURL = "#"

var (
	headingRe      = regexp.MustCompile(`(?m)^(#{1,3}) (.*)$`)
	buttonLinkRe   = regexp.MustCompile(`(?i)\[(?:BOTÓN|BOTÓ|BOTON|BUTTON):([^\]]+)\]\(([^)]+)\)`)
	linkRe         = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	openAnchorRe   = regexp.MustCompile(`<a [^>]*>`)
	shieldTokenRe  = regexp.MustCompile(`\x00([0-9]+)\x00`)
	boldStarRe     = regexp.MustCompile(`\*\*(.*?)\*\*`)
	boldUnderRe    = regexp.MustCompile(`__(.*?)__`)
	italicStarRe   = regexp.MustCompile(`\*(.*?)\*`)
	italicUnderRe  = regexp.MustCompile(`_(.*?)_`)
	blankLineRe    = regexp.MustCompile(`\n{2,}`)
	headingBlockRe = regexp.MustCompile(`^<h[1-6]>`)
)

var strictPolicy = bluemonday.StrictPolicy()

// Formatter applies a stage pipeline to raw message text.
type Formatter struct {
	stages []Stage
}

// New returns a Formatter using the default Pipeline.
func New() *Formatter {
	return &Formatter{stages: Pipeline}
}

// Format converts untrusted raw text into safe markup.
func (f *Formatter) Format(raw string) string {
	out := raw
	for _, stage := range f.stages {
		out = stage(out)
	}
	return out
}

// Format renders raw with the default pipeline.
func Format(raw string) string {
	return New().Format(raw)
}

// PlainText strips all markup from raw and returns entity-escaped text
// suitable for accessibility labels.
func PlainText(raw string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(raw))
}

// Escape normalizes line endings, drops NUL bytes and HTML-escapes the text.
func Escape(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	return html.EscapeString(s)
}

// Headings turns lines starting with one to three '#' and a space into h1..h3.
func Headings(s string) string {
	return headingRe.ReplaceAllStringFunc(s, func(line string) string {
		m := headingRe.FindStringSubmatch(line)
		level := len(m[1])
		return fmt.Sprintf("<h%d>%s</h%d>", level, m[2], level)
	})
}

// ButtonLinks renders [BOTÓ:label](url) markers, and their Spanish and
// English variants, as anchors styled as buttons.
func ButtonLinks(s string) string {
	return buttonLinkRe.ReplaceAllStringFunc(s, func(match string) string {
		m := buttonLinkRe.FindStringSubmatch(match)
		return anchor(m[1], m[2], "link-button")
	})
}

// Links renders [label](url) as a plain anchor.
func Links(s string) string {
	return linkRe.ReplaceAllStringFunc(s, func(match string) string {
		m := linkRe.FindStringSubmatch(match)
		return anchor(m[1], m[2], "")
	})
}

func anchor(label, target, class string) string {
	var b strings.Builder
	b.WriteString(`<a href="`)
	b.WriteString(SafeURL(target))
	b.WriteString(`" target="_blank" rel="noopener noreferrer"`)
	if class != "" {
		b.WriteString(` class="`)
		b.WriteString(class)
		b.WriteString(`"`)
	}
	b.WriteString(">")
	b.WriteString(label)
	b.WriteString("</a>")
	return b.String()
}

// SafeURL returns candidate when it is an absolute http or https URL with a
// host, and PlaceholderURL otherwise.
func SafeURL(candidate string) string {
	candidate = strings.TrimSpace(candidate)
	u, err := url.Parse(candidate)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return PlaceholderURL
	}
	switch u.Scheme {
	case "http", "https":
		return candidate
	default:
		return PlaceholderURL
	}
}

// Emphasis applies bold (**x**, __x__) and italic (*x*, _x_) markers.
// Anchor opening tags are shielded so their attributes are never rewritten.
// The input must not contain NUL bytes; Escape guarantees that.
func Emphasis(s string) string {
	var shielded []string
	s = openAnchorRe.ReplaceAllStringFunc(s, func(tag string) string {
		shielded = append(shielded, tag)
		return "\x00" + strconv.Itoa(len(shielded)-1) + "\x00"
	})

	s = boldStarRe.ReplaceAllString(s, "<strong>${1}</strong>")
	s = boldUnderRe.ReplaceAllString(s, "<strong>${1}</strong>")
	s = italicStarRe.ReplaceAllString(s, "<em>${1}</em>")
	s = italicUnderRe.ReplaceAllString(s, "<em>${1}</em>")

	if len(shielded) == 0 {
		return s
	}
	return shieldTokenRe.ReplaceAllStringFunc(s, func(token string) string {
		i, err := strconv.Atoi(strings.Trim(token, "\x00"))
		if err != nil || i >= len(shielded) {
			return ""
		}
		return shielded[i]
	})
}

// Paragraphs splits on blank lines. Heading blocks pass through, empty blocks
// are dropped and the rest become <p> blocks with <br> line breaks.
func Paragraphs(s string) string {
	var b strings.Builder
	for _, block := range blankLineRe.Split(s, -1) {
		switch {
		case headingBlockRe.MatchString(block):
			b.WriteString(block)
		case strings.TrimSpace(block) == "":
			continue
		default:
			b.WriteString("<p>")
			b.WriteString(strings.ReplaceAll(block, "\n", "<br>"))
			b.WriteString("</p>")
		}
	}
	return b.String()
}
