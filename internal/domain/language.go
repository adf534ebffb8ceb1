package domain

import (
	"fmt"
	"strings"
)

// Language is one of the widget's supported conversation languages.
type Language string

const (
	Catalan Language = "ca"
	Spanish Language = "es"
	Aranese Language = "oc"
)

// Languages lists the supported languages in selection order.
var Languages = []Language{Catalan, Spanish, Aranese}

var languageTags = map[Language]string{
	Catalan: "català",
	Spanish: "español",
	Aranese: "aranès",
}

// Tag returns the human-readable language name sent to the assistant endpoint.
// Unknown codes fall back to the code itself.
func (l Language) Tag() string {
	if tag, ok := languageTags[l]; ok {
		return tag
	}
	return string(l)
}

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	_, ok := languageTags[l]
	return ok
}

// ParseLanguage normalizes a language code.
func ParseLanguage(code string) (Language, error) {
	l := Language(strings.ToLower(strings.TrimSpace(code)))
	if !l.Valid() {
		return "", fmt.Errorf("unsupported language %q", code)
	}
	return l, nil
}
