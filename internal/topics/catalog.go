package topics

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/aran-respon/internal/domain"
)

//go:embed data/topics.yaml
var defaultCatalog []byte

// Catalog is the immutable set of locales served by the widget.
type Catalog struct {
	selectLanguage string
	startFailed    string
	order          []domain.Language
	locales        map[domain.Language]*Locale
}

// Locale returns the locale for lang.
func (c *Catalog) Locale(lang domain.Language) (*Locale, bool) {
	l, ok := c.locales[lang]
	return l, ok
}

// Locales returns the locales in declaration order.
func (c *Catalog) Locales() []*Locale {
	out := make([]*Locale, 0, len(c.order))
	for _, lang := range c.order {
		out = append(out, c.locales[lang])
	}
	return out
}

// SelectLanguageNotice is shown when the visitor writes before picking a language.
func (c *Catalog) SelectLanguageNotice() string { return c.selectLanguage }

// StartFailedNotice is shown when a conversation cannot be started.
func (c *Catalog) StartFailedNotice() string { return c.startFailed }

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
})

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return loadDefault()
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return c, nil
}

// Load decodes and validates a YAML catalog.
func Load(r io.Reader) (*Catalog, error) {
	var doc catalogDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("decode catalog: empty document")
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	if len(doc.Locales) == 0 {
		return nil, errors.New("catalog has no locales")
	}

	c := &Catalog{
		selectLanguage: doc.SelectLanguage,
		startFailed:    doc.StartFailed,
		locales:        make(map[domain.Language]*Locale, len(doc.Locales)),
	}
	for _, ld := range doc.Locales {
		loc, err := ld.build()
		if err != nil {
			return nil, err
		}
		if _, dup := c.locales[loc.Language]; dup {
			return nil, fmt.Errorf("duplicate locale %q", loc.Language)
		}
		c.locales[loc.Language] = loc
		c.order = append(c.order, loc.Language)
	}
	return c, nil
}

type catalogDoc struct {
	SelectLanguage string      `yaml:"select_language"`
	StartFailed    string      `yaml:"start_failed"`
	Locales        []localeDoc `yaml:"locales"`
}

type localeDoc struct {
	Language   string               `yaml:"language"`
	Label      string               `yaml:"label"`
	Texts      Texts                `yaml:"texts"`
	Categories ordered[categoryDoc] `yaml:"categories"`
}

type categoryDoc struct {
	Title         string                  `yaml:"title"`
	Subcategories ordered[subcategoryDoc] `yaml:"subcategories"`
	Options       ordered[optionDoc]      `yaml:"options"`
}

type subcategoryDoc struct {
	Title   string             `yaml:"title"`
	Options ordered[optionDoc] `yaml:"options"`
}

type optionDoc struct {
	Title   string `yaml:"title"`
	Message string `yaml:"message"`
}

func (ld localeDoc) build() (*Locale, error) {
	lang, err := domain.ParseLanguage(ld.Language)
	if err != nil {
		return nil, fmt.Errorf("locale: %w", err)
	}
	if strings.TrimSpace(ld.Texts.Greeting) == "" {
		return nil, fmt.Errorf("locale %s: missing greeting", lang)
	}
	if len(ld.Categories) == 0 {
		return nil, fmt.Errorf("locale %s: no categories", lang)
	}

	label := ld.Label
	if label == "" {
		label = lang.Tag()
	}
	tree := &Tree{}
	for _, ce := range ld.Categories {
		cat, err := ce.Value.build(ce.Key)
		if err != nil {
			return nil, fmt.Errorf("locale %s: %w", lang, err)
		}
		tree.Categories = append(tree.Categories, cat)
	}
	return &Locale{Language: lang, Label: label, Texts: ld.Texts, Tree: tree}, nil
}

func (cd categoryDoc) build(key string) (*Node, error) {
	if cd.Title == "" {
		return nil, fmt.Errorf("category %q: missing title", key)
	}
	hasSubs, hasOpts := len(cd.Subcategories) > 0, len(cd.Options) > 0
	if hasSubs == hasOpts {
		return nil, fmt.Errorf("category %q: needs either subcategories or options", key)
	}

	n := &Node{Key: key, Title: cd.Title, Kind: KindCategory}
	for _, se := range cd.Subcategories {
		if se.Value.Title == "" {
			return nil, fmt.Errorf("subcategory %s/%s: missing title", key, se.Key)
		}
		if len(se.Value.Options) == 0 {
			return nil, fmt.Errorf("subcategory %s/%s: no options", key, se.Key)
		}
		sub := &Node{Key: se.Key, Title: se.Value.Title, Kind: KindSubcategory}
		opts, err := buildOptions(key+"/"+se.Key, se.Value.Options)
		if err != nil {
			return nil, err
		}
		sub.Children = opts
		n.Children = append(n.Children, sub)
	}
	if hasOpts {
		opts, err := buildOptions(key, cd.Options)
		if err != nil {
			return nil, err
		}
		n.Children = opts
	}
	return n, nil
}

func buildOptions(parent string, opts ordered[optionDoc]) ([]*Node, error) {
	out := make([]*Node, 0, len(opts))
	for _, oe := range opts {
		if oe.Value.Title == "" || oe.Value.Message == "" {
			return nil, fmt.Errorf("option %s/%s: needs a title and a message", parent, oe.Key)
		}
		out = append(out, &Node{Key: oe.Key, Title: oe.Value.Title, Kind: KindOption, Message: oe.Value.Message})
	}
	return out, nil
}

type entry[T any] struct {
	Key   string
	Value T
}

// ordered decodes a YAML mapping keeping its key order.
type ordered[T any] []entry[T]

func (o *ordered[T]) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", value.Line)
	}
	seen := make(map[string]struct{}, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := value.Content[i], value.Content[i+1]
		if k.Value == "" {
			return fmt.Errorf("line %d: empty key", k.Line)
		}
		if _, dup := seen[k.Value]; dup {
			return fmt.Errorf("line %d: duplicate key %q", k.Line, k.Value)
		}
		seen[k.Value] = struct{}{}

		var item T
		if err := decodeStrict(v, &item); err != nil {
			return fmt.Errorf("decode %q: %w", k.Value, err)
		}
		*o = append(*o, entry[T]{Key: k.Value, Value: item})
	}
	return nil
}

// decodeStrict decodes n rejecting unknown fields. Node.Decode does not carry
// the KnownFields setting of the outer decoder, so n is decoded on its own.
func decodeStrict(n *yaml.Node, out any) error {
	raw, err := yaml.Marshal(n)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(out)
}
