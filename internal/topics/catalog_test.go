package topics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashureev/aran-respon/internal/domain"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	locales := c.Locales()
	require.Len(t, locales, 3)
	require.Equal(t, domain.Catalan, locales[0].Language)
	require.Equal(t, domain.Spanish, locales[1].Language)
	require.Equal(t, domain.Aranese, locales[2].Language)
	require.Equal(t, "Selecciona un idioma primer / Selecciona un idioma primero", c.SelectLanguageNotice())

	for _, loc := range locales {
		var keys []string
		for _, cat := range loc.Tree.Categories {
			keys = append(keys, cat.Key)
		}
		require.Equal(t, []string{"citas", "servicios", "informacion", "otras"}, keys, loc.Language)
		require.NotEmpty(t, loc.Texts.Greeting)
		require.Contains(t, loc.Texts.Notices.TooLong, "%d")
	}
}

func TestDefaultCatalogCatalanTree(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	ca, ok := c.Locale(domain.Catalan)
	require.True(t, ok)
	require.Equal(t, "**Hola! Sóc l'assistent virtual d'ARAN RESPON.** Com puc ajudar-te?", ca.Texts.Greeting)
	require.Equal(t, "Estàs a:", ca.Texts.Navigation.Breadcrumb)

	citas, ok := ca.Tree.Category("citas")
	require.True(t, ok)
	require.True(t, citas.HasSubcategories())
	require.Equal(t, "Cites mèdiques", citas.Title)

	pedir, ok := citas.Child("pedir")
	require.True(t, ok)
	require.Equal(t, KindSubcategory, pedir.Kind)

	var order []string
	for _, o := range pedir.Children {
		order = append(order, o.Key)
	}
	require.Equal(t, []string{"medicina-general", "pediatria", "especialistas"}, order)

	ped, ok := pedir.Child("pediatria")
	require.True(t, ok)
	require.Equal(t, KindOption, ped.Kind)
	require.Equal(t, "Vull demanar una cita de pediatria", ped.Message)

	info, ok := ca.Tree.Category("informacion")
	require.True(t, ok)
	require.False(t, info.HasSubcategories())
	require.Len(t, info.Children, 4)

	_, ok = ca.Tree.Category("missing")
	require.False(t, ok)
}

const minimal = `
locales:
  - language: ca
    texts:
      greeting: "Hola"
    categories:
      b:
        title: B
        options:
          z: {title: Z, message: "zeta"}
          a: {title: A, message: "alfa"}
      a:
        title: A
        subcategories:
          s:
            title: S
            options:
              o: {title: O, message: "o"}
`

func TestLoadKeepsMappingOrder(t *testing.T) {
	c, err := Load(strings.NewReader(minimal))
	require.NoError(t, err)
	ca, ok := c.Locale(domain.Catalan)
	require.True(t, ok)
	require.Equal(t, "català", ca.Label)
	require.Equal(t, "b", ca.Tree.Categories[0].Key)
	require.Equal(t, "a", ca.Tree.Categories[1].Key)
	require.Equal(t, "z", ca.Tree.Categories[0].Children[0].Key)
	require.Equal(t, "a", ca.Tree.Categories[0].Children[1].Key)
}

func TestLoadRejectsInvalidCatalogs(t *testing.T) {
	tests := map[string]string{
		"empty":         ``,
		"no locales":    `locales: []`,
		"unknown field": "locales:\n  - language: ca\n    colour: red\n",
		"unknown category field": `
locales:
  - language: ca
    texts: {greeting: "Hola"}
    categories:
      a: {title: A, icon: x, options: {o: {title: O, message: m}}}
`,
		"unknown subcategory field": `
locales:
  - language: ca
    texts: {greeting: "Hola"}
    categories:
      a:
        title: A
        subcategories: {s: {title: S, colour: red, options: {o: {title: O, message: m}}}}
`,
		"unknown option field": `
locales:
  - language: ca
    texts: {greeting: "Hola"}
    categories:
      a: {title: A, options: {o: {title: O, message: m, extra: y}}}
`,
		"unknown language": `
locales:
  - language: fr
    texts: {greeting: "Salut"}
    categories:
      a: {title: A, options: {o: {title: O, message: m}}}
`,
		"both children": `
locales:
  - language: ca
    texts: {greeting: "Hola"}
    categories:
      a:
        title: A
        options: {o: {title: O, message: m}}
        subcategories: {s: {title: S, options: {o: {title: O, message: m}}}}
`,
		"no children": `
locales:
  - language: ca
    texts: {greeting: "Hola"}
    categories:
      a: {title: A}
`,
		"option without message": `
locales:
  - language: ca
    texts: {greeting: "Hola"}
    categories:
      a: {title: A, options: {o: {title: O}}}
`,
		"duplicate key": `
locales:
  - language: ca
    texts: {greeting: "Hola"}
    categories:
      a: {title: A, options: {o: {title: O, message: m}, o: {title: P, message: n}}}
`,
		"duplicate locale": `
locales:
  - language: ca
    texts: {greeting: "Hola"}
    categories:
      a: {title: A, options: {o: {title: O, message: m}}}
  - language: CA
    texts: {greeting: "Hola"}
    categories:
      a: {title: A, options: {o: {title: O, message: m}}}
`,
		"missing greeting": `
locales:
  - language: ca
    categories:
      a: {title: A, options: {o: {title: O, message: m}}}
`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, c.Locales(), 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "category", KindCategory.String())
	require.Equal(t, "subcategory", KindSubcategory.String())
	require.Equal(t, "option", KindOption.String())
	require.Equal(t, "unknown", Kind(9).String())
}
