// Package topics holds the per-language widget texts and topic trees.
//
// A tree has three levels: categories, subcategories and options. A category
// holds either subcategories or options (never both), a subcategory holds
// options, and an option carries the literal message sent when it is picked.
// Child order is screen order. Trees are immutable once loaded.
package topics

import "github.com/ashureev/aran-respon/internal/domain"

// Kind tags the variant of a Node.
type Kind int

const (
	KindCategory Kind = iota
	KindSubcategory
	KindOption
)

func (k Kind) String() string {
	switch k {
	case KindCategory:
		return "category"
	case KindSubcategory:
		return "subcategory"
	case KindOption:
		return "option"
	default:
		return "unknown"
	}
}

// Node is one entry of a topic tree.
type Node struct {
	Key      string
	Title    string
	Kind     Kind
	Message  string // set only on options
	Children []*Node
}

// Child returns the direct child with the given key.
func (n *Node) Child(key string) (*Node, bool) {
	for _, c := range n.Children {
		if c.Key == key {
			return c, true
		}
	}
	return nil, false
}

// HasSubcategories reports whether a category branches into subcategories.
func (n *Node) HasSubcategories() bool {
	return n.Kind == KindCategory && len(n.Children) > 0 && n.Children[0].Kind == KindSubcategory
}

// Tree is the ordered list of root categories of one language.
type Tree struct {
	Categories []*Node
}

// Category returns the root category with the given key.
func (t *Tree) Category(key string) (*Node, bool) {
	for _, c := range t.Categories {
		if c.Key == key {
			return c, true
		}
	}
	return nil, false
}

// Navigation holds the labels of the navigation controls.
type Navigation struct {
	Back       string `yaml:"back" json:"back"`
	Home       string `yaml:"home" json:"home"`
	Breadcrumb string `yaml:"breadcrumb" json:"breadcrumb"`
}

// Notices holds the wording of transient user notices.
type Notices struct {
	TooLong    string `yaml:"too_long" json:"tooLong"` // takes the length limit as %d
	Offline    string `yaml:"offline" json:"offline"`
	Timeout    string `yaml:"timeout" json:"timeout"`
	Connection string `yaml:"connection" json:"connection"`
}

// Texts holds the localized widget strings.
type Texts struct {
	ButtonText    string     `yaml:"button_text" json:"buttonText"`
	Placeholder   string     `yaml:"placeholder" json:"placeholder"`
	Send          string     `yaml:"send" json:"send"`
	Sending       string     `yaml:"sending" json:"sending"`
	Greeting      string     `yaml:"greeting" json:"greeting"`
	PoweredBy     string     `yaml:"powered_by" json:"poweredBy"`
	OfflineStatus string     `yaml:"offline_status" json:"offlineStatus"`
	Navigation    Navigation `yaml:"navigation" json:"navigation"`
	Notices       Notices    `yaml:"notices" json:"notices"`
}

// Locale bundles everything the widget shows in one language.
type Locale struct {
	Language domain.Language
	Label    string
	Texts    Texts
	Tree     *Tree
}
