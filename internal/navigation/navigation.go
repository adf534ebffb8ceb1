// Package navigation implements the topic menu state machine.
//
// The engine walks one locale's topic tree across three screens: the root
// categories, the subcategories of a category, and the options of a category
// or subcategory. Every transition returns the Screen to render. Invalid
// moves leave the state untouched.
package navigation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/aran-respon/internal/topics"
)

var (
	// ErrUnknownKey is returned when a key does not name a child of the current node.
	ErrUnknownKey = errors.New("unknown topic key")
	// ErrInvalidTransition is returned for a move the current screen does not offer.
	ErrInvalidTransition = errors.New("invalid navigation transition")
)

// Level names a menu screen.
type Level string

const (
	LevelCategories    Level = "categories"
	LevelSubcategories Level = "subcategories"
	LevelOptions       Level = "options"
)

// State is the position in the topic tree.
type State struct {
	Level Level    `json:"level"`
	Path  []string `json:"path"`
}

// Entry is one selectable item on a screen.
type Entry struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Kind  string `json:"kind"`
}

// Screen is the render data for one menu.
type Screen struct {
	Level      Level    `json:"level"`
	Path       []string `json:"path"`
	Entries    []Entry  `json:"entries"`
	Trail      []string `json:"trail,omitempty"`
	Breadcrumb string   `json:"breadcrumb,omitempty"`
}

// ActionType names a navigation request.
type ActionType string

const (
	ActionHome        ActionType = "home"
	ActionBack        ActionType = "back"
	ActionCategory    ActionType = "category"
	ActionSubcategory ActionType = "subcategory"
)

// Action is a navigation request as received from a transport.
type Action struct {
	Type        ActionType `json:"action"`
	Category    string     `json:"category,omitempty"`
	Subcategory string     `json:"subcategory,omitempty"`
}

// Engine is the navigation state machine for one locale.
// It is not safe for concurrent use.
type Engine struct {
	locale *topics.Locale
	state  State
}

// New returns an engine positioned on the root categories.
func New(locale *topics.Locale) *Engine {
	return &Engine{locale: locale, state: State{Level: LevelCategories}}
}

// State returns a copy of the current position.
func (e *Engine) State() State {
	return State{Level: e.state.Level, Path: append([]string(nil), e.state.Path...)}
}

// Screen renders the current position.
func (e *Engine) Screen() Screen {
	s, err := e.render(e.state)
	if err != nil {
		// The state is only ever set after a successful render.
		panic(fmt.Sprintf("navigation: inconsistent state %v: %v", e.state, err))
	}
	return s
}

// Home returns to the root categories.
func (e *Engine) Home() Screen {
	e.state = State{Level: LevelCategories}
	return e.Screen()
}

// Category opens a root category.
func (e *Engine) Category(key string) (Screen, error) {
	if e.state.Level != LevelCategories {
		return Screen{}, fmt.Errorf("%w: category from %s", ErrInvalidTransition, e.state.Level)
	}
	cat, ok := e.locale.Tree.Category(key)
	if !ok {
		return Screen{}, fmt.Errorf("%w: category %q", ErrUnknownKey, key)
	}
	next := State{Level: LevelOptions, Path: []string{key}}
	if cat.HasSubcategories() {
		next.Level = LevelSubcategories
	}
	return e.move(next)
}

// Subcategory opens a subcategory of the category currently shown.
func (e *Engine) Subcategory(key, subKey string) (Screen, error) {
	if e.state.Level != LevelSubcategories || e.state.Path[0] != key {
		return Screen{}, fmt.Errorf("%w: subcategory %s/%s from %s", ErrInvalidTransition, key, subKey, e.state.Level)
	}
	cat, _ := e.locale.Tree.Category(key)
	if _, ok := cat.Child(subKey); !ok {
		return Screen{}, fmt.Errorf("%w: subcategory %s/%s", ErrUnknownKey, key, subKey)
	}
	return e.move(State{Level: LevelOptions, Path: []string{key, subKey}})
}

// Back moves one level up.
func (e *Engine) Back() (Screen, error) {
	switch {
	case e.state.Level == LevelSubcategories:
		return e.move(State{Level: LevelCategories})
	case e.state.Level == LevelOptions && len(e.state.Path) == 2:
		return e.move(State{Level: LevelSubcategories, Path: []string{e.state.Path[0]}})
	case e.state.Level == LevelOptions:
		return e.move(State{Level: LevelCategories})
	default:
		return Screen{}, fmt.Errorf("%w: back from %s", ErrInvalidTransition, e.state.Level)
	}
}

// Option returns the literal message of an option on the current screen.
// The position does not change.
func (e *Engine) Option(key string) (string, error) {
	if e.state.Level != LevelOptions {
		return "", fmt.Errorf("%w: option from %s", ErrInvalidTransition, e.state.Level)
	}
	node, err := e.node(e.state.Path)
	if err != nil {
		return "", err
	}
	opt, ok := node.Child(key)
	if !ok {
		return "", fmt.Errorf("%w: option %q", ErrUnknownKey, key)
	}
	return opt.Message, nil
}

// Apply performs a transport-level action.
func (e *Engine) Apply(a Action) (Screen, error) {
	switch a.Type {
	case ActionHome:
		return e.Home(), nil
	case ActionBack:
		return e.Back()
	case ActionCategory:
		return e.Category(a.Category)
	case ActionSubcategory:
		return e.Subcategory(a.Category, a.Subcategory)
	default:
		return Screen{}, fmt.Errorf("%w: action %q", ErrInvalidTransition, a.Type)
	}
}

func (e *Engine) move(next State) (Screen, error) {
	s, err := e.render(next)
	if err != nil {
		return Screen{}, err
	}
	e.state = next
	return s, nil
}

func (e *Engine) node(path []string) (*topics.Node, error) {
	cat, ok := e.locale.Tree.Category(path[0])
	if !ok {
		return nil, fmt.Errorf("%w: category %q", ErrUnknownKey, path[0])
	}
	if len(path) == 1 {
		return cat, nil
	}
	sub, ok := cat.Child(path[1])
	if !ok {
		return nil, fmt.Errorf("%w: subcategory %s/%s", ErrUnknownKey, path[0], path[1])
	}
	return sub, nil
}

func (e *Engine) render(st State) (Screen, error) {
	s := Screen{Level: st.Level, Path: append([]string{}, st.Path...)}
	if st.Level == LevelCategories {
		s.Entries = entries(e.locale.Tree.Categories)
		return s, nil
	}

	node, err := e.node(st.Path)
	if err != nil {
		return Screen{}, err
	}
	s.Entries = entries(node.Children)

	cat, _ := e.locale.Tree.Category(st.Path[0])
	s.Trail = []string{cat.Title}
	if node != cat {
		s.Trail = append(s.Trail, node.Title)
	}
	s.Breadcrumb = e.locale.Texts.Navigation.Breadcrumb + " " + strings.Join(s.Trail, " > ")
	return s, nil
}

func entries(nodes []*topics.Node) []Entry {
	out := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Entry{Key: n.Key, Title: n.Title, Kind: n.Kind.String()})
	}
	return out
}
