// Package keys classifies keyboard keys reported by input hooks into printable
// characters and named keys, and matches configured key chords against them.
package keys

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Key identifies a key as reported by an input hook. Hooks fill whichever
// fields they know: a printable character, a symbolic name, or the raw
// platform virtual-key code.
type Key struct {
	Char rune   `json:"char,omitempty"`
	Name string `json:"name,omitempty"`
	Code uint32 `json:"code,omitempty"`
}

// Esc is the escape key.
var Esc = Key{Name: "esc", Code: vkEscape}

// IsZero reports whether k carries no information at all.
func (k Key) IsZero() bool {
	return k.Char == 0 && k.Name == "" && k.Code == 0
}

// String renders the decoded form of the key, falling back to the raw code.
func (k Key) String() string {
	code, name := Decode(k)
	switch {
	case code != "":
		return code
	case name != "":
		return name
	case k.Code != 0:
		return fmt.Sprintf("vk_%d", k.Code)
	default:
		return "<unknown>"
	}
}

// Decode classifies k. A printable character yields (code, ""), a named key
// yields ("", name), and anything that cannot be classified yields ("", "").
func Decode(k Key) (code, name string) {
	if k.Char != 0 {
		if n, ok := charNames[k.Char]; ok {
			return "", n
		}
		if unicode.IsPrint(k.Char) {
			return string(k.Char), ""
		}
	}
	if n := canonical(k.Name); n != "" {
		return "", n
	}
	if k.Code != 0 {
		if v := FromVK(k.Code); v.Char != 0 || v.Name != "" {
			return Decode(Key{Char: v.Char, Name: v.Name})
		}
	}
	return "", ""
}

// Matches reports whether k and other denote the same key. Characters match
// regardless of case.
func (k Key) Matches(other Key) bool {
	if k.IsZero() || other.IsZero() {
		return false
	}
	kc, kn := Decode(k)
	oc, on := Decode(other)
	if kn != "" || on != "" {
		return kn == on
	}
	if kc != "" || oc != "" {
		return strings.EqualFold(kc, oc)
	}
	return k.Code == other.Code
}

// ID returns a stable identifier used for chord state. Left and right
// modifier variants share the identifier of their family.
func (k Key) ID() string {
	code, name := Decode(k)
	switch {
	case name != "":
		return family(name)
	case code != "":
		return strings.ToLower(code)
	case k.Code != 0:
		return fmt.Sprintf("vk_%d", k.Code)
	default:
		return ""
	}
}

// Parse reads a key from configuration text such as "esc", "Escape", "F5" or
// "q". Single characters become character keys, everything else must be a
// known key name.
func Parse(spec string) (Key, error) {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return Key{}, fmt.Errorf("empty key")
	}
	if utf8.RuneCountInString(trimmed) == 1 {
		r, _ := utf8.DecodeRuneInString(trimmed)
		return Key{Char: unicode.ToLower(r)}, nil
	}
	name := canonical(trimmed)
	if _, ok := knownNames[name]; !ok {
		return Key{}, fmt.Errorf("unknown key %q", spec)
	}
	return Key{Name: name, Code: nameToVK[name]}, nil
}

var charNames = map[rune]string{
	' ':  "space",
	'\t': "tab",
	'\r': "enter",
	'\n': "enter",
	'\b': "backspace",
	0x1b: "esc",
	0x7f: "delete",
}

var aliases = map[string]string{
	"escape":      "esc",
	"return":      "enter",
	"control":     "ctrl",
	"option":      "alt",
	"win":         "cmd",
	"super":       "cmd",
	"meta":        "cmd",
	"command":     "cmd",
	"del":         "delete",
	"ins":         "insert",
	"pgup":        "page_up",
	"pageup":      "page_up",
	"pgdn":        "page_down",
	"pagedown":    "page_down",
	"capslock":    "caps_lock",
	"printscreen": "print_screen",
	"prtsc":       "print_screen",
	"scrolllock":  "scroll_lock",
	"numlock":     "num_lock",
	"back":        "backspace",
	"arrow_up":    "up",
	"arrow_down":  "down",
	"arrow_left":  "left",
	"arrow_right": "right",
}

func canonical(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return ""
	}
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	if alias, ok := aliases[n]; ok {
		return alias
	}
	return n
}

func family(name string) string {
	for _, base := range []string{"ctrl", "shift", "alt", "cmd"} {
		if name == base || strings.HasPrefix(name, base+"_") {
			return base
		}
	}
	return name
}
