package keys

import "fmt"

const vkEscape = 0x1B

// Windows virtual-key codes for named keys.
var vkNames = map[uint32]string{
	0x08: "backspace",
	0x09: "tab",
	0x0C: "clear",
	0x0D: "enter",
	0x10: "shift",
	0x11: "ctrl",
	0x12: "alt",
	0x13: "pause",
	0x14: "caps_lock",
	0x1B: "esc",
	0x20: "space",
	0x21: "page_up",
	0x22: "page_down",
	0x23: "end",
	0x24: "home",
	0x25: "left",
	0x26: "up",
	0x27: "right",
	0x28: "down",
	0x2C: "print_screen",
	0x2D: "insert",
	0x2E: "delete",
	0x5B: "cmd_l",
	0x5C: "cmd_r",
	0x5D: "menu",
	0x90: "num_lock",
	0x91: "scroll_lock",
	0xA0: "shift_l",
	0xA1: "shift_r",
	0xA2: "ctrl_l",
	0xA3: "ctrl_r",
	0xA4: "alt_l",
	0xA5: "alt_r",
	0xAD: "media_volume_mute",
	0xAE: "media_volume_down",
	0xAF: "media_volume_up",
	0xB0: "media_next",
	0xB1: "media_previous",
	0xB3: "media_play_pause",
}

// OEM and numpad keys that produce a character on a US layout.
var vkChars = map[uint32]rune{
	0x6A: '*',
	0x6B: '+',
	0x6D: '-',
	0x6E: '.',
	0x6F: '/',
	0xBA: ';',
	0xBB: '=',
	0xBC: ',',
	0xBD: '-',
	0xBE: '.',
	0xBF: '/',
	0xC0: '`',
	0xDB: '[',
	0xDC: '\\',
	0xDD: ']',
	0xDE: '\'',
}

var (
	knownNames = map[string]struct{}{}
	nameToVK   = map[string]uint32{}
)

func init() {
	for vk, name := range vkNames {
		knownNames[name] = struct{}{}
		if existing, ok := nameToVK[name]; !ok || vk < existing {
			nameToVK[name] = vk
		}
	}
	for i := uint32(1); i <= 24; i++ {
		name := fmt.Sprintf("f%d", i)
		knownNames[name] = struct{}{}
		nameToVK[name] = 0x6F + i
	}
	for _, name := range []string{"alt_gr", "cmd", "shift_lock"} {
		knownNames[name] = struct{}{}
	}
}

// FromVK maps a Windows virtual-key code to a Key. Letters map to lower case
// characters since modifier state is not part of the raw code. Codes without
// a mapping keep only the raw code and decode to the empty pair.
func FromVK(vk uint32) Key {
	if name, ok := vkNames[vk]; ok {
		return Key{Name: name, Code: vk}
	}
	switch {
	case vk >= 0x41 && vk <= 0x5A:
		return Key{Char: rune(vk) + ('a' - 'A'), Code: vk}
	case vk >= 0x30 && vk <= 0x39:
		return Key{Char: rune(vk), Code: vk}
	case vk >= 0x60 && vk <= 0x69:
		return Key{Char: rune('0' + vk - 0x60), Code: vk}
	case vk >= 0x70 && vk <= 0x87:
		return Key{Name: fmt.Sprintf("f%d", vk-0x6F), Code: vk}
	}
	if r, ok := vkChars[vk]; ok {
		return Key{Char: r, Code: vk}
	}
	return Key{Code: vk}
}
