package hotkey

import (
	"strings"

	"golang.design/x/hotkey"
)

// ConflictInfo represents information about a known shortcut conflict
type ConflictInfo struct {
	Name        string
	Description string
	Config      Config
}

// knownConflicts lists common ctrl+shift shortcuts owned by browsers and desktops
var knownConflicts = []ConflictInfo{
	{Name: "Task Manager", Description: "Windows Task Manager", Config: mustParse("ctrl+shift+escape")},
	{Name: "Reopen Tab", Description: "Browser reopen closed tab", Config: mustParse("ctrl+shift+t")},
	{Name: "Private Window", Description: "Browser private window", Config: mustParse("ctrl+shift+n")},
	{Name: "Paste Plain", Description: "Paste without formatting", Config: mustParse("ctrl+shift+v")},
	{Name: "Terminal Copy", Description: "Terminal copy", Config: mustParse("ctrl+shift+c")},
	{Name: "Mute Microphone", Description: "Meeting apps toggle the microphone", Config: mustParse("ctrl+shift+a")},
}

func mustParse(shortcut string) Config {
	cfg, err := Parse(shortcut)
	if err != nil {
		panic(err)
	}
	return cfg
}

// CheckConflicts checks if the given hotkey conflicts with known shortcuts
func CheckConflicts(cfg Config) []ConflictInfo {
	var conflicts []ConflictInfo
	for _, known := range knownConflicts {
		if hotkeyMatches(cfg, known.Config) {
			conflicts = append(conflicts, known)
		}
	}
	return conflicts
}

// hotkeyMatches checks if two hotkey combinations are identical
func hotkeyMatches(a, b Config) bool {
	if a.Key != b.Key || len(a.Modifiers) != len(b.Modifiers) {
		return false
	}

	mods := make(map[hotkey.Modifier]bool, len(a.Modifiers))
	for _, mod := range a.Modifiers {
		mods[mod] = true
	}
	for _, mod := range b.Modifiers {
		if !mods[mod] {
			return false
		}
	}
	return true
}

// Format returns a human-readable form such as "Ctrl+Shift+M"
func Format(cfg Config) string {
	var parts []string
	for _, mod := range cfg.Modifiers {
		switch mod {
		case hotkey.ModCtrl:
			parts = append(parts, "Ctrl")
		case hotkey.ModShift:
			parts = append(parts, "Shift")
		}
	}
	return strings.Join(append(parts, keyToString(cfg.Key)), "+")
}

// keyToString converts a hotkey.Key to a display string
func keyToString(key hotkey.Key) string {
	for name, k := range keyNames {
		if k != key {
			continue
		}
		if len(name) == 1 {
			return strings.ToUpper(name)
		}
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return "Unknown"
}
