package schema

import "strings"

// DefaultTheme is the default UI theme name.
const DefaultTheme ThemeName = "darkPurple"

var themeNames = []ThemeName{
	"darkPurple",
	"light",
	"redMaroon",
}

// AvailableThemes returns the supported theme names.
func AvailableThemes() []ThemeName {
	out := make([]ThemeName, len(themeNames))
	copy(out, themeNames)
	return out
}

// NormalizeThemeName returns a canonical theme name if supported.
func NormalizeThemeName(name string) (ThemeName, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	switch normalized {
	case "darkpurple", "dark-purple", "dark":
		return "darkPurple", true
	case "light":
		return "light", true
	case "redmaroon", "red-maroon", "maroon":
		return "redMaroon", true
	default:
		return "", false
	}
}
