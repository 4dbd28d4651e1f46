package schema

import "strings"

// DefaultLanguage is used for fresh sessions and rooms without a language.
const DefaultLanguage Language = "javascript"

// WelcomeCode seeds the local file set before a room is joined.
const WelcomeCode = "// Welcome to CodeSync!\n// Create a new room or join an existing one to start collaborating.\n\nconsole.log(\"Hello, World!\");"

var languages = []Language{"javascript", "python", "cpp", "typescript", "html", "css"}

// Languages returns the supported editor languages.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// NormalizeLanguage returns a canonical language tag if supported.
func NormalizeLanguage(value string) (Language, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "js":
		normalized = "javascript"
	case "py":
		normalized = "python"
	case "ts":
		normalized = "typescript"
	case "c++":
		normalized = "cpp"
	}
	for _, lang := range languages {
		if string(lang) == normalized {
			return lang, nil
		}
	}
	return "", ErrInvalidLanguage
}

// FileExtension maps a language to its file extension.
func FileExtension(lang Language) string {
	switch lang {
	case "javascript":
		return "js"
	case "python":
		return "py"
	case "cpp":
		return "cpp"
	case "typescript":
		return "ts"
	case "html":
		return "html"
	case "css":
		return "css"
	default:
		return "txt"
	}
}

// DefaultCode returns the starter template for a language.
func DefaultCode(lang Language) string {
	switch lang {
	case "javascript":
		return "// JavaScript Code\nconsole.log(\"Hello, World!\");"
	case "python":
		return "# Python Code\nprint(\"Hello, World!\")"
	case "cpp":
		return "#include <iostream>\nusing namespace std;\n\nint main() {\n    cout << \"Hello, World!\" << endl;\n    return 0;\n}"
	case "typescript":
		return "// TypeScript Code\nconst message: string = \"Hello, World!\";\nconsole.log(message);"
	case "html":
		return "<!DOCTYPE html>\n<html>\n<head>\n    <title>Hello World</title>\n</head>\n<body>\n    <h1>Hello, World!</h1>\n</body>\n</html>"
	case "css":
		return "/* CSS Code */\nbody {\n    font-family: Arial, sans-serif;\n    background-color: #f0f0f0;\n}\n\nh1 {\n    color: #333;\n    text-align: center;\n}"
	default:
		return "// Welcome to CodeSync!"
	}
}

// FileName builds "<stem>.<ext>" for a language.
func FileName(stem string, lang Language) string {
	if stem == "" {
		stem = "untitled"
	}
	return stem + "." + FileExtension(lang)
}

// RenameForLanguage keeps the stem of name (up to the first dot) and swaps the extension.
func RenameForLanguage(name string, lang Language) string {
	stem := name
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		stem = name[:idx]
	}
	return FileName(stem, lang)
}
