package config

// DefaultLanguage is the response language used when a request names none.
const DefaultLanguage = "en"

// SupportedLanguages maps language code to display name for the
// language-config endpoint and prompt labeling.
var SupportedLanguages = map[string]string{
	"en":    "English",
	"ja":    "Japanese (日本語)",
	"zh":    "Mandarin Chinese (中文)",
	"zh-tw": "Traditional Chinese (繁體中文)",
	"es":    "Spanish (Español)",
	"kr":    "Korean (한국어)",
	"vi":    "Vietnamese (Tiếng Việt)",
	"pt-br": "Brazilian Portuguese (Português Brasileiro)",
	"fr":    "Français (French)",
	"ru":    "Russian (Русский)",
}

// NormalizeLanguage returns code when supported, else the default.
func NormalizeLanguage(code string) string {
	if _, ok := SupportedLanguages[code]; ok {
		return code
	}
	return DefaultLanguage
}

// LanguageName returns the display name for a supported code.
func LanguageName(code string) string {
	if name, ok := SupportedLanguages[code]; ok {
		return name
	}
	return SupportedLanguages[DefaultLanguage]
}
