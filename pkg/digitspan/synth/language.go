package synth

// DefaultLanguage is used by the settings layer when none is configured.
const DefaultLanguage = "Hebrew"

var languageOrder = []string{"English", "Hebrew", "Arabic", "Amharic"}

var languageCodes = map[string]string{
	"English": "en",
	"Hebrew":  "iw",
	"Arabic":  "ar",
	"Amharic": "am",
}

// LanguageCode maps a language name to the speech provider's code. Unknown
// names fall back to English.
func LanguageCode(lang string) string {
	if code, ok := languageCodes[lang]; ok {
		return code
	}
	return "en"
}

// Languages returns the supported language names in menu order.
func Languages() []string {
	out := make([]string, len(languageOrder))
	copy(out, languageOrder)
	return out
}

func IsSupported(lang string) bool {
	_, ok := languageCodes[lang]
	return ok
}
