package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// Locales shipped in LocalesFS.
var Locales = []string{"en", "zh", "ja"}

type Translator struct {
	translations map[string]string
}

// NewTranslator loads locales/<langCode>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", langCode+".yaml")
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	return newTranslatorFromBytes(data)
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

// T (Translate) returns key itself when it has no translation.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

// Has reports whether key is translated.
func (t *Translator) Has(key string) bool {
	_, ok := t.translations[key]
	return ok
}

// SystemPrompt is the instruction sent ahead of every answer request,
// asking for the answer in this locale's language.
func (t *Translator) SystemPrompt() string {
	return t.T("system_prompt", t.T("language"))
}

// OCRPrompt is the instruction sent with an image to extract its text.
func (t *Translator) OCRPrompt() string {
	return t.T("ocr_prompt")
}

// ErrorMessage returns the notice for a provider error code, falling back
// to error.code-default for unknown codes.
func (t *Translator) ErrorMessage(code int) string {
	key := "error.code" + strconv.Itoa(code)
	if t.Has(key) {
		return t.T(key)
	}
	return t.T("error.code-default")
}

// Catalog holds one Translator per locale.
type Catalog struct {
	fallback string
	byLocale map[string]*Translator
}

// NewCatalog loads every locale in Locales from fsys. fallback is used for
// unknown locales and must be one of them.
func NewCatalog(fsys fs.FS, fallback string) (*Catalog, error) {
	c := &Catalog{fallback: fallback, byLocale: make(map[string]*Translator, len(Locales))}
	for _, l := range Locales {
		tr, err := NewTranslator(fsys, l)
		if err != nil {
			return nil, err
		}
		c.byLocale[l] = tr
	}
	if _, ok := c.byLocale[fallback]; !ok {
		return nil, fmt.Errorf("unknown fallback locale %q", fallback)
	}
	return c, nil
}

// For returns the translator of locale or the fallback one.
func (c *Catalog) For(locale string) *Translator {
	if t, ok := c.byLocale[locale]; ok {
		return t
	}
	return c.byLocale[c.fallback]
}
