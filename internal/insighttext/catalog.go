package insighttext

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

const (
	LangEN = "en"
	LangRU = "ru"
)

//go:embed locales/*.json
var embeddedLocales embed.FS

type Catalog struct {
	defaultLanguage string
	locales         map[string]map[string]string
	supported       []string
}

func NewEmbeddedCatalog(defaultLanguage string) (*Catalog, error) {
	locales, err := fs.Sub(embeddedLocales, "locales")
	if err != nil {
		return nil, fmt.Errorf("open embedded locales: %w", err)
	}
	return NewCatalog(defaultLanguage, locales)
}

func NewCatalog(defaultLanguage string, locales fs.FS) (*Catalog, error) {
	catalog := &Catalog{locales: map[string]map[string]string{}}

	entries, err := fs.ReadDir(locales, ".")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".json" {
			continue
		}

		language := strings.TrimSuffix(strings.ToLower(entry.Name()), ".json")
		content, err := fs.ReadFile(locales, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", language, err)
		}

		messages := map[string]string{}
		if err := json.Unmarshal(content, &messages); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", language, err)
		}
		if len(messages) == 0 {
			return nil, fmt.Errorf("locale %s is empty", language)
		}
		catalog.locales[language] = messages
		catalog.supported = append(catalog.supported, language)
	}

	if _, ok := catalog.locales[LangEN]; !ok {
		return nil, fmt.Errorf("required locale %q missing", LangEN)
	}
	sort.Strings(catalog.supported)

	catalog.defaultLanguage = LangEN
	catalog.defaultLanguage = catalog.NormalizeLanguage(defaultLanguage)
	return catalog, nil
}

func (catalog *Catalog) DefaultLanguage() string {
	return catalog.defaultLanguage
}

func (catalog *Catalog) SupportedLanguages() []string {
	result := make([]string, len(catalog.supported))
	copy(result, catalog.supported)
	return result
}

func (catalog *Catalog) NormalizeLanguage(raw string) string {
	if language := normalizeLanguageTag(raw); catalog.isSupported(language) {
		return language
	}
	return catalog.defaultLanguage
}

// DetectFromAcceptLanguage returns the first supported tag in header order; q-values are ignored.
func (catalog *Catalog) DetectFromAcceptLanguage(raw string) string {
	for _, part := range strings.Split(raw, ",") {
		token := strings.TrimSpace(strings.Split(part, ";")[0])
		if language := normalizeLanguageTag(token); catalog.isSupported(language) {
			return language
		}
	}
	return catalog.defaultLanguage
}

func (catalog *Catalog) Translate(language string, key string) string {
	if value, ok := catalog.locales[catalog.NormalizeLanguage(language)][key]; ok && strings.TrimSpace(value) != "" {
		return value
	}
	if value, ok := catalog.locales[catalog.defaultLanguage][key]; ok && strings.TrimSpace(value) != "" {
		return value
	}
	return key
}

func (catalog *Catalog) Translatef(language string, key string, args ...any) string {
	return fmt.Sprintf(catalog.Translate(language, key), args...)
}

func (catalog *Catalog) isSupported(language string) bool {
	if language == "" {
		return false
	}
	_, ok := catalog.locales[language]
	return ok
}

func normalizeLanguageTag(raw string) string {
	language := strings.ToLower(strings.TrimSpace(raw))
	language = strings.ReplaceAll(language, "_", "-")
	if separator := strings.Index(language, "-"); separator >= 0 {
		language = language[:separator]
	}
	return language
}
