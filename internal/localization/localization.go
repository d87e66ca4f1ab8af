// Package localization provides the client-visible error messages.
// Translations are JSON files named after the language tag (e.g. "pt-BR.json");
// a default set is embedded in the binary and a directory may override it.
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
)

//go:embed locales/*.json
var embeddedLocales embed.FS

// Localizer manages the translations for the application.
type Localizer struct {
	translations map[string]map[string]string
	fallback     string
	mu           sync.RWMutex
}

// NewDefaultLocalizer loads the embedded translations.
func NewDefaultLocalizer(fallback string) (*Localizer, error) {
	sub, err := fs.Sub(embeddedLocales, "locales")
	if err != nil {
		return nil, err
	}
	return NewLocalizer(sub, fallback)
}

// NewLocalizer loads every *.json file at the root of fsys.
func NewLocalizer(fsys fs.FS, fallback string) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
		fallback:     fallback,
	}
	if err := l.load(fsys); err != nil {
		return nil, err
	}
	return l, nil
}

// LoadDir merges the translations found in dir over the current ones.
func (l *Localizer) LoadDir(dir string) error {
	return l.load(os.DirFS(dir))
}

func (l *Localizer) load(fsys fs.FS) error {
	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("failed to read localization directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		lang := strings.TrimSuffix(file.Name(), ".json")
		data, err := fs.ReadFile(fsys, path.Clean(file.Name()))
		if err != nil {
			return fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}

		l.mu.Lock()
		if l.translations[lang] == nil {
			l.translations[lang] = make(map[string]string, len(translations))
		}
		for k, v := range translations {
			l.translations[lang][k] = v
		}
		l.mu.Unlock()
	}
	return nil
}

// GetString returns the localized string for key. Lookup order: the exact
// language, any language sharing its base ("pt" for "pt-PT"), the fallback
// language, and finally the key itself.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if value, ok := l.translations[lang][key]; ok {
		return value
	}

	if base := baseLanguage(lang); base != "" {
		for tag, entries := range l.translations {
			if baseLanguage(tag) != base {
				continue
			}
			if value, ok := entries[key]; ok {
				return value
			}
		}
	}

	if value, ok := l.translations[l.fallback][key]; ok {
		return value
	}

	return key
}

// Languages lists the loaded language tags.
func (l *Localizer) Languages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.translations))
	for tag := range l.translations {
		out = append(out, tag)
	}
	return out
}

func baseLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		return tag[:i]
	}
	return tag
}
