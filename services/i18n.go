package services

import (
	_ "embed"
	"fmt"
	"sort"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/catalog.yaml
var catalogYAML []byte

// Translator resolves the portal language and its navigation labels.
type Translator struct {
	fallback string
	labels   map[string]map[string]string
	tags     []language.Tag
	matcher  language.Matcher
}

// NewTranslator loads the embedded catalog. defaultLang must be one of its languages.
func NewTranslator(defaultLang string) (*Translator, error) {
	var labels map[string]map[string]string
	if err := yaml.Unmarshal(catalogYAML, &labels); err != nil {
		return nil, fmt.Errorf("parse locale catalog: %w", err)
	}
	if _, ok := labels[defaultLang]; !ok {
		return nil, fmt.Errorf("default language %q not in catalog", defaultLang)
	}

	codes := make([]string, 0, len(labels))
	for code := range labels {
		if code != defaultLang {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	// The matcher falls back to its first tag.
	codes = append([]string{defaultLang}, codes...)
	tags := make([]language.Tag, len(codes))
	for i, c := range codes {
		tags[i] = language.MustParse(c)
	}
	return &Translator{
		fallback: defaultLang,
		labels:   labels,
		tags:     tags,
		matcher:  language.NewMatcher(tags),
	}, nil
}

// Supported reports whether code is a catalog language.
func (t *Translator) Supported(code string) bool {
	_, ok := t.labels[code]
	return ok
}

// Languages lists the catalog languages, default first.
func (t *Translator) Languages() []string {
	out := make([]string, len(t.tags))
	for i, tag := range t.tags {
		base, _ := tag.Base()
		out[i] = base.String()
	}
	return out
}

// Negotiate picks the language: a supported stored preference wins, then Accept-Language, then the default.
func (t *Translator) Negotiate(stored, acceptLanguage string) string {
	if t.Supported(stored) {
		return stored
	}
	if acceptLanguage == "" {
		return t.fallback
	}
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return t.fallback
	}
	_, idx, conf := t.matcher.Match(prefs...)
	if conf == language.No {
		return t.fallback
	}
	base, _ := t.tags[idx].Base()
	return base.String()
}

// Labels returns a copy of the labels for lang, or the default language's labels.
func (t *Translator) Labels(lang string) map[string]string {
	src, ok := t.labels[lang]
	if !ok {
		src = t.labels[t.fallback]
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Translate returns the label for key, or key itself when unknown.
func (t *Translator) Translate(lang, key string) string {
	if v, ok := t.labels[lang][key]; ok {
		return v
	}
	return key
}
