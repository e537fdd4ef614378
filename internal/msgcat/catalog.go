package msgcat

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/language"
	yaml "gopkg.in/yaml.v3"
)

// DefaultLocale answers every key; other locales fall back to it.
const DefaultLocale = "en"

//go:embed messages.*.yaml
var defaultFiles embed.FS

// Catalog holds per-locale string templates from the embedded defaults plus
// an optional override directory. Values render with text/template and a
// missing key is an error.
type Catalog struct {
	mu      sync.RWMutex
	data    map[string]map[string]string // locale → flattened dot-keys → template text
	locales []string                     // DefaultLocale first
	matcher language.Matcher
}

// New loads the embedded messages and then applies overrides from dir.
// Override files are named <anything>.<locale>.yaml; a name without a
// locale part overrides DefaultLocale.
func New(overrideDir string) (*Catalog, error) {
	base := &Catalog{data: make(map[string]map[string]string)}

	if err := base.loadEmbedded(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := base.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	if _, ok := base.data[DefaultLocale]; !ok {
		return nil, fmt.Errorf("no %s messages", DefaultLocale)
	}
	base.buildMatcher()
	return base, nil
}

func (c *Catalog) loadEmbedded() error {
	names, err := fs.Glob(defaultFiles, "messages.*.yaml")
	if err != nil {
		return fmt.Errorf("list embedded messages: %w", err)
	}
	for _, name := range names {
		raw, err := fs.ReadFile(defaultFiles, name)
		if err != nil {
			return fmt.Errorf("read embedded messages: %w", err)
		}
		if err := c.applyYAML(localeOf(name), raw); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
	}
	return nil
}

// localeOf는 파일명 끝의 로케일 부분을 꺼낸다. messages.ko.yaml → ko
func localeOf(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return DefaultLocale
	}
	loc := strings.ToLower(base[i+1:])
	if _, err := language.Parse(loc); err != nil {
		return DefaultLocale
	}
	return loc
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read template dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	// 같은 로케일 안에서 두 파일이 같은 키를 덮어쓰면 어느 쪽이 이길지 모호하다
	seen := make(map[string]string) // locale/key -> filename
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		loc := localeOf(name)
		flat, err := parseYAMLToFlat(b)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for k := range flat {
			if prev, ok := seen[loc+"/"+k]; ok {
				return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
			}
			seen[loc+"/"+k] = name
		}
		c.merge(loc, flat)
	}
	return nil
}

func parseYAMLToFlat(b []byte) (map[string]string, error) {
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	flat := make(map[string]string)
	if err := flattenStrings(m, "", flat); err != nil {
		return nil, err
	}
	return flat, nil
}

func (c *Catalog) applyYAML(locale string, b []byte) error {
	flat, err := parseYAMLToFlat(b)
	if err != nil {
		return err
	}
	c.merge(locale, flat)
	return nil
}

func (c *Catalog) merge(locale string, flat map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.data[locale]
	if !ok {
		m = make(map[string]string, len(flat))
		c.data[locale] = m
	}
	for k, v := range flat {
		m[k] = v
	}
}

func (c *Catalog) buildMatcher() {
	locs := make([]string, 0, len(c.data))
	for loc := range c.data {
		if loc != DefaultLocale {
			locs = append(locs, loc)
		}
	}
	sort.Strings(locs)
	c.locales = append([]string{DefaultLocale}, locs...)
	tags := make([]language.Tag, len(c.locales))
	for i, loc := range c.locales {
		tags[i] = language.Make(loc)
	}
	c.matcher = language.NewMatcher(tags)
}

func flattenStrings(src any, prefix string, out map[string]string) error {
	switch v := src.(type) {
	case map[string]any:
		for k, vv := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := flattenStrings(vv, key, out); err != nil {
				return err
			}
		}
		return nil
	case string:
		if prefix == "" {
			return errors.New("string value without key prefix")
		}
		out[prefix] = v
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported value at %s: %T", prefix, v)
	}
}

// Locales lists the loaded locales, DefaultLocale first.
func (c *Catalog) Locales() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.locales...)
}

// Match picks the best loaded locale for an Accept-Language header value.
func (c *Catalog) Match(acceptLanguage string) string {
	if c == nil || c.matcher == nil || strings.TrimSpace(acceptLanguage) == "" {
		return DefaultLocale
	}
	_, i := language.MatchStrings(c.matcher, acceptLanguage)
	if i < 0 || i >= len(c.locales) {
		return DefaultLocale
	}
	return c.locales[i]
}

// Has reports whether key is defined for DefaultLocale.
func (c *Catalog) Has(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c.lookup(DefaultLocale, key)
	return ok
}

// lookup은 요청 로케일에 키가 없으면 기본 로케일로 내려간다.
func (c *Catalog) lookup(locale, key string) (string, bool) {
	key = strings.TrimSpace(key)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if tpl, ok := c.data[locale][key]; ok && strings.TrimSpace(tpl) != "" {
		return tpl, true
	}
	tpl, ok := c.data[DefaultLocale][key]
	return tpl, ok && strings.TrimSpace(tpl) != ""
}

// RenderLocale executes the template for key in locale.
func (c *Catalog) RenderLocale(locale, key string, data any) (string, error) {
	tpl, ok := c.lookup(locale, key)
	if !ok {
		return "", fmt.Errorf("template not found: %s", key)
	}
	t, err := template.New(key).Option("missingkey=error").Parse(tpl)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

// RenderLocaleOr is RenderLocale with a fallback.
func (c *Catalog) RenderLocaleOr(locale, key string, data any, fallback string) string {
	if c == nil {
		return fallback
	}
	s, err := c.RenderLocale(locale, key, data)
	if err != nil {
		return fallback
	}
	return s
}
