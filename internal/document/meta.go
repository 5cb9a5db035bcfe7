package document

import (
	"path"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	createdFields  = []string{"date", "created", "publishDate"}
	modifiedFields = []string{"updated", "modified", "lastmod"}
	excerptFields  = []string{"excerpt", "description", "summary"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// IsPublished applies the publication gate: draft: true or published: false
// excludes a document.
func IsPublished(fm map[string]any) bool {
	if v, ok := boolField(fm, "draft"); ok && v {
		return false
	}
	if v, ok := boolField(fm, "published"); ok && !v {
		return false
	}
	return true
}

// StringField returns a trimmed string frontmatter value
func StringField(fm map[string]any, key string) string {
	s, _ := fm[key].(string)
	return strings.TrimSpace(s)
}

func boolField(fm map[string]any, key string) (bool, bool) {
	switch v := fm[key].(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	}
	return false, false
}

// TimeField returns the first parseable date among keys
func TimeField(fm map[string]any, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		if t, ok := parseTime(fm[k]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case toml.LocalDate:
		return t.AsTime(time.UTC), true
	case toml.LocalDateTime:
		return t.AsTime(time.UTC), true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// HumanizeFileName turns "my-first_post.md" into "My First Post"
func HumanizeFileName(name string) string {
	stem := strings.TrimSuffix(path.Base(name), path.Ext(name))
	stem = strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	stem = strings.Join(strings.Fields(stem), " ")
	if stem == "" {
		return name
	}
	return cases.Title(language.Und, cases.NoLower).String(stem)
}
