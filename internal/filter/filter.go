// Package filter adapts the content of configuration files while they are
// installed.
package filter

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/beevik/etree"
	"github.com/magiconair/properties"
	"github.com/pirakansa/compinst/internal/patterns"
	"github.com/pirakansa/compinst/pkg/installconf"
)

const (
	placeholderBegin = "<@"
	placeholderEnd   = "@>"
)

// Filter is one named content adaptation restricted to matching paths.
type Filter struct {
	Name         string
	Select       patterns.Set
	Placeholders map[string]string
	Properties   map[string]string
	XML          []installconf.XMLEdit
	Replace      []installconf.Replacement
}

// Chain applies filters in order.
type Chain []Filter

// Compile converts configured filters.
func Compile(cfgs []installconf.Filter) (Chain, error) {
	chain := make(Chain, 0, len(cfgs))
	for i, cfg := range cfgs {
		set, err := patterns.NewSet(cfg.Includes, cfg.Excludes)
		if err != nil {
			return nil, fmt.Errorf("filters[%d] %q: %w", i, cfg.Name, err)
		}
		chain = append(chain, Filter{
			Name:         cfg.Name,
			Select:       set,
			Placeholders: cfg.Placeholders,
			Properties:   cfg.Properties,
			XML:          cfg.XML,
			Replace:      cfg.Replace,
		})
	}
	return chain, nil
}

// PropertyOverride builds a filter that sets key=value in the properties
// files matching pattern.
func PropertyOverride(name, pattern, key, value string) (Filter, error) {
	set, err := patterns.NewSet([]string{pattern}, nil)
	if err != nil {
		return Filter{}, err
	}
	return Filter{Name: name, Select: set, Properties: map[string]string{key: value}}, nil
}

// Matches reports whether rel is filtered by f.
func (f Filter) Matches(rel string) bool {
	return !f.Select.Includes.IsEmpty() && f.Select.Selects(rel)
}

// Apply runs every matching filter over content. The flag tells whether any
// filter matched.
func (c Chain) Apply(rel string, content []byte) ([]byte, bool, error) {
	matched := false
	for _, f := range c {
		if !f.Matches(rel) {
			continue
		}
		matched = true
		var err error
		content, err = f.apply(content)
		if err != nil {
			return nil, true, fmt.Errorf("filter %q on %s: %w", f.Name, rel, err)
		}
	}
	return content, matched, nil
}

func (f Filter) apply(content []byte) ([]byte, error) {
	content = replacePlaceholders(content, f.Placeholders)
	for _, r := range f.Replace {
		if r.Old != "" {
			content = bytes.ReplaceAll(content, []byte(r.Old), []byte(r.New))
		}
	}
	var err error
	if len(f.Properties) > 0 {
		if content, err = overrideProperties(content, f.Properties); err != nil {
			return nil, err
		}
	}
	if len(f.XML) > 0 {
		if content, err = editXML(content, f.XML); err != nil {
			return nil, err
		}
	}
	return content, nil
}

func replacePlaceholders(content []byte, placeholders map[string]string) []byte {
	for _, key := range sortedKeys(placeholders) {
		token := placeholderBegin + key + placeholderEnd
		content = bytes.ReplaceAll(content, []byte(token), []byte(placeholders[key]))
	}
	return content
}

// overrideProperties sets every key, keeping the order and comments of the
// existing entries. New keys are appended.
func overrideProperties(content []byte, values map[string]string) ([]byte, error) {
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	props, err := loader.LoadBytes(content)
	if err != nil {
		return nil, err
	}
	for _, key := range sortedKeys(values) {
		if _, _, err := props.Set(key, values[key]); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := props.WriteComment(&buf, "# ", properties.UTF8); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// editXML sets element text, or an attribute when one is named, on every
// element matching the path.
func editXML(content []byte, edits []installconf.XMLEdit) ([]byte, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, err
	}
	for _, edit := range edits {
		path, err := etree.CompilePath(edit.Path)
		if err != nil {
			return nil, fmt.Errorf("xml path %q: %w", edit.Path, err)
		}
		for _, el := range doc.FindElementsPath(path) {
			if edit.Attribute != "" {
				el.CreateAttr(edit.Attribute, edit.Value)
			} else {
				el.SetText(edit.Value)
			}
		}
	}
	return doc.WriteToBytes()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
