package resolve

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Tokens are the values substituted into an ivy pattern.
type Tokens struct {
	Organisation string
	Module       string
	Revision     string
	Artifact     string
	Type         string
	Ext          string
	Classifier   string
}

func (t Tokens) lookup(name string) (string, bool) {
	switch name {
	case "organisation", "organization":
		return t.Organisation, true
	case "module":
		return t.Module, true
	case "revision":
		return t.Revision, true
	case "artifact":
		return t.Artifact, true
	case "type":
		return t.Type, true
	case "ext":
		return t.Ext, true
	case "classifier":
		return t.Classifier, true
	default:
		return "", false
	}
}

// Substitute replaces [token]s in pattern. An optional "( ... )" group is
// kept only when every token inside it has a value. Unknown tokens are left
// untouched.
func Substitute(pattern string, tokens Tokens) string {
	var out strings.Builder
	for i := 0; i < len(pattern); {
		switch pattern[i] {
		case '(':
			end := strings.IndexByte(pattern[i:], ')')
			if end < 0 {
				out.WriteString(pattern[i:])
				return out.String()
			}
			group, complete := substituteTokens(pattern[i+1:i+end], tokens)
			if complete {
				out.WriteString(group)
			}
			i += end + 1
		default:
			next := strings.IndexByte(pattern[i:], '(')
			if next < 0 {
				next = len(pattern) - i
			}
			group, _ := substituteTokens(pattern[i:i+next], tokens)
			out.WriteString(group)
			i += next
		}
	}
	return out.String()
}

func substituteTokens(segment string, tokens Tokens) (string, bool) {
	var out strings.Builder
	complete := true
	for {
		start := strings.IndexByte(segment, '[')
		if start < 0 {
			out.WriteString(segment)
			return out.String(), complete
		}
		end := strings.IndexByte(segment[start:], ']')
		if end < 0 {
			out.WriteString(segment)
			return out.String(), complete
		}
		name := segment[start+1 : start+end]
		value, known := tokens.lookup(name)
		out.WriteString(segment[:start])
		if known {
			if value == "" {
				complete = false
			}
			out.WriteString(value)
		} else {
			out.WriteString(segment[start : start+end+1])
		}
		segment = segment[start+end+1:]
	}
}

// RevisionParent returns the part of pattern in front of the "[revision]"
// directory, i.e. the directory whose children are the published versions.
func RevisionParent(pattern string) (string, bool) {
	pos := strings.Index(pattern, "[revision]")
	if pos < 0 {
		return "", false
	}
	return strings.TrimRight(pattern[:pos], "/"), true
}

// ParseIndexListing extracts child directory names from an HTML index page.
// Anchors pointing upwards ("..") or at files are ignored.
func ParseIndexListing(page []byte) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	var names []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attr(n, "href")
			if href != "" && !strings.HasPrefix(href, "..") && strings.HasSuffix(href, "/") {
				name := strings.TrimSpace(strings.ReplaceAll(text(n), "/", ""))
				if name == "" {
					name = strings.Trim(href[strings.LastIndex(strings.TrimRight(href, "/"), "/")+1:], "/")
				}
				if name != "" {
					names = append(names, name)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return names, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}
