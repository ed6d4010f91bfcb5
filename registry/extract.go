package registry

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/franklinjsmith-create/SupplyVerify/model"
)

const (
	operationNameLabel = "Operation Name"
	certifierLabel     = "Certifier"
)

var certifierCodePattern = regexp.MustCompile(`^\[([^\]]+)\]\s*(.+)$`)

// Date layouts seen in registry scope rows.
var dateLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"02-Jan-2006",
}

// Extract reads a certification record out of a rendered registry page. It
// returns an error wrapping ErrRecordNotFound when the page has neither an
// operation name nor a certifier.
func Extract(doc *goquery.Document) (*model.CertificationRecord, error) {
	name, hasName := labelValue(doc, operationNameLabel)
	certifier, hasCertifier := labelValue(doc, certifierLabel)
	if !hasName && !hasCertifier {
		return nil, fmt.Errorf("%w: page has no operation name or certifier", ErrRecordNotFound)
	}
	if !hasName {
		name = model.NotFound
	}
	if !hasCertifier {
		certifier = model.NotFound
	}
	if m := certifierCodePattern.FindStringSubmatch(certifier); m != nil {
		certifier = strings.TrimSpace(m[2])
	}

	record := &model.CertificationRecord{
		OperationName:        name,
		Certifier:            certifier,
		AllCertifiedProducts: []string{},
		Scopes:               extractScopes(doc),
	}

	var earliest time.Time
	seen := make(map[string]struct{})
	for _, scope := range record.Scopes {
		if scope.EffectiveDate != nil {
			if t, ok := parseDate(*scope.EffectiveDate); ok && (record.EffectiveDate == nil || t.Before(earliest)) {
				earliest = t
				record.EffectiveDate = scope.EffectiveDate
			}
		}
		for _, p := range scope.CertifiedProducts {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			record.AllCertifiedProducts = append(record.AllCertifiedProducts, p)
		}
	}
	return record, nil
}

func extractScopes(doc *goquery.Document) []model.Scope {
	found := make(map[string]model.Scope, len(model.ScopeNames))

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td, th")
		for i := 0; i < cells.Length(); i++ {
			label := collapse(cellText(cells.Eq(i)))
			name, ok := scopeLabel(label)
			if !ok {
				continue
			}
			if _, dup := found[name]; dup {
				return
			}
			scope := model.Scope{Name: name, Listed: true, CertifiedProducts: []string{}}
			if i+1 < cells.Length() {
				scope.Status = present(collapse(cellText(cells.Eq(i + 1))))
			}
			if i+2 < cells.Length() {
				scope.EffectiveDate = present(collapse(cellText(cells.Eq(i + 2))))
			}
			if i+3 < cells.Length() {
				scope.CertifiedProducts = ParseProducts(cellText(cells.Eq(i + 3)))
			}
			found[name] = scope
			return
		}
	})

	scopes := make([]model.Scope, 0, len(model.ScopeNames))
	for _, name := range model.ScopeNames {
		if s, ok := found[name]; ok {
			scopes = append(scopes, s)
		} else {
			scopes = append(scopes, model.UnlistedScope(name))
		}
	}
	return scopes
}

func scopeLabel(text string) (string, bool) {
	for _, name := range model.ScopeNames {
		if strings.EqualFold(text, name) {
			return name, true
		}
	}
	return "", false
}

// labelValue finds the element whose own text starts with label and returns
// the value printed after it, either in the same element ("Label: value"),
// in the next sibling element (<dt>/<dd>, <label>/<span>) or in the parent's
// remaining text (<strong>Label:</strong> value).
func labelValue(doc *goquery.Document, label string) (string, bool) {
	var value string
	doc.Find("body *").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		own := collapse(ownText(sel))
		if !strings.HasPrefix(own, label) {
			return true
		}
		if v := afterLabel(own, label); v != "" {
			value = v
			return false
		}
		if next := sel.Next(); next.Length() > 0 {
			if v := collapse(cellText(next)); v != "" {
				value = v
				return false
			}
		}
		parent := collapse(cellText(sel.Parent()))
		if i := strings.Index(parent, label); i >= 0 {
			if v := afterLabel(parent[i:], label); v != "" {
				value = v
				return false
			}
		}
		return true
	})
	if p := present(value); p != nil {
		return *p, true
	}
	return "", false
}

func afterLabel(text, label string) string {
	rest := strings.TrimPrefix(text, label)
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, ":")
	return strings.TrimSpace(rest)
}

// present maps registry placeholders to nil.
func present(s string) *string {
	switch s {
	case "", "--", "N/A":
		return nil
	}
	return &s
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return b.String()
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.Tr: true, atom.Dd: true, atom.Dt: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.H4: true,
}

// cellText returns the visible text of sel, turning <br> and block element
// boundaries into newlines so list cells keep their line structure.
func cellText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(&b, n)
	}
	return strings.TrimSpace(b.String())
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Br:
			b.WriteByte('\n')
			return
		case atom.Script, atom.Style:
			return
		}
	}
	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}
