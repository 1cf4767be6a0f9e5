package notion

import (
	"strconv"
	"strings"

	"github.com/jomei/notionapi"
)

// PlainText flattens the common property types to a string. Unsupported
// types yield "".
func PlainText(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		return richText(p.Title)
	case *notionapi.RichTextProperty:
		return richText(p.RichText)
	case *notionapi.SelectProperty:
		return p.Select.Name
	case *notionapi.StatusProperty:
		return p.Status.Name
	case *notionapi.MultiSelectProperty:
		names := make([]string, 0, len(p.MultiSelect))
		for _, o := range p.MultiSelect {
			names = append(names, o.Name)
		}
		return strings.Join(names, ", ")
	case *notionapi.URLProperty:
		return p.URL
	case *notionapi.EmailProperty:
		return p.Email
	case *notionapi.NumberProperty:
		return strconv.FormatFloat(p.Number, 'f', -1, 64)
	}
	return ""
}

func richText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, t := range rt {
		b.WriteString(t.PlainText)
	}
	return strings.TrimSpace(b.String())
}

// TextProperty builds a rich_text property value.
func TextProperty(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
		},
	}
}

// StatusProperty builds a status property value.
func StatusProperty(name string) notionapi.StatusProperty {
	return notionapi.StatusProperty{Status: notionapi.Status{Name: name}}
}

// NumberProperty builds a number property value.
func NumberProperty(n float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{Number: n}
}
