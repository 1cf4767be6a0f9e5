package model

import (
	"fmt"
	"sort"
	"strings"
)

// OrganizationRecord is one outreach target read from the batch input.
// It is owned by the caller and treated as read-only by the pipeline.
type OrganizationRecord struct {
	Name          string            `json:"name"`
	Fit           string            `json:"fit"`
	Tuition       string            `json:"tuition"`
	PainSignal    string            `json:"pain_signal"`
	WhyGoodFit    string            `json:"why_good_fit,omitempty"`
	TacticalEntry string            `json:"tactical_entry,omitempty"`
	Website       string            `json:"website,omitempty"`
	Row           int               `json:"row,omitempty"`   // 1-based data row in the source file
	Extra         map[string]string `json:"extra,omitempty"` // unmapped input columns
}

// MissingFields returns the required fields that are empty, in schema order.
func (o OrganizationRecord) MissingFields() []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"name", o.Name},
		{"fit", o.Fit},
		{"tuition", o.Tuition},
		{"pain_signal", o.PainSignal},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Fields returns the record as ordered label/value pairs for prompt building
// and fact cross-checking. Empty values are omitted.
func (o OrganizationRecord) Fields() []FieldValue {
	out := make([]FieldValue, 0, 7+len(o.Extra))
	add := func(label, value string) {
		if v := strings.TrimSpace(value); v != "" {
			out = append(out, FieldValue{Label: label, Value: v})
		}
	}
	add("Organization", o.Name)
	add("Fit", o.Fit)
	add("Tuition", o.Tuition)
	add("Pain signal", o.PainSignal)
	add("Why good fit", o.WhyGoodFit)
	add("Tactical entry", o.TacticalEntry)
	add("Website", o.Website)

	keys := make([]string, 0, len(o.Extra))
	for k := range o.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, o.Extra[k])
	}
	return out
}

// Summary renders Fields as a bulleted block.
func (o OrganizationRecord) Summary() string {
	var b strings.Builder
	for _, f := range o.Fields() {
		fmt.Fprintf(&b, "- %s: %s\n", f.Label, f.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FieldValue is a labelled organization attribute.
type FieldValue struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Rejection describes an input row that could not enter the pipeline.
type Rejection struct {
	Row     int      `json:"row"`
	Name    string   `json:"name,omitempty"`
	Missing []string `json:"missing"`
}
