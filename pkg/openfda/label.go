package openfda

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rxevidence/rxevidence/pkg/models"
)

type openFDAFields struct {
	BrandName        []string `json:"brand_name"`
	GenericName      []string `json:"generic_name"`
	ManufacturerName []string `json:"manufacturer_name"`
}

func (c *Client) parseLabel(drugName string, raw json.RawMessage) (*models.Label, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, models.NewUpstreamError(0, fmt.Errorf("invalid openfda result: %w", err))
	}

	var meta openFDAFields
	if v, ok := fields["openfda"]; ok {
		// malformed metadata leaves the names empty
		_ = json.Unmarshal(v, &meta)
	}

	label := &models.Label{
		DrugQuery:     drugName,
		BrandName:     first(meta.BrandName),
		GenericName:   first(meta.GenericName),
		Manufacturer:  first(meta.ManufacturerName),
		EffectiveTime: strings.TrimSpace(textValue(fields["effective_time"])),
		Sections:      make(map[string]string),
		RawResult:     raw,
	}

	for _, section := range c.sections {
		// section text is stored as received; blank sections are absent
		if text := textValue(fields[section]); strings.TrimSpace(text) != "" {
			label.Sections[section] = text
		}
	}

	return label, nil
}

// textValue reads a label field that is either a string or an array of
// strings. Arrays yield their first element. The value is returned unmodified.
func textValue(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}

	var arr []string
	if err := json.Unmarshal(v, &arr); err == nil {
		return first(arr)
	}

	return ""
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// SectionsFound returns the sections present in label, in the given order.
func SectionsFound(label *models.Label, order []string) []string {
	found := make([]string, 0, len(label.Sections))
	for _, s := range order {
		if _, ok := label.Sections[s]; ok {
			found = append(found, s)
		}
	}
	return found
}
