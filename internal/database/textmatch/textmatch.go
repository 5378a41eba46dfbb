// Package textmatch implements token matching over the fixed set of mapped restaurant fields.
package textmatch

import (
	"strings"
	"unicode"

	"github.com/platewise/platewise-api/internal/database/models"
)

// MappedField is a text-searchable attribute and its relevance weight.
type MappedField struct {
	Column string
	Weight float64
	get    func(r *models.Restaurant) []string
}

// MappedFields is the enumerated text index. Order is stable.
var MappedFields = []MappedField{
	{Column: "name", Weight: 5, get: func(r *models.Restaurant) []string { return []string{r.Name} }},
	{Column: "categories", Weight: 3, get: func(r *models.Restaurant) []string { return r.Categories }},
	{Column: "anchor_id", Weight: 3, get: func(r *models.Restaurant) []string { return []string{r.AnchorID} }},
	{Column: "secondary_id", Weight: 3, get: func(r *models.Restaurant) []string { return []string{r.SecondaryID} }},
	{Column: "social_handles", Weight: 2, get: func(r *models.Restaurant) []string { return r.SocialHandles }},
	{Column: "address_street", Weight: 1, get: func(r *models.Restaurant) []string { return []string{r.Address.Street} }},
	{Column: "address_city", Weight: 1, get: func(r *models.Restaurant) []string { return []string{r.Address.City} }},
	{Column: "address_state", Weight: 1, get: func(r *models.Restaurant) []string { return []string{r.Address.State} }},
	{Column: "address_postal_code", Weight: 1, get: func(r *models.Restaurant) []string { return []string{r.Address.PostalCode} }},
	{Column: "description", Weight: 1, get: func(r *models.Restaurant) []string { return []string{r.Description} }},
}

// MinTokenLen drops single-character noise tokens.
const MinTokenLen = 2

// Tokenize lower-cases and splits on anything that is not a letter or digit.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < MinTokenLen || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Score returns the weighted relevance of r for the query tokens.
// A token contained in a field value counts as a partial match; a whole-token hit counts double.
func Score(r *models.Restaurant, tokens []string) float64 {
	var score float64
	for _, mf := range MappedFields {
		for _, raw := range mf.get(r) {
			if raw == "" {
				continue
			}
			lower := strings.ToLower(raw)
			words := Tokenize(raw)
			for _, tok := range tokens {
				if !strings.Contains(lower, tok) {
					continue
				}
				score += mf.Weight
				for _, w := range words {
					if w == tok {
						score += mf.Weight
						break
					}
				}
			}
		}
	}
	return score
}
