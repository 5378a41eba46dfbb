package location

import (
	"regexp"
	"strings"

	"github.com/platewise/platewise-api/internal/domain/repository"
)

var (
	caPostcode = regexp.MustCompile(`(?i)\b([A-Z]\d[A-Z])\s?(\d[A-Z]\d)\b`)
	ukPostcode = regexp.MustCompile(`(?i)\b([A-Z]{1,2}\d[A-Z\d]?)\s*(\d[A-Z]{2})\b`)
	numericZip = regexp.MustCompile(`\b(\d{4,5})(?:-\d{4})?\b`)
	stateCode  = regexp.MustCompile(`^[A-Z]{2,3}$`)
)

// Parser is a heuristic free-text location parser backed by a Gazetteer.
type Parser struct {
	gazetteer *Gazetteer
}

var _ repository.AddressParser = (*Parser)(nil)

func NewParser(g *Gazetteer) *Parser {
	return &Parser{gazetteer: g}
}

// Parse splits "city, region postcode, country" style text into normalized parts.
// Country is only inferred from a postcode when the format is unique to one country.
func (p *Parser) Parse(text string) repository.ParsedLocation {
	var out repository.ParsedLocation
	var rest []string

	for _, seg := range strings.Split(text, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if code := p.gazetteer.CountryCode(seg); code != "" && out.Country == "" && !p.gazetteer.IsCity(seg) {
			out.Country = code
			continue
		}
		if out.PostalCode == "" {
			if pc, country, remaining := p.extractPostcode(seg); pc != "" {
				out.PostalCode = pc
				if out.Country == "" {
					out.Country = country
				}
				seg = remaining
			}
		}
		if seg != "" {
			rest = append(rest, seg)
		}
	}

	for _, seg := range rest {
		if p.gazetteer.IsCity(seg) {
			out.City = titleCase(seg)
			return out
		}
	}
	for _, seg := range rest {
		if stateCode.MatchString(seg) || startsWithDigit(seg) {
			continue
		}
		out.City = titleCase(seg)
		break
	}
	return out
}

// extractPostcode returns the postcode, the country implied by its format, and the segment without it.
func (p *Parser) extractPostcode(seg string) (string, string, string) {
	if m := caPostcode.FindStringSubmatchIndex(seg); m != nil {
		pc := strings.ToUpper(seg[m[2]:m[3]] + " " + seg[m[4]:m[5]])
		return pc, "CA", strip(seg, m[0], m[1])
	}
	if m := ukPostcode.FindStringSubmatchIndex(seg); m != nil {
		pc := strings.ToUpper(seg[m[2]:m[3]] + " " + seg[m[4]:m[5]])
		return pc, "GB", strip(seg, m[0], m[1])
	}
	if m := numericZip.FindStringSubmatchIndex(seg); m != nil {
		remaining := strip(seg, m[0], m[1])
		// A leading number before a street name is a house number.
		if m[0] == 0 && remaining != "" && !p.gazetteer.IsCity(remaining) && !stateCode.MatchString(remaining) {
			return "", "", seg
		}
		return seg[m[2]:m[3]], "", remaining
	}
	return "", "", seg
}

func strip(seg string, lo, hi int) string {
	return strings.Join(strings.Fields(seg[:lo]+" "+seg[hi:]), " ")
}

func startsWithDigit(s string) bool {
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[:1])) + string(r[1:])
	}
	return strings.Join(words, " ")
}
