// Package filter is a typed predicate builder for canonical restaurant queries.
// The same predicate can be pushed down into a bun query or evaluated in memory.
package filter

import (
	"fmt"
	"strings"

	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/uptrace/bun"
)

// Field enumerates the restaurant attributes that may be filtered on.
type Field string

const (
	FieldName        Field = "name"
	FieldAnchorID    Field = "anchor_id"
	FieldSecondaryID Field = "secondary_id"
	FieldPriceLevel  Field = "price_level"
	FieldReservable  Field = "reservable"
	FieldAlcohol     Field = "serves_alcohol"
	FieldCity        Field = "address_city"
	FieldState       Field = "address_state"
	FieldCountry     Field = "address_country_code"
	FieldPostalCode  Field = "address_postal_code"
	FieldHeroImage   Field = "hero_image_url"
	FieldEmbedding   Field = "embedding_vector"
)

var knownFields = map[Field]bool{
	FieldName: true, FieldAnchorID: true, FieldSecondaryID: true, FieldPriceLevel: true,
	FieldReservable: true, FieldAlcohol: true, FieldCity: true, FieldState: true,
	FieldCountry: true, FieldPostalCode: true, FieldHeroImage: true, FieldEmbedding: true,
}

// Kind tags a predicate variant.
type Kind int

const (
	KindEq Kind = iota
	KindExists
	KindIn
	KindRange
)

// Predicate is one tagged condition. Build it with Eq, Exists, In or Range.
type Predicate struct {
	Kind   Kind
	Field  Field
	Value  any
	Values []any
	Min    *float64
	Max    *float64
	Want   bool
}

// Eq matches field == value.
func Eq(f Field, v any) Predicate { return Predicate{Kind: KindEq, Field: f, Value: v} }

// Exists matches records where the field is set (want=true) or unset (want=false).
func Exists(f Field, want bool) Predicate { return Predicate{Kind: KindExists, Field: f, Want: want} }

// In matches field ∈ values.
func In(f Field, values ...any) Predicate { return Predicate{Kind: KindIn, Field: f, Values: values} }

// Range matches min <= field <= max on numeric fields. Either bound may be nil.
func Range(f Field, min, max *float64) Predicate {
	return Predicate{Kind: KindRange, Field: f, Min: min, Max: max}
}

// Filter is a conjunction of predicates.
type Filter []Predicate

// And returns a new filter with p appended.
func (f Filter) And(p ...Predicate) Filter {
	out := make(Filter, 0, len(f)+len(p))
	out = append(out, f...)
	return append(out, p...)
}

// Validate rejects unknown fields and malformed predicates.
func (f Filter) Validate() error {
	for _, p := range f {
		if !knownFields[p.Field] {
			return fmt.Errorf("unknown filter field %q", p.Field)
		}
		switch p.Kind {
		case KindIn:
			if len(p.Values) == 0 {
				return fmt.Errorf("filter %q: empty set", p.Field)
			}
		case KindRange:
			if p.Field != FieldPriceLevel {
				return fmt.Errorf("filter %q: range requires a numeric field", p.Field)
			}
			if p.Min == nil && p.Max == nil {
				return fmt.Errorf("filter %q: range without bounds", p.Field)
			}
		}
	}
	return nil
}

// Apply pushes the predicates down into a bun select query.
func (f Filter) Apply(q *bun.SelectQuery) *bun.SelectQuery {
	for _, p := range f {
		col := bun.Ident(string(p.Field))
		switch p.Kind {
		case KindEq:
			q = q.Where("? = ?", col, p.Value)
		case KindIn:
			q = q.Where("? IN (?)", col, bun.In(p.Values))
		case KindRange:
			if p.Min != nil {
				q = q.Where("? >= ?", col, *p.Min)
			}
			if p.Max != nil {
				q = q.Where("? <= ?", col, *p.Max)
			}
		case KindExists:
			if isBoolField(p.Field) || p.Field == FieldPriceLevel {
				// Non-nullable columns: existence means a non-zero value.
				if p.Want {
					q = q.Where("? <> ?", col, zeroFor(p.Field))
				} else {
					q = q.Where("? = ?", col, zeroFor(p.Field))
				}
				continue
			}
			if p.Want {
				q = q.Where("? IS NOT NULL AND CAST(? AS TEXT) <> ''", col, col)
			} else {
				q = q.Where("(? IS NULL OR CAST(? AS TEXT) = '')", col, col)
			}
		}
	}
	return q
}

// Match evaluates the filter against a record in memory.
func (f Filter) Match(r *models.Restaurant) bool {
	for _, p := range f {
		if !p.match(r) {
			return false
		}
	}
	return true
}

func (p Predicate) match(r *models.Restaurant) bool {
	got := value(r, p.Field)
	switch p.Kind {
	case KindEq:
		return equal(got, p.Value)
	case KindIn:
		for _, v := range p.Values {
			if equal(got, v) {
				return true
			}
		}
		return false
	case KindRange:
		n, ok := toFloat(got)
		if !ok {
			return false
		}
		if p.Min != nil && n < *p.Min {
			return false
		}
		if p.Max != nil && n > *p.Max {
			return false
		}
		return true
	case KindExists:
		return isSet(got) == p.Want
	}
	return false
}

func value(r *models.Restaurant, f Field) any {
	switch f {
	case FieldName:
		return r.Name
	case FieldAnchorID:
		return r.AnchorID
	case FieldSecondaryID:
		return r.SecondaryID
	case FieldPriceLevel:
		return int(r.PriceLevel)
	case FieldReservable:
		return r.Reservable
	case FieldAlcohol:
		return r.ServesAlcohol
	case FieldCity:
		return r.Address.City
	case FieldState:
		return r.Address.State
	case FieldCountry:
		return r.Address.CountryCode
	case FieldPostalCode:
		return r.Address.PostalCode
	case FieldHeroImage:
		return r.HeroImageURL
	case FieldEmbedding:
		return r.EmbeddingVector
	}
	return nil
}

func isSet(v any) bool {
	switch t := v.(type) {
	case string:
		return t != ""
	case bool:
		return t
	case int:
		return t != 0
	case []float32:
		return len(t) > 0
	}
	return v != nil
}

func equal(got, want any) bool {
	if gn, ok := toFloat(got); ok {
		wn, ok := toFloat(want)
		return ok && gn == wn
	}
	if gs, ok := got.(string); ok {
		ws, ok := want.(string)
		return ok && gs == ws
	}
	return got == want
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case models.PriceLevel:
		return float64(n), true
	}
	return 0, false
}

func isBoolField(f Field) bool {
	return f == FieldReservable || f == FieldAlcohol
}

func zeroFor(f Field) any {
	if isBoolField(f) {
		return false
	}
	return 0
}

// String renders the filter for logs.
func (f Filter) String() string {
	parts := make([]string, 0, len(f))
	for _, p := range f {
		switch p.Kind {
		case KindEq:
			parts = append(parts, fmt.Sprintf("%s=%v", p.Field, p.Value))
		case KindExists:
			parts = append(parts, fmt.Sprintf("exists(%s)=%t", p.Field, p.Want))
		case KindIn:
			parts = append(parts, fmt.Sprintf("%s in %v", p.Field, p.Values))
		case KindRange:
			parts = append(parts, fmt.Sprintf("%s in range", p.Field))
		}
	}
	return strings.Join(parts, " AND ")
}
