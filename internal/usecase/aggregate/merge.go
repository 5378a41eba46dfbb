package aggregate

import (
	"github.com/platewise/platewise-api/internal/database/models"
	"github.com/platewise/platewise-api/internal/domain/repository"
)

// Source is where a merged field value comes from.
type Source string

const (
	SourceAnchor    Source = "anchor"
	SourceDiscovery Source = "discovery"
	// SourceExisting is the previously persisted record.
	SourceExisting Source = "existing"
)

// Field is a merged attribute of the canonical record.
type Field string

const (
	FieldName           Field = "name"
	FieldCoordinates    Field = "coordinates"
	FieldAddress        Field = "address"
	FieldHours          Field = "operating_hours"
	FieldWebsite        Field = "website"
	FieldPhone          Field = "phone_number"
	FieldReservable     Field = "reservable"
	FieldServesAlcohol  Field = "serves_alcohol"
	FieldUTCOffset      Field = "utc_offset_minutes"
	FieldHeroImage      Field = "hero_image_url"
	FieldPriceLevel     Field = "price_level"
	FieldCategories     Field = "categories"
	FieldImages         Field = "image_collection_urls"
	FieldDescription    Field = "description"
	FieldSecondaryID    Field = "secondary_id"
	FieldSocialHandles  Field = "social_handles"
	FieldReservationURL Field = "reservation_link"
)

// Precedence ranks the sources per field. The first source holding a value wins;
// a field with no value in any listed source stays zero.
var Precedence = map[Field][]Source{
	FieldName:           {SourceAnchor, SourceDiscovery},
	FieldCoordinates:    {SourceAnchor, SourceDiscovery},
	FieldAddress:        {SourceAnchor},
	FieldHours:          {SourceAnchor},
	FieldWebsite:        {SourceAnchor},
	FieldPhone:          {SourceAnchor},
	FieldReservable:     {SourceAnchor},
	FieldServesAlcohol:  {SourceAnchor},
	FieldUTCOffset:      {SourceAnchor},
	FieldHeroImage:      {SourceDiscovery, SourceExisting},
	FieldPriceLevel:     {SourceAnchor, SourceDiscovery},
	FieldCategories:     {SourceDiscovery, SourceExisting},
	FieldImages:         {SourceAnchor, SourceExisting},
	FieldDescription:    {SourceAnchor, SourceExisting},
	FieldSecondaryID:    {SourceExisting, SourceDiscovery},
	FieldSocialHandles:  {SourceExisting},
	FieldReservationURL: {SourceExisting},
}

// view is one source's partial record plus which fields it actually holds.
type view struct {
	r       models.Restaurant
	present map[Field]bool
}

func (v *view) set(f Field, ok bool) {
	if ok {
		v.present[f] = true
	}
}

func anchorView(addr *models.Address, d *repository.DetailStub) *view {
	v := &view{present: make(map[Field]bool)}
	if addr != nil {
		v.r.Address = *addr
		v.set(FieldAddress, true)
	}
	if d == nil {
		return v
	}
	v.r.Name = d.Name
	v.r.Coordinates = d.Coordinates
	v.r.OperatingHours = d.Hours
	v.r.Website = d.Website
	v.r.PhoneNumber = d.PhoneNumber
	v.r.Reservable = d.Reservable
	v.r.ServesAlcohol = d.ServesAlcohol
	v.r.UTCOffsetMinutes = d.UTCOffsetMinutes
	v.r.PriceLevel = d.PriceLevel
	v.r.ImageCollectionURLs = d.PhotoURLs
	v.r.Description = d.EditorialSummary

	v.set(FieldName, d.Name != "")
	v.set(FieldCoordinates, !d.Coordinates.IsZero())
	v.set(FieldHours, len(d.Hours) > 0)
	v.set(FieldWebsite, d.Website != "")
	v.set(FieldPhone, d.PhoneNumber != "")
	v.set(FieldReservable, true)
	v.set(FieldServesAlcohol, true)
	v.set(FieldUTCOffset, d.UTCOffsetMinutes != nil)
	v.set(FieldPriceLevel, d.PriceLevel != models.PriceUnknown)
	v.set(FieldImages, len(d.PhotoURLs) > 0)
	v.set(FieldDescription, d.EditorialSummary != "")
	return v
}

func discoveryView(b *repository.BusinessStub) *view {
	v := &view{present: make(map[Field]bool)}
	if b == nil {
		return v
	}
	v.r.Name = b.Name
	v.r.Coordinates = b.Coordinates
	v.r.HeroImageURL = b.HeroImageURL
	v.r.PriceLevel = b.Price
	v.r.SecondaryID = b.ExternalID
	for _, c := range b.Categories {
		if c.Title != "" {
			v.r.Categories = append(v.r.Categories, c.Title)
		}
	}

	v.set(FieldName, b.Name != "")
	v.set(FieldCoordinates, !b.Coordinates.IsZero())
	v.set(FieldHeroImage, b.HeroImageURL != "")
	v.set(FieldPriceLevel, b.Price != models.PriceUnknown)
	v.set(FieldSecondaryID, b.ExternalID != "")
	v.set(FieldCategories, len(v.r.Categories) > 0)
	return v
}

func existingView(r *models.Restaurant) *view {
	v := &view{present: make(map[Field]bool)}
	if r == nil {
		return v
	}
	v.r = *r.Clone()
	v.set(FieldHeroImage, r.HeroImageURL != "")
	v.set(FieldCategories, len(r.Categories) > 0)
	v.set(FieldImages, len(r.ImageCollectionURLs) > 0)
	v.set(FieldDescription, r.Description != "")
	v.set(FieldSecondaryID, r.SecondaryID != "")
	v.set(FieldSocialHandles, len(r.SocialHandles) > 0)
	v.set(FieldReservationURL, r.ReservationLink != "")
	return v
}

// MergeInput carries the payloads of one merge. Any of them may be nil.
type MergeInput struct {
	Address   *models.Address
	Detail    *repository.DetailStub
	Discovery *repository.BusinessStub
	Existing  *models.Restaurant
}

// Merge builds the provider-derived part of a canonical record following Precedence.
// Identity, timestamps and the embedding are left to the caller.
func Merge(in MergeInput) *models.Restaurant {
	views := map[Source]*view{
		SourceAnchor:    anchorView(in.Address, in.Detail),
		SourceDiscovery: discoveryView(in.Discovery),
		SourceExisting:  existingView(in.Existing),
	}

	out := &models.Restaurant{}
	for field, sources := range Precedence {
		for _, src := range sources {
			if v := views[src]; v.present[field] {
				assign(out, &v.r, field)
				break
			}
		}
	}
	// A connected reservation integration makes the place reservable regardless of the anchor flag.
	if out.ReservationLink != "" {
		out.Reservable = true
	}
	return out
}

// WinningSource reports which source Merge would take field from, or "" if none holds it.
func WinningSource(in MergeInput, field Field) Source {
	views := map[Source]*view{
		SourceAnchor:    anchorView(in.Address, in.Detail),
		SourceDiscovery: discoveryView(in.Discovery),
		SourceExisting:  existingView(in.Existing),
	}
	for _, src := range Precedence[field] {
		if views[src].present[field] {
			return src
		}
	}
	return ""
}

func assign(dst, src *models.Restaurant, f Field) {
	switch f {
	case FieldName:
		dst.Name = src.Name
	case FieldCoordinates:
		dst.Coordinates = src.Coordinates
	case FieldAddress:
		dst.Address = src.Address
	case FieldHours:
		dst.OperatingHours = make(map[string]string, len(src.OperatingHours))
		for k, v := range src.OperatingHours {
			dst.OperatingHours[k] = v
		}
	case FieldWebsite:
		dst.Website = src.Website
	case FieldPhone:
		dst.PhoneNumber = src.PhoneNumber
	case FieldReservable:
		dst.Reservable = src.Reservable
	case FieldServesAlcohol:
		dst.ServesAlcohol = src.ServesAlcohol
	case FieldUTCOffset:
		if src.UTCOffsetMinutes != nil {
			v := *src.UTCOffsetMinutes
			dst.UTCOffsetMinutes = &v
		}
	case FieldHeroImage:
		dst.HeroImageURL = src.HeroImageURL
	case FieldPriceLevel:
		dst.PriceLevel = src.PriceLevel
	case FieldCategories:
		dst.Categories = append([]string(nil), src.Categories...)
	case FieldImages:
		dst.ImageCollectionURLs = append([]string(nil), src.ImageCollectionURLs...)
	case FieldDescription:
		dst.Description = src.Description
	case FieldSecondaryID:
		dst.SecondaryID = src.SecondaryID
	case FieldSocialHandles:
		dst.SocialHandles = append([]string(nil), src.SocialHandles...)
	case FieldReservationURL:
		dst.ReservationLink = src.ReservationLink
	}
}
