package repository

// ParsedLocation is a normalized free-text location. Empty fields were not recognized.
type ParsedLocation struct {
	Country    string
	City       string
	PostalCode string
}

// AddressParser normalizes free-text locations.
type AddressParser interface {
	Parse(text string) ParsedLocation
}

// Gazetteer maps city names to the ISO country codes that have a city of that name.
type Gazetteer interface {
	CountriesForCity(city string) []string
}
