// Package models defines data structures for the scraper.
package models

import "time"

// Placeholder is the sentinel written for any field that was never found
// during extraction.
const Placeholder = "none"

// Fields is the fixed export column order.
var Fields = []string{
	"Organization Name",
	"Registration Number",
	"VAT Number",
	"Address",
	"Country",
	"Website URL",
	"Email",
	"Telephone Number",
	"Mobile Number",
	"Fax",
	"PO Box",
	"Key Person",
	"Establishment Date",
	"Member Type",
}

// Member represents one organization scraped from a directory detail page.
type Member struct {
	OrganizationName   string    `json:"organization_name"`
	RegistrationNumber string    `json:"registration_number"`
	VATNumber          string    `json:"vat_number"`
	Address            string    `json:"address"`
	Country            string    `json:"country"`
	WebsiteURL         string    `json:"website_url"`
	Email              string    `json:"email"`
	TelephoneNumber    string    `json:"telephone_number"`
	MobileNumber       string    `json:"mobile_number"`
	Fax                string    `json:"fax"`
	POBox              string    `json:"po_box"`
	KeyPerson          string    `json:"key_person"`
	EstablishmentDate  string    `json:"establishment_date"`
	MemberType         string    `json:"member_type"`
	URL                string    `json:"url"`
	ScrapedAt          time.Time `json:"scraped_at"`
}

// NewMember returns a record with every exported field set to the
// placeholder sentinel.
func NewMember() *Member {
	return &Member{
		OrganizationName:   Placeholder,
		RegistrationNumber: Placeholder,
		VATNumber:          Placeholder,
		Address:            Placeholder,
		Country:            Placeholder,
		WebsiteURL:         Placeholder,
		Email:              Placeholder,
		TelephoneNumber:    Placeholder,
		MobileNumber:       Placeholder,
		Fax:                Placeholder,
		POBox:              Placeholder,
		KeyPerson:          Placeholder,
		EstablishmentDate:  Placeholder,
		MemberType:         Placeholder,
	}
}

// Row returns the record values in Fields order. Empty cells come back as
// the placeholder so every exported row is fully populated.
func (m *Member) Row() []string {
	values := []string{
		m.OrganizationName,
		m.RegistrationNumber,
		m.VATNumber,
		m.Address,
		m.Country,
		m.WebsiteURL,
		m.Email,
		m.TelephoneNumber,
		m.MobileNumber,
		m.Fax,
		m.POBox,
		m.KeyPerson,
		m.EstablishmentDate,
		m.MemberType,
	}
	for i, v := range values {
		if v == "" {
			values[i] = Placeholder
		}
	}
	return values
}

// FilledCount reports how many exported fields hold real data.
func (m *Member) FilledCount() int {
	count := 0
	for _, v := range m.Row() {
		if v != Placeholder {
			count++
		}
	}
	return count
}

// ScrapeResult holds the overall accounting for one run.
type ScrapeResult struct {
	StartTime    time.Time
	EndTime      time.Time
	Discovered   int
	TotalScraped int
	Recovered    int
	RequestCount int
	RetryCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
}
