package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-members/models"
)

// fieldRule maps a lower-cased label onto a record field. Rules are
// evaluated top to bottom and the first match wins for a given element;
// later elements may overwrite what earlier ones set.
type fieldRule struct {
	match  func(label string) bool
	assign func(m *models.Member, s *goquery.Selection, value string)
}

func has(subs ...string) func(string) bool {
	return func(label string) bool {
		for _, sub := range subs {
			if !strings.Contains(label, sub) {
				return false
			}
		}
		return true
	}
}

func hasAny(subs ...string) func(string) bool {
	return func(label string) bool {
		for _, sub := range subs {
			if strings.Contains(label, sub) {
				return true
			}
		}
		return false
	}
}

// assignWebsite prefers an anchor's href over the visible text.
func assignWebsite(m *models.Member, s *goquery.Selection, value string) {
	if href, ok := s.Find("a").Attr("href"); ok && strings.TrimSpace(href) != "" {
		m.WebsiteURL = strings.TrimSpace(href)
		return
	}
	m.WebsiteURL = value
}

// assignEmail prefers a mailto anchor, stripped of its scheme prefix.
func assignEmail(m *models.Member, s *goquery.Selection, value string) {
	if href, ok := s.Find("a").Attr("href"); ok && strings.HasPrefix(href, "mailto:") {
		m.Email = strings.TrimPrefix(href, "mailto:")
		return
	}
	m.Email = value
}

var labelRules = []fieldRule{
	{has("organization name"), func(m *models.Member, _ *goquery.Selection, v string) { m.OrganizationName = v }},
	{has("reg", "no"), func(m *models.Member, _ *goquery.Selection, v string) { m.RegistrationNumber = v }},
	{has("vat"), func(m *models.Member, _ *goquery.Selection, v string) { m.VATNumber = v }},
	{has("address"), func(m *models.Member, _ *goquery.Selection, v string) { m.Address = v }},
	{has("country"), func(m *models.Member, _ *goquery.Selection, v string) { m.Country = v }},
	{hasAny("website", "url"), assignWebsite},
	{has("email"), assignEmail},
	{has("telephone"), func(m *models.Member, _ *goquery.Selection, v string) { m.TelephoneNumber = v }},
	{has("mobile"), func(m *models.Member, _ *goquery.Selection, v string) { m.MobileNumber = v }},
	{has("fax"), func(m *models.Member, _ *goquery.Selection, v string) { m.Fax = v }},
	{hasAny("po box", "p.o"), func(m *models.Member, _ *goquery.Selection, v string) { m.POBox = v }},
	{has("key person"), func(m *models.Member, _ *goquery.Selection, v string) { m.KeyPerson = v }},
	{hasAny("establishment", "date"), func(m *models.Member, _ *goquery.Selection, v string) { m.EstablishmentDate = v }},
}

// tableRules is the reduced set applied to two-column table rows. Tables on
// the directory carry a bare "Reg" label and never the mobile, fax, or
// establishment-date fields.
var tableRules = []fieldRule{
	{has("organization name"), func(m *models.Member, _ *goquery.Selection, v string) { m.OrganizationName = v }},
	{has("reg"), func(m *models.Member, _ *goquery.Selection, v string) { m.RegistrationNumber = v }},
	{has("address"), func(m *models.Member, _ *goquery.Selection, v string) { m.Address = v }},
	{has("country"), func(m *models.Member, _ *goquery.Selection, v string) { m.Country = v }},
	{has("website"), assignWebsite},
	{has("email"), assignEmail},
	{has("telephone"), func(m *models.Member, _ *goquery.Selection, v string) { m.TelephoneNumber = v }},
	{hasAny("p.o", "po box"), func(m *models.Member, _ *goquery.Selection, v string) { m.POBox = v }},
	{has("key person"), func(m *models.Member, _ *goquery.Selection, v string) { m.KeyPerson = v }},
}

// CleanText collapses internal whitespace and trims. An empty result becomes
// the placeholder sentinel.
func CleanText(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return models.Placeholder
	}
	return cleaned
}

// ExtractMember maps a detail page onto a member record. Every field starts
// as the placeholder; a parse panic yields an all-placeholder record rather
// than propagating.
func ExtractMember(doc *goquery.Document) (member *models.Member) {
	member = models.NewMember()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("member extraction failed", slog.Any("error", r))
			member = models.NewMember()
		}
	}()

	// The first heading, or failing that the page title, seeds the
	// organization name. A labeled field found below overwrites it.
	heading := doc.Find("h1").First()
	if heading.Length() == 0 {
		heading = doc.Find("title").First()
	}
	if heading.Length() > 0 {
		if name := CleanText(heading.Text()); name != models.Placeholder {
			member.OrganizationName = name
		}
	}

	doc.Find("li, div, p, td").Each(func(_ int, item *goquery.Selection) {
		text := strings.TrimSpace(item.Text())
		label, rest, found := strings.Cut(text, ":")
		if !found {
			return
		}
		label = strings.ToLower(strings.TrimSpace(label))
		value := CleanText(rest)
		for _, rule := range labelRules {
			if rule.match(label) {
				rule.assign(member, item, value)
				break
			}
		}
	})

	// Table rows are applied after the label scan and may overwrite it.
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		label := strings.ToLower(strings.TrimSpace(cells.Eq(0).Text()))
		label = strings.ReplaceAll(label, ":", "")
		value := CleanText(cells.Eq(1).Text())
		for _, rule := range tableRules {
			if rule.match(label) {
				rule.assign(member, cells.Eq(1), value)
				break
			}
		}
	})

	return member
}

// ValidateMember flags under-populated records. Callers log the error;
// flagged records are still exported.
func ValidateMember(m *models.Member) error {
	if m == nil {
		return fmt.Errorf("member is nil")
	}
	if m.OrganizationName == models.Placeholder {
		return fmt.Errorf("member missing organization name")
	}
	if filled := m.FilledCount(); filled < 3 {
		return fmt.Errorf("member %s has only %d populated fields", m.OrganizationName, filled)
	}
	return nil
}
