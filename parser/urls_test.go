package parser

import (
	"net/url"
	"reflect"
	"testing"
)

func TestExtractMemberURLs(t *testing.T) {
	base, err := url.Parse("http://example.test")
	if err != nil {
		t.Fatalf("parse base: %v", err)
	}

	tests := []struct {
		name     string
		html     string
		expected []string
	}{
		{
			name: "relative links resolved against base",
			html: `<html><body>
				<a href="/members/acme-treks">Acme</a>
				<a href="/members/beta-expeditions">Beta</a>
			</body></html>`,
			expected: []string{
				"http://example.test/members/acme-treks",
				"http://example.test/members/beta-expeditions",
			},
		},
		{
			name: "duplicates removed in first-seen order",
			html: `<html><body>
				<a href="/members/beta-expeditions">Beta</a>
				<a href="/members/acme-treks">Acme</a>
				<a href="/members/beta-expeditions">Beta again</a>
			</body></html>`,
			expected: []string{
				"http://example.test/members/beta-expeditions",
				"http://example.test/members/acme-treks",
			},
		},
		{
			name: "self link and unrelated links skipped",
			html: `<html><body>
				<a href="/members/">All members</a>
				<a href="/about">About</a>
				<a href="/members/acme-treks">Acme</a>
			</body></html>`,
			expected: []string{
				"http://example.test/members/acme-treks",
			},
		},
		{
			name: "absolute links kept as-is",
			html: `<html><body>
				<a href="http://example.test/members/acme-treks">Acme</a>
			</body></html>`,
			expected: []string{
				"http://example.test/members/acme-treks",
			},
		},
		{
			name:     "no member links",
			html:     `<html><body><a href="/contact">Contact</a></body></html>`,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractMemberURLs(doc(t, tt.html), base)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Fatalf("ExtractMemberURLs() = %v, want %v", got, tt.expected)
			}
		})
	}
}
