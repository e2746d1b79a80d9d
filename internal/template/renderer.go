package template

import (
	"strings"

	"github.com/acme/cold-outreach-engine/internal/domain"
)

// Renderer resolves personalization tokens in step subject and body text.
type Renderer interface {
	Render(text string, contact *domain.Contact) string
}

// TokenRenderer substitutes {{token}} placeholders with contact fields.
// Unknown tokens are left in place rather than erased, so a typo is visible
// in the delivered message instead of silently dropped.
type TokenRenderer struct{}

// NewTokenRenderer constructs the default renderer.
func NewTokenRenderer() *TokenRenderer {
	return &TokenRenderer{}
}

// Render applies contact substitutions.
func (TokenRenderer) Render(text string, contact *domain.Contact) string {
	if contact == nil {
		return text
	}
	first, _, _ := strings.Cut(contact.Name, " ")
	replacer := strings.NewReplacer(
		"{{email}}", contact.Email,
		"{{name}}", contact.Name,
		"{{first_name}}", first,
	)
	return replacer.Replace(text)
}
