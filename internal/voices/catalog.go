package voices

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrUnknownLanguage signals a language code missing from the catalog.
	ErrUnknownLanguage = errors.New("unknown language")

	// ErrNoVoicesAvailable signals a catalog language without any voice.
	ErrNoVoicesAvailable = errors.New("no voices available")
)

// Language is a single catalog entry.
type Language struct {
	Code        string
	DisplayName string
	Voices      []string
}

// Catalog maps language codes to the voices the speech service offers for them.
// A Catalog is immutable once built.
type Catalog struct {
	order     []string
	languages map[string]Language
}

// NewCatalog builds a catalog preserving the order of entries.
func NewCatalog(entries ...Language) *Catalog {
	c := &Catalog{
		order:     make([]string, 0, len(entries)),
		languages: make(map[string]Language, len(entries)),
	}
	for _, entry := range entries {
		if _, dup := c.languages[entry.Code]; !dup {
			c.order = append(c.order, entry.Code)
		}
		entry.Voices = slices.Clone(entry.Voices)
		c.languages[entry.Code] = entry
	}
	return c
}

// Default returns the catalog of Polly voices used by the service.
func Default() *Catalog {
	return defaultCatalog
}

var defaultCatalog = NewCatalog(
	Language{Code: "en-US", DisplayName: "English (US)", Voices: []string{"Joanna", "Matthew", "Ivy", "Justin", "Kendra", "Kimberly", "Joey", "Salli"}},
	Language{Code: "en-GB", DisplayName: "English (British)", Voices: []string{"Amy", "Emma", "Brian"}},
	Language{Code: "en-AU", DisplayName: "English (Australian)", Voices: []string{"Olivia", "Nicole", "Russell"}},
	Language{Code: "en-IN", DisplayName: "English (Indian)", Voices: []string{"Aditi", "Raveena"}},
	Language{Code: "de-DE", DisplayName: "German", Voices: []string{"Vicki", "Hans", "Marlene"}},
	Language{Code: "es-ES", DisplayName: "Spanish (European)", Voices: []string{"Lucia", "Conchita", "Enrique"}},
	Language{Code: "es-US", DisplayName: "Spanish (US)", Voices: []string{"Lupe", "Penelope", "Miguel"}},
	Language{Code: "fr-FR", DisplayName: "French", Voices: []string{"Lea", "Celine", "Mathieu"}},
	Language{Code: "it-IT", DisplayName: "Italian", Voices: []string{"Bianca", "Carla", "Giorgio"}},
	Language{Code: "ja-JP", DisplayName: "Japanese", Voices: []string{"Mizuki", "Takumi"}},
	Language{Code: "pt-BR", DisplayName: "Portuguese (Brazilian)", Voices: []string{"Camila", "Vitoria", "Ricardo"}},
	Language{Code: "hi-IN", DisplayName: "Hindi", Voices: []string{"Aditi", "Kajal"}},
)

// Languages lists catalog entries in display order.
func (c *Catalog) Languages() []Language {
	out := make([]Language, 0, len(c.order))
	for _, code := range c.order {
		lang := c.languages[code]
		lang.Voices = slices.Clone(lang.Voices)
		out = append(out, lang)
	}
	return out
}

// Lookup returns the entry for code.
func (c *Catalog) Lookup(code string) (Language, error) {
	lang, ok := c.languages[code]
	if !ok {
		return Language{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
	}
	lang.Voices = slices.Clone(lang.Voices)
	return lang, nil
}

// DefaultVoice returns the first voice listed for code.
func (c *Catalog) DefaultVoice(code string) (string, error) {
	lang, err := c.Lookup(code)
	if err != nil {
		return "", err
	}
	if len(lang.Voices) == 0 {
		return "", fmt.Errorf("%w: %q", ErrNoVoicesAvailable, code)
	}
	return lang.Voices[0], nil
}

// SelectVoice keeps current when it belongs to code and otherwise falls back
// to the language's default voice. Callers switching language must go through
// it so an invalid pair never reaches synthesis.
func (c *Catalog) SelectVoice(code, current string) (string, error) {
	lang, err := c.Lookup(code)
	if err != nil {
		return "", err
	}
	if current != "" && slices.Contains(lang.Voices, current) {
		return current, nil
	}
	return c.DefaultVoice(code)
}

// Validate reports whether voice is offered for code.
func (c *Catalog) Validate(code, voice string) error {
	lang, err := c.Lookup(code)
	if err != nil {
		return err
	}
	if !slices.Contains(lang.Voices, voice) {
		return fmt.Errorf("voice %q is not available for %s", voice, code)
	}
	return nil
}
