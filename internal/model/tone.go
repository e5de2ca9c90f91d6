package model

// ToneDefinition is a resolved style guide.
type ToneDefinition struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	StyleGuide string `json:"style_guide" yaml:"style_guide"`
	Custom     bool   `json:"custom" yaml:"-"`
}
