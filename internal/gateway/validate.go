package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const templateCardSchemaText = `{
  "type": "object",
  "minProperties": 1
}`

var (
	templateCardSchemaOnce sync.Once
	templateCardSchema     *jsonschema.Schema
	templateCardSchemaErr  error
)

func compiledTemplateCardSchema() (*jsonschema.Schema, error) {
	templateCardSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		const resourceName = "template_card.json"
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(templateCardSchemaText))
		if err != nil {
			templateCardSchemaErr = err
			return
		}
		if err := compiler.AddResource(resourceName, doc); err != nil {
			templateCardSchemaErr = err
			return
		}
		schema, err := compiler.Compile(resourceName)
		if err != nil {
			templateCardSchemaErr = err
			return
		}
		templateCardSchema = schema
	})
	return templateCardSchema, templateCardSchemaErr
}

// Validate checks the Kind-specific required fields. Returns a
// validation error wrapping ErrValidation on failure.
func Validate(msg Message) error {
	switch msg.Kind {
	case KindText, KindMarkdown:
		if strings.TrimSpace(msg.Content) == "" {
			return fmt.Errorf("%w: %s requires non-empty content", ErrValidation, msg.Kind)
		}
	case KindImage:
		if msg.Base64 == "" || msg.MD5 == "" {
			return fmt.Errorf("%w: image requires base64 and md5", ErrValidation)
		}
	case KindNews:
		articles := make([]Article, 0, len(msg.Articles))
		for _, a := range msg.Articles {
			if a.Title != "" && a.URL != "" {
				articles = append(articles, a)
			}
		}
		if len(articles) == 0 {
			return fmt.Errorf("%w: news requires at least one article with title and url", ErrValidation)
		}
	case KindFile:
		if msg.MediaID == "" && len(msg.FileBytes) == 0 {
			return fmt.Errorf("%w: file requires media_id or an uploaded file", ErrValidation)
		}
	case KindTemplateCard:
		return validateTemplateCard(msg.TemplateCard)
	default:
		return fmt.Errorf("%w: unsupported message kind %q", ErrValidation, msg.Kind)
	}
	return nil
}

func validateTemplateCard(card map[string]any) error {
	if card == nil {
		return fmt.Errorf("%w: template_card must be a non-null object", ErrValidation)
	}
	schema, err := compiledTemplateCardSchema()
	if err != nil {
		return fmt.Errorf("%w: template_card schema unavailable: %v", ErrValidation, err)
	}
	data, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("%w: template_card is not serializable", ErrValidation)
	}
	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("%w: template_card is not valid JSON", ErrValidation)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: template_card failed shape validation: %v", ErrValidation, err)
	}
	return nil
}
