// Package categorize asks a language model for a spending category for each
// new record. The category is a hint appended to the notification; it never
// affects reconciliation.
package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModelName is the default Gemini model used for categorization.
const DefaultModelName = "gemini-2.5-flash"

// OtherCategory is returned when the model answers with a category outside the list.
const OtherCategory = "Other"

// DefaultCategories is used when the config does not list any.
var DefaultCategories = []string{
	"Groceries",
	"Restaurants",
	"Transport",
	"Fuel",
	"Utilities",
	"Health",
	"Shopping",
	"Entertainment",
	"Travel",
	"Subscriptions",
	"Income",
	"Transfers",
	"Fees",
	OtherCategory,
}

// Generator produces a text completion for a prompt.
// This interface enables mocking the model in tests.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator is the Generator backed by the Gemini API. The API key is
// read from the environment by the genai client (GOOGLE_API_KEY or Vertex
// settings).
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini client for model.
func NewGeminiGenerator(ctx context.Context, model string) (*GeminiGenerator, error) {
	if model == "" {
		model = DefaultModelName
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGenerator: create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate sends prompt as a single user turn and returns the response text.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Generate: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("Generate: empty response from model")
	}
	return text, nil
}

// Categorizer picks a category for a record described in plain text.
type Categorizer struct {
	gen        Generator
	categories []string
}

// NewCategorizer creates a Categorizer choosing among categories, or
// DefaultCategories when the list is empty.
func NewCategorizer(gen Generator, categories []string) *Categorizer {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return &Categorizer{gen: gen, categories: categories}
}

type categoryAnswer struct {
	Category string `json:"category"`
}

// Categorize returns one of the configured categories for the record text.
// An answer outside the list maps to OtherCategory.
func (c *Categorizer) Categorize(ctx context.Context, recordText string) (string, error) {
	raw, err := c.gen.Generate(ctx, c.prompt(recordText))
	if err != nil {
		return "", fmt.Errorf("Categorize: %w", err)
	}

	var answer categoryAnswer
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &answer); err != nil {
		return "", fmt.Errorf("Categorize: unmarshal JSON: %w\nraw response: %s", err, raw)
	}
	for _, known := range c.categories {
		if strings.EqualFold(strings.TrimSpace(answer.Category), known) {
			return known, nil
		}
	}
	return OtherCategory, nil
}

func (c *Categorizer) prompt(recordText string) string {
	return "You categorize card and bank account transactions from Uruguayan banks.\n\n" +
		"Transaction:\n" + recordText + "\n\n" +
		"Allowed categories: " + strings.Join(c.categories, ", ") + ".\n\n" +
		"Return ONLY valid raw JSON of the form {\"category\": \"<one allowed category>\"}.\n" +
		"Do NOT wrap the response in code fences.\n"
}

// cleanModelJSON strips Markdown fences and surrounding prose from a model
// answer that should be a single JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = s[start : end+1]
		}
	}
	return s
}
