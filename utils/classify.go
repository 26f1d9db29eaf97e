package utils

import (
	"strings"
)

// productRule maps keyword fragments to the product label shown on the
// dashboard. Rules are checked in order and the first hit wins, so the
// more specific fragments must come before the generic ones ("chat" before
// "api").
type productRule struct {
	Product  string
	Keywords []string
}

var productRules = []productRule{
	{"Chat Completions / ChatGPT", []string{"chat completions", "chatgpt", "chat"}},
	{"Responses API", []string{"responses api"}},
	{"Assistants API", []string{"assistants api", "assistants"}},
	{"Embeddings", []string{"embeddings"}},
	{"Fine-tuning", []string{"fine-tun"}},
	{"DALL-E / Images API", []string{"dall-e", "image generation", "images api"}},
	{"Whisper / Audio API", []string{"whisper", "audio", "speech"}},
	{"Realtime API", []string{"realtime"}},
	{"Batch API", []string{"batch"}},
	{"Platform API", []string{"api"}},
}

// ProductFallback is returned when no keyword rule matches.
const ProductFallback = "Platform"

// ClassifyProduct guesses which product an incident concerns from its title
// and body text. Status pages rarely tag incidents with a machine-readable
// component, so keyword matching is the best available signal.
func ClassifyProduct(title, content string) string {
	combined := strings.ToLower(title + " " + content)
	for _, rule := range productRules {
		for _, kw := range rule.Keywords {
			if strings.Contains(combined, kw) {
				return rule.Product
			}
		}
	}
	return ProductFallback
}
