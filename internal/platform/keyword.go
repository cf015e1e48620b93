package platform

import (
	"context"
	"strings"
)

// KeywordPlatform returns a configured response when the message content
// matches any configured keyword (spec §6: "no external call, returns
// configured response when chat content matches configured keywords").
type KeywordPlatform struct {
	rules         []keywordRule
	caseSensitive bool
}

type keywordRule struct {
	keyword  string
	response string
}

func (k *KeywordPlatform) Initialize(config map[string]any) error {
	k.caseSensitive, _ = config["case_sensitive"].(bool)

	raw, _ := config["keywords"].([]any)
	k.rules = k.rules[:0]
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		keyword, _ := m["keyword"].(string)
		response, _ := m["response"].(string)
		if keyword == "" {
			continue
		}
		if !k.caseSensitive {
			keyword = strings.ToLower(keyword)
		}
		k.rules = append(k.rules, keywordRule{keyword: keyword, response: response})
	}
	return nil
}

func (k *KeywordPlatform) ProcessMessage(_ context.Context, env Envelope) (Reply, error) {
	content := env.Content
	if !k.caseSensitive {
		content = strings.ToLower(content)
	}
	for _, rule := range k.rules {
		if strings.Contains(content, rule.keyword) {
			return Reply{Content: rule.response}, nil
		}
	}
	return Reply{NoReply: true}, nil
}

func (k *KeywordPlatform) TestConnection(_ context.Context) error {
	return nil
}
