package nlu

import (
	"strings"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"erpbot/pkg"
)

// The model is asked for JSON but answers in free text often enough that
// parsing is extraction, not decoding: find the first balanced JSON
// object in the output and decode that. Anything unusable degrades to an
// empty result.

type intentPayload struct {
	Intents []pkg.Intent `json:"intents"`
}

type entityPayload struct {
	Entities map[string]any `json:"entities"`
}

// ExtractJSON returns the first balanced {...} object in raw, honoring
// string literals and escapes.
func ExtractJSON(raw string) pkg.Maybe[string] {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return pkg.None[string]()
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return pkg.Some(raw[start : i+1])
			}
		}
	}
	return pkg.None[string]()
}

// ParseIntents decodes the intent-detection output. Unparseable output
// yields an empty slice; individual intents without a name are skipped.
func ParseIntents(raw string) []pkg.Intent {
	doc, ok := ExtractJSON(raw).Get()
	if !ok {
		log.Debug().Str("raw", truncate(raw, 200)).Msg("no JSON object in intent output")
		return nil
	}

	var payload intentPayload
	if err := sonic.UnmarshalString(doc, &payload); err != nil {
		log.Debug().Err(err).Msg("intent output did not decode")
		return nil
	}

	intents := make([]pkg.Intent, 0, len(payload.Intents))
	for _, in := range payload.Intents {
		if in.Name == "" {
			continue
		}
		if in.Confidence <= 0 || in.Confidence > 1 {
			in.Confidence = 1.0
		}
		intents = append(intents, in)
	}
	return intents
}

// ParseEntities decodes the entity-extraction output, a type→value
// object. Non-string values are stringified; empty values are skipped.
func ParseEntities(raw string) []pkg.Entity {
	doc, ok := ExtractJSON(raw).Get()
	if !ok {
		return nil
	}

	var payload entityPayload
	if err := sonic.UnmarshalString(doc, &payload); err != nil {
		log.Debug().Err(err).Msg("entity output did not decode")
		return nil
	}

	entities := make([]pkg.Entity, 0, len(payload.Entities))
	for entityType, value := range payload.Entities {
		text := stringifyValue(value)
		if text == "" {
			continue
		}
		entities = append(entities, pkg.Entity{Type: entityType, Value: text, Confidence: 1.0})
	}
	return entities
}

// ParseReply strips code fences and whitespace from a free-text reply.
func ParseReply(raw string) string {
	reply := strings.TrimSpace(raw)
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	return strings.TrimSpace(reply)
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case nil:
		return ""
	default:
		if s, err := sonic.MarshalString(v); err == nil {
			return strings.Trim(s, `"`)
		}
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
