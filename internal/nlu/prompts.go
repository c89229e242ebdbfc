package nlu

import (
	"erpbot/internal/config"
	"erpbot/internal/template"
	"erpbot/pkg"
)

const intentSystemPrompt = `You are an expert NLU system for a WhatsApp assistant of a demo ERP platform. Follow the instructions precisely and return structured output.

-Goal-
Given a user message (usually Spanish), detect the user's **intents** from a closed catalog.

STRICT RULES:
1. You MUST ONLY return intents that appear in the provided catalog
2. DO NOT invent intents that are not in the catalog
3. Return at most 3 intents, highest confidence first
4. Confidence is a number between 0 and 1
5. Answer ONLY with a JSON object, no prose

Catalog:
{{#each intents}}- {{this}}
{{/each}}
Output format:
{"intents": [{"name": "<intent_from_catalog>", "confidence": <0..1>}]}`

const intentUserPrompt = `{{#if context.recentMessages}}<conversation_context>
{{#each context.recentMessages}}{{this.role}}: {{this.content}}
{{/each}}</conversation_context>
{{/if}}{{#if context.currentTopic}}Current topic: {{context.currentTopic}}
{{/if}}{{#if context.recentIntents}}Recent intents: {{JSON.stringify context.recentIntents}}
{{/if}}
<current_message_to_analyze>
{{message}}
</current_message_to_analyze>

Output:`

const entitySystemPrompt = `You are an expert entity extractor for a WhatsApp assistant of a demo ERP platform.

-Goal-
Extract the typed facts that are LITERALLY PRESENT in the current message.

STRICT RULES:
1. Only use these entity types: {{#each entityTypes}}{{this}} {{/each}}
2. Only extract values explicitly mentioned in the current message text
3. Do NOT copy values from the conversation context
4. Answer ONLY with a JSON object, no prose

Output format:
{"entities": {"<type>": "<value>"}}

Example:
text: Mi nombre es Juan Pérez y mi correo es juan@acme.com
Output:
{"entities": {"nombre": "Juan Pérez", "correo": "juan@acme.com"}}`

const entityUserPrompt = `text: {{message}}
Output:`

const responseSystemPrompt = `Eres el asistente de WhatsApp de una plataforma ERP de demostración. Respondes en español, breve y cordial, como en un chat.

{{#if context.registered}}El usuario está registrado:
{{#if context.profile.name}}- Nombre: {{context.profile.name}}
{{/if}}{{#if context.profile.company}}- Empresa: {{context.profile.company}}
{{/if}}{{#if context.profile.plan}}- Plan: {{context.profile.plan}}
{{/if}}{{else}}El usuario no está registrado todavía.
{{/if}}{{#if context.entities}}Datos conocidos de la conversación:
{{#each context.entities}}- {{@key}}: {{this}}
{{/each}}{{/if}}Tema actual: {{context.currentTopic}}
{{#if topicChanged}}El tema acaba de cambiar; reconoce el cambio de forma natural antes de responder.
{{/if}}
Reglas:
- No inventes datos del ERP; si falta información, pídela.
- Usa los datos conocidos en lugar de volver a preguntarlos.
- Máximo tres frases.`

const responseUserPrompt = `{{#if context.recentMessages}}<historial>
{{#each context.recentMessages}}{{this.role}}: {{this.content}}
{{/each}}</historial>
{{/if}}usuario: {{message}}`

var (
	intentSystemTpl   = mustParse(intentSystemPrompt)
	intentUserTpl     = mustParse(intentUserPrompt)
	entitySystemTpl   = mustParse(entitySystemPrompt)
	entityUserTpl     = mustParse(entityUserPrompt)
	responseSystemTpl = mustParse(responseSystemPrompt)
	responseUserTpl   = mustParse(responseUserPrompt)
)

func mustParse(raw string) *template.Template {
	t, err := template.Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// BuildIntentPrompt renders the intent-detection prompt pair.
func BuildIntentPrompt(message string, view pkg.ContextView, catalog *config.Catalog) (system, user string) {
	vars := map[string]any{
		"message": message,
		"context": contextVars(view),
		"intents": catalog.IntentNames(),
	}
	return intentSystemTpl.Render(vars), intentUserTpl.Render(vars)
}

// BuildEntityPrompt renders the entity-extraction prompt pair.
func BuildEntityPrompt(message string, catalog *config.Catalog) (system, user string) {
	vars := map[string]any{
		"message":     message,
		"entityTypes": catalog.EntityTypes,
	}
	return entitySystemTpl.Render(vars), entityUserTpl.Render(vars)
}

// BuildResponsePrompt renders the reply-generation prompt pair.
// topicChanged switches on the transition narration.
func BuildResponsePrompt(message string, view pkg.ContextView, topicChanged bool) (system, user string) {
	vars := map[string]any{
		"message":      message,
		"context":      contextVars(view),
		"topicChanged": topicChanged,
	}
	return responseSystemTpl.Render(vars), responseUserTpl.Render(vars)
}

// contextVars flattens a ContextView into the template variable bag.
func contextVars(view pkg.ContextView) map[string]any {
	messages := make([]map[string]any, 0, len(view.RecentMessages))
	for _, m := range view.RecentMessages {
		role := "asistente"
		if m.FromUser {
			role = "usuario"
		}
		messages = append(messages, map[string]any{
			"role":    role,
			"content": m.Content,
		})
	}

	topics := make([]string, 0, len(view.RecentTopics))
	for _, t := range view.RecentTopics {
		topics = append(topics, string(t))
	}

	return map[string]any{
		"registered": view.Registered,
		"profile": map[string]any{
			"name":    view.Profile.Name,
			"email":   view.Profile.Email,
			"company": view.Profile.Company,
			"plan":    view.Profile.Plan,
		},
		"entities":        view.Entities,
		"recentMessages":  messages,
		"recentIntents":   view.RecentIntents,
		"currentTopic":    string(view.CurrentTopic),
		"recentTopics":    topics,
		"contextStrength": view.ContextStrength,
	}
}
