package nlu

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"erpbot/internal/config"
	"erpbot/pkg"
)

func testView() pkg.ContextView {
	return pkg.ContextView{
		Registered: true,
		Profile:    pkg.UserProfile{Registered: true, Name: "Ana", Company: "Acme"},
		Entities:   map[string]string{"nombre": "Ana", "empresa": "Acme"},
		RecentMessages: []pkg.MemoryMessage{
			{Content: "hola", FromUser: true},
			{Content: "¡Hola Ana!", FromUser: false},
		},
		RecentIntents:   []string{pkg.IntentGreeting},
		CurrentTopic:    pkg.TopicPricingInquiry,
		ContextStrength: 0.8,
	}
}

func TestBuildIntentPromptEmbedsCatalogAndContext(t *testing.T) {
	catalog := config.DefaultCatalog()

	system, user := BuildIntentPrompt("¿cuánto cuesta?", testView(), &catalog)

	for _, name := range catalog.IntentNames() {
		assert.Contains(t, system, name)
	}
	assert.Contains(t, user, "usuario: hola")
	assert.Contains(t, user, "asistente: ¡Hola Ana!")
	assert.Contains(t, user, "Current topic: pricing_inquiry")
	assert.Contains(t, user, `["saludo"]`)
	assert.Contains(t, user, "¿cuánto cuesta?")
}

func TestBuildIntentPromptOmitsEmptyContextSections(t *testing.T) {
	catalog := config.DefaultCatalog()
	view := pkg.EmptyContextView()
	view.CurrentTopic = ""

	_, user := BuildIntentPrompt("hola", view, &catalog)

	assert.NotContains(t, user, "<conversation_context>")
	assert.NotContains(t, user, "Recent intents")
	assert.Contains(t, user, "hola")
}

func TestBuildEntityPromptListsEntityTypes(t *testing.T) {
	catalog := config.DefaultCatalog()

	system, user := BuildEntityPrompt("mi correo es a@b.com", &catalog)

	for _, entityType := range catalog.EntityTypes {
		assert.Contains(t, system, entityType)
	}
	assert.Contains(t, user, "mi correo es a@b.com")
}

func TestBuildResponsePromptUsesProfileAndEntities(t *testing.T) {
	system, user := BuildResponsePrompt("¿y el precio?", testView(), false)

	assert.Contains(t, system, "Nombre: Ana")
	assert.Contains(t, system, "Empresa: Acme")
	assert.Contains(t, system, "- nombre: Ana")
	assert.Contains(t, system, "Tema actual: pricing_inquiry")
	assert.NotContains(t, system, "acaba de cambiar")
	assert.Contains(t, user, "usuario: ¿y el precio?")
}

func TestBuildResponsePromptNarratesTopicChange(t *testing.T) {
	system, _ := BuildResponsePrompt("mejor quiero una demo", testView(), true)
	assert.Contains(t, system, "acaba de cambiar")
}

func TestBuildResponsePromptUnregisteredBranch(t *testing.T) {
	system, _ := BuildResponsePrompt("hola", pkg.EmptyContextView(), false)
	assert.Contains(t, system, "no está registrado")
	assert.False(t, strings.Contains(system, "Nombre:"))
}
