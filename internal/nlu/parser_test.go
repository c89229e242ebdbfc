package nlu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpbot/pkg"
)

func TestExtractJSONFindsObjectInsideProse(t *testing.T) {
	raw := "Claro, aquí tienes:\n```json\n{\"intents\": [{\"name\": \"saludo\"}]}\n```\nEspero que sirva."
	doc, ok := ExtractJSON(raw).Get()
	require.True(t, ok)
	assert.Equal(t, `{"intents": [{"name": "saludo"}]}`, doc)
}

func TestExtractJSONHandlesNestedBracesAndStrings(t *testing.T) {
	raw := `texto {"a": {"b": "llave } dentro"}, "c": 1} cola`
	doc, ok := ExtractJSON(raw).Get()
	require.True(t, ok)
	assert.Equal(t, `{"a": {"b": "llave } dentro"}, "c": 1}`, doc)
}

func TestExtractJSONEmptyWhenNoObject(t *testing.T) {
	_, ok := ExtractJSON("no hay json aquí").Get()
	assert.False(t, ok)
	_, ok = ExtractJSON("abierto { sin cerrar").Get()
	assert.False(t, ok)
}

func TestParseIntents(t *testing.T) {
	raw := `{"intents": [{"name": "solicitud_prueba", "confidence": 0.95}, {"name": "saludo", "confidence": 0.4}]}`

	intents := ParseIntents(raw)

	require.Len(t, intents, 2)
	assert.Equal(t, pkg.IntentTrialRequest, intents[0].Name)
	assert.Equal(t, 0.95, intents[0].Confidence)
}

func TestParseIntentsSkipsNamelessAndFixesConfidence(t *testing.T) {
	raw := `{"intents": [{"confidence": 0.9}, {"name": "saludo", "confidence": 7}]}`

	intents := ParseIntents(raw)

	require.Len(t, intents, 1)
	assert.Equal(t, pkg.IntentGreeting, intents[0].Name)
	assert.Equal(t, 1.0, intents[0].Confidence)
}

func TestParseIntentsDegradesToEmpty(t *testing.T) {
	assert.Empty(t, ParseIntents("el modelo divagó sin JSON"))
	assert.Empty(t, ParseIntents(`{"intents": "no es una lista"}`))
}

func TestParseEntities(t *testing.T) {
	raw := `{"entities": {"nombre": "Juan Pérez", "monto_credito": 50000}}`

	entities := ParseEntities(raw)

	require.Len(t, entities, 2)
	byType := map[string]string{}
	for _, e := range entities {
		byType[e.Type] = e.Value
		assert.Equal(t, 1.0, e.Confidence)
	}
	assert.Equal(t, "Juan Pérez", byType["nombre"])
	assert.Equal(t, "50000", byType["monto_credito"])
}

func TestParseEntitiesSkipsEmptyValues(t *testing.T) {
	raw := `{"entities": {"nombre": "", "empresa": "  ", "correo": null}}`
	assert.Empty(t, ParseEntities(raw))
}

func TestParseReplyStripsFences(t *testing.T) {
	assert.Equal(t, "¡Hola! ¿En qué te ayudo?", ParseReply("```\n¡Hola! ¿En qué te ayudo?\n```"))
	assert.Equal(t, "listo", ParseReply("  listo  "))
	assert.Equal(t, "", ParseReply("   "))
}
