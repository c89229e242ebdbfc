package config

import (
	"erpbot/pkg"
)

// Catalog is the intent/entity rule data consumed by the reconciler and
// the prompt builders. It is trusted configuration: rules are assumed
// well-formed and are not defensively validated.
type Catalog struct {
	Intents []IntentRule `yaml:"intents"`

	// EntityTypes is the closed list of entity types the extractor may emit.
	EntityTypes []string `yaml:"entity_types"`

	// TriggerPhrases maps a trigger category (self_reference, continuity,
	// action_request) to its phrase list. Matching is lowercase substring.
	TriggerPhrases map[string][]string `yaml:"trigger_phrases"`

	// EntityTriggers maps an entity type to the trigger categories that
	// allow its known value to be carried forward into the current turn.
	EntityTriggers map[string][]string `yaml:"entity_triggers"`

	// EntityLiterals are extra per-type words whose literal mention also
	// triggers inference (e.g. "empresa" for the company entity).
	EntityLiterals map[string][]string `yaml:"entity_literals"`
}

// IntentRule declares one catalog intent with its detection keywords and
// relations to other intents.
type IntentRule struct {
	Name      string     `yaml:"name"`
	Strong    bool       `yaml:"strong"`
	Keywords  []string   `yaml:"keywords"`
	Relations []Relation `yaml:"relations"`
}

// Relation adds a related intent when its condition holds:
// "always", or "contains" with at least one keyword in the message.
type Relation struct {
	Intent    string   `yaml:"intent"`
	Condition string   `yaml:"condition"`
	Keywords  []string `yaml:"keywords"`
}

// Rule returns the rule for an intent name, if declared.
func (c *Catalog) Rule(name string) (IntentRule, bool) {
	for _, r := range c.Intents {
		if r.Name == name {
			return r, true
		}
	}
	return IntentRule{}, false
}

// IntentNames lists every declared intent, catalog order.
func (c *Catalog) IntentNames() []string {
	names := make([]string, 0, len(c.Intents))
	for _, r := range c.Intents {
		names = append(names, r.Name)
	}
	return names
}

// StrongIntents returns the set of intents that signal a decisive topic.
func (c *Catalog) StrongIntents() map[string]bool {
	strong := make(map[string]bool)
	for _, r := range c.Intents {
		if r.Strong {
			strong[r.Name] = true
		}
	}
	return strong
}

// DefaultCatalog is the demo ERP assistant catalog. Deployments override
// it wholesale from config.yaml.
func DefaultCatalog() Catalog {
	return Catalog{
		Intents: []IntentRule{
			{
				Name:     pkg.IntentTrialRequest,
				Strong:   true,
				Keywords: []string{"prueba gratis", "probar el sistema", "demo", "periodo de prueba"},
				Relations: []Relation{
					{Intent: pkg.IntentServiceInterest, Condition: "always"},
				},
			},
			{
				Name:     pkg.IntentTechSupport,
				Strong:   true,
				Keywords: []string{"no funciona", "tengo un problema", "ayuda con", "error"},
			},
			{
				Name:     pkg.IntentComplaint,
				Strong:   true,
				Keywords: []string{"queja", "reclamo", "inconforme", "molesto"},
			},
			{
				Name:     pkg.IntentCancellation,
				Strong:   true,
				Keywords: []string{"cancelar", "dar de baja", "anular"},
			},
			{
				Name:     pkg.IntentPriceQuery,
				Keywords: []string{"precio", "costo", "cuanto cuesta", "cuánto cuesta", "tarifa"},
				Relations: []Relation{
					{Intent: pkg.IntentServiceInterest, Condition: "contains", Keywords: []string{"contratar", "adquirir", "comprar"}},
				},
			},
			{
				Name:     pkg.IntentFeatureQuery,
				Keywords: []string{"caracteristicas", "características", "que incluye", "qué incluye", "funciones", "modulos", "módulos"},
				Relations: []Relation{
					{Intent: pkg.IntentPriceQuery, Condition: "contains", Keywords: []string{"precio", "costo"}},
				},
			},
			{
				Name:     pkg.IntentServiceInterest,
				Keywords: []string{"me interesa", "quiero el servicio", "quiero contratar"},
			},
			{
				Name:     pkg.IntentConfirmation,
				Keywords: []string{"confirmo", "de acuerdo", "esta bien", "está bien"},
			},
			{
				Name:     pkg.IntentGratitude,
				Keywords: []string{"gracias", "muy amable", "te lo agradezco"},
			},
			{
				Name:     pkg.IntentGreeting,
				Keywords: []string{"hola", "buenos dias", "buenos días", "buenas tardes", "buenas noches"},
			},
			{
				Name:     pkg.IntentFarewell,
				Keywords: []string{"adios", "adiós", "hasta luego", "nos vemos"},
			},
		},
		EntityTypes: []string{"nombre", "correo", "empresa", "telefono", "monto_credito", "plan"},
		TriggerPhrases: map[string][]string{
			"self_reference": {"mi ", "yo ", "quiero ", "me llamo", "soy ", "mi nombre"},
			"continuity":     {"sí", "si,", "si ", "correcto", "vale", "claro", "ok", "exacto", "perfecto"},
			"action_request": {"crear", "generar", "continuar", "registrar", "agendar", "activar"},
		},
		EntityTriggers: map[string][]string{
			"nombre":        {"self_reference", "continuity", "action_request"},
			"correo":        {"self_reference", "action_request"},
			"empresa":       {"self_reference", "continuity", "action_request"},
			"telefono":      {"self_reference", "action_request"},
			"monto_credito": {"continuity", "action_request"},
			"plan":          {"continuity", "action_request"},
		},
		EntityLiterals: map[string][]string{
			"empresa": {"empresa", "compañía", "compania", "negocio"},
		},
	}
}
