package botconfig

import (
	"strings"

	"whatsbot/internal/models"
)

// fallbackEntry holds the canned pieces that vary per business type.
type fallbackEntry struct {
	SystemPrompt string
	Services     []string
	Schedule     string
}

const fallbackDefaultKey = "default"

// fallbackTable maps business types to canned configurations. The default
// entry is always present, so lookups never miss.
var fallbackTable = map[string]fallbackEntry{
	models.BusinessBarbershop: {
		SystemPrompt: "Eres el asistente virtual de una barbería profesional. Eres amigable, profesional y conoces todos los servicios. Ayudas a agendar citas, responder consultas sobre precios y servicios, y hacer seguimiento a clientes. Siempre confirmas fecha y hora cuando agendas.",
		Services:     []string{"Corte de cabello", "Afeitada", "Arreglo de barba", "Tratamiento capilar", "Tintura"},
		Schedule:     "Lunes a Sábado 8AM-7PM, Domingo 9AM-5PM",
	},
	models.BusinessRestaurant: {
		SystemPrompt: "Eres el asistente virtual de un restaurante. Eres cálido, profesional y conoces el menú completo. Ayudas con reservas, pedidos para llevar, información sobre el menú, y horarios. Siempre confirmas número de personas y fecha/hora para reservas.",
		Services:     []string{"Reservas", "Pedidos para llevar", "Información del menú", "Eventos especiales"},
		Schedule:     "Lunes a Domingo 11AM-10PM",
	},
	models.BusinessRetail: {
		SystemPrompt: "Eres el asistente virtual de una tienda. Eres amable, servicial y conoces todos los productos. Ayudas con consultas de productos, disponibilidad, precios, y proceso de compra. Capturas leads de clientes interesados.",
		Services:     []string{"Productos variados", "Consultas de precio", "Disponibilidad", "Compras"},
		Schedule:     "Lunes a Sábado 9AM-8PM",
	},
	fallbackDefaultKey: {
		SystemPrompt: "Eres el asistente virtual de un negocio. Eres amable, profesional y resuelves consultas de clientes. Ayudas con citas, precios, disponibilidad y consultas generales, y capturas los datos de contacto de clientes interesados.",
		Services:     []string{"Atención al cliente", "Consultas de precio", "Agendamiento", "Información general"},
		Schedule:     "Lunes a Sábado 9AM-6PM",
	},
}

// defaultActions is the canned action set shared by every fallback config.
var defaultActions = []Action{
	{
		Name:         "agendar_cita",
		Description:  "Agendar una cita o reserva",
		TriggerWords: []string{"cita", "reserva", "agendar", "hora", "cuándo"},
		Parameters:   []string{"fecha", "hora", "servicio", "nombre"},
	},
	{
		Name:         "consultar_precio",
		Description:  "Consultar precios de servicios",
		TriggerWords: []string{"precio", "cuánto cuesta", "costo", "tarifa"},
		Parameters:   []string{"servicio"},
	},
	{
		Name:         "consultar_disponibilidad",
		Description:  "Verificar disponibilidad",
		TriggerWords: []string{"disponible", "espacio", "abierto"},
		Parameters:   []string{"fecha", "hora"},
	},
}

var defaultTemplates = map[string]string{
	"greeting": "¡Hola! 👋 Bienvenido a nuestro servicio. ¿En qué puedo ayudarte hoy?",
	"goodbye":  "¡Gracias por contactarnos! 😊 Si necesitas algo más, aquí estoy para ayudarte.",
	"help":     "Puedo ayudarte con: citas/reservas, información de precios, disponibilidad, y consultas generales. ¿Qué necesitas?",
	"error":    "Lo siento, hubo un problema procesando tu solicitud. Por favor intenta de nuevo o contacta a soporte.",
}

// fallbackConfig builds the deterministic configuration for a profile. The
// caller's automation types and calendar flag flow through so the result
// satisfies the same contract as an LLM-produced config.
func fallbackConfig(profile models.BusinessProfile) *AutomationConfig {
	entry, ok := fallbackTable[profile.BusinessType]
	if !ok {
		entry = fallbackTable[fallbackDefaultKey]
	}

	name := businessNameFromDescription(profile.Description)

	actions := make([]Action, len(defaultActions))
	copy(actions, defaultActions)

	templates := make(map[string]string, len(defaultTemplates))
	for k, v := range defaultTemplates {
		templates[k] = v
	}

	return &AutomationConfig{
		SystemPrompt:      entry.SystemPrompt,
		AutomationTypes:   append([]string{}, profile.AutomationTypes...),
		AvailableActions:  actions,
		ResponseTemplates: templates,
		BusinessInfo: BusinessInfo{
			Name:        name,
			Type:        profile.BusinessType,
			Services:    append([]string{}, entry.Services...),
			ContactInfo: "WhatsApp Business",
			Schedule:    entry.Schedule,
		},
		Integrations: map[string]bool{
			"google_calendar": profile.ConnectCalendar,
			"crm":             true,
			"notifications":   true,
		},
	}
}

// businessNameFromDescription derives a short name from the first words of the
// free-text description.
func businessNameFromDescription(description string) string {
	words := strings.Fields(description)
	if len(words) == 0 {
		return "Mi Negocio"
	}
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, " ")
}
