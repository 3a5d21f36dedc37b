package i18n

// Supported interface languages. These are unrelated to the synthesis catalog.
const (
	LangEN = "en"
	LangDE = "de"
	LangES = "es"
	LangFR = "fr"
)

// DefaultLanguage is the fallback language
const DefaultLanguage = LangEN

// Supported lists interface languages in menu order.
var Supported = []string{LangEN, LangDE, LangES, LangFR}

// LanguageNames maps language codes to their display names
var LanguageNames = map[string]string{
	LangEN: "English",
	LangDE: "Deutsch",
	LangES: "Español",
	LangFR: "Français",
}

// Translations holds all translations
type Translations map[string]map[string]string

// Get returns a translation for a given language and key
func Get(lang, key string) string {
	if trans, ok := translations[lang]; ok {
		if val, ok := trans[key]; ok {
			return val
		}
	}
	// Fallback to English
	if trans, ok := translations[DefaultLanguage]; ok {
		if val, ok := trans[key]; ok {
			return val
		}
	}
	return key
}

var translations = Translations{
	LangEN: {
		"app.title":              "TextTones",
		"app.tagline":            "Turn text into natural speech",
		"nav.convert":            "Convert",
		"nav.dashboard":          "Dashboard",
		"nav.signout":            "Sign out",
		"signin.title":           "Sign in",
		"signin.intro":           "Sign in with your identity token to start converting.",
		"signin.token":           "Identity token",
		"signin.submit":          "Sign in",
		"signin.failed":          "Sign-in failed. Check your token and try again.",
		"convert.language":       "Language",
		"convert.voice":          "Voice",
		"convert.text":           "Text",
		"convert.placeholder":    "Type or paste the text to speak…",
		"convert.submit":         "Convert to speech",
		"convert.working":        "Converting…",
		"result.ready":           "Your audio is ready.",
		"result.session_closed":  "The session ended before playback was ready.",
		"result.download":        "Download MP3",
		"result.history_error":   "The audio was created but could not be saved to your history.",
		"error.validation":       "Please enter some text and pick a voice for the selected language.",
		"error.busy":             "A conversion is already running. Please wait for it to finish.",
		"error.synthesis":        "Speech synthesis failed. Please try again.",
		"error.generic":          "Something went wrong. Please try again.",
		"dashboard.title":        "Your activity",
		"dashboard.member_since": "Member since",
		"dashboard.conversions":  "Total conversions",
		"dashboard.characters":   "Characters used",
		"dashboard.duration":     "Audio duration",
		"dashboard.recent":       "Recent activity",
		"dashboard.empty":        "No conversions yet.",
		"dashboard.download":     "Download",
	},
	LangDE: {
		"app.title":              "TextTones",
		"app.tagline":            "Text in natürliche Sprache verwandeln",
		"nav.convert":            "Umwandeln",
		"nav.dashboard":          "Übersicht",
		"nav.signout":            "Abmelden",
		"signin.title":           "Anmelden",
		"signin.intro":           "Melde dich mit deinem Identitätstoken an, um loszulegen.",
		"signin.token":           "Identitätstoken",
		"signin.submit":          "Anmelden",
		"signin.failed":          "Anmeldung fehlgeschlagen. Bitte Token prüfen.",
		"convert.language":       "Sprache",
		"convert.voice":          "Stimme",
		"convert.text":           "Text",
		"convert.placeholder":    "Text zum Vorlesen eingeben…",
		"convert.submit":         "In Sprache umwandeln",
		"convert.working":        "Wird umgewandelt…",
		"result.ready":           "Deine Audiodatei ist fertig.",
		"result.session_closed":  "Die Sitzung wurde vor der Wiedergabe beendet.",
		"result.download":        "MP3 herunterladen",
		"result.history_error":   "Die Audiodatei wurde erstellt, konnte aber nicht im Verlauf gespeichert werden.",
		"error.validation":       "Bitte Text eingeben und eine Stimme für die gewählte Sprache auswählen.",
		"error.busy":             "Es läuft bereits eine Umwandlung. Bitte warten.",
		"error.synthesis":        "Die Sprachsynthese ist fehlgeschlagen. Bitte erneut versuchen.",
		"error.generic":          "Etwas ist schiefgelaufen. Bitte erneut versuchen.",
		"dashboard.title":        "Deine Aktivität",
		"dashboard.member_since": "Mitglied seit",
		"dashboard.conversions":  "Umwandlungen gesamt",
		"dashboard.characters":   "Verwendete Zeichen",
		"dashboard.duration":     "Audiodauer",
		"dashboard.recent":       "Letzte Aktivität",
		"dashboard.empty":        "Noch keine Umwandlungen.",
		"dashboard.download":     "Herunterladen",
	},
	LangES: {
		"app.title":              "TextTones",
		"app.tagline":            "Convierte texto en voz natural",
		"nav.convert":            "Convertir",
		"nav.dashboard":          "Panel",
		"nav.signout":            "Cerrar sesión",
		"signin.title":           "Iniciar sesión",
		"signin.intro":           "Inicia sesión con tu token de identidad para empezar.",
		"signin.token":           "Token de identidad",
		"signin.submit":          "Entrar",
		"signin.failed":          "No se pudo iniciar sesión. Revisa el token.",
		"convert.language":       "Idioma",
		"convert.voice":          "Voz",
		"convert.text":           "Texto",
		"convert.placeholder":    "Escribe o pega el texto…",
		"convert.submit":         "Convertir a voz",
		"convert.working":        "Convirtiendo…",
		"result.ready":           "Tu audio está listo.",
		"result.session_closed":  "La sesión terminó antes de la reproducción.",
		"result.download":        "Descargar MP3",
		"result.history_error":   "El audio se creó pero no se pudo guardar en tu historial.",
		"error.validation":       "Escribe un texto y elige una voz para el idioma seleccionado.",
		"error.busy":             "Ya hay una conversión en curso. Espera a que termine.",
		"error.synthesis":        "La síntesis de voz falló. Inténtalo de nuevo.",
		"error.generic":          "Algo salió mal. Inténtalo de nuevo.",
		"dashboard.title":        "Tu actividad",
		"dashboard.member_since": "Miembro desde",
		"dashboard.conversions":  "Conversiones totales",
		"dashboard.characters":   "Caracteres usados",
		"dashboard.duration":     "Duración de audio",
		"dashboard.recent":       "Actividad reciente",
		"dashboard.empty":        "Aún no hay conversiones.",
		"dashboard.download":     "Descargar",
	},
	LangFR: {
		"app.title":              "TextTones",
		"app.tagline":            "Transformez du texte en voix naturelle",
		"nav.convert":            "Convertir",
		"nav.dashboard":          "Tableau de bord",
		"nav.signout":            "Déconnexion",
		"signin.title":           "Connexion",
		"signin.intro":           "Connectez-vous avec votre jeton d'identité pour commencer.",
		"signin.token":           "Jeton d'identité",
		"signin.submit":          "Se connecter",
		"signin.failed":          "Échec de la connexion. Vérifiez votre jeton.",
		"convert.language":       "Langue",
		"convert.voice":          "Voix",
		"convert.text":           "Texte",
		"convert.placeholder":    "Saisissez ou collez le texte…",
		"convert.submit":         "Convertir en voix",
		"convert.working":        "Conversion…",
		"result.ready":           "Votre audio est prêt.",
		"result.session_closed":  "La session s'est terminée avant la lecture.",
		"result.download":        "Télécharger le MP3",
		"result.history_error":   "L'audio a été créé mais n'a pas pu être enregistré dans l'historique.",
		"error.validation":       "Saisissez un texte et choisissez une voix pour la langue sélectionnée.",
		"error.busy":             "Une conversion est déjà en cours. Veuillez patienter.",
		"error.synthesis":        "La synthèse vocale a échoué. Veuillez réessayer.",
		"error.generic":          "Une erreur est survenue. Veuillez réessayer.",
		"dashboard.title":        "Votre activité",
		"dashboard.member_since": "Membre depuis",
		"dashboard.conversions":  "Conversions totales",
		"dashboard.characters":   "Caractères utilisés",
		"dashboard.duration":     "Durée audio",
		"dashboard.recent":       "Activité récente",
		"dashboard.empty":        "Aucune conversion pour l'instant.",
		"dashboard.download":     "Télécharger",
	},
}
