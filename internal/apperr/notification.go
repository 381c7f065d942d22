package apperr

import "fmt"

// Severity de una notificación.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Notification es lo único que la capa de UI recibe para mostrar.
type Notification struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (n Notification) String() string {
	return n.Title + "\n\n" + n.Message
}

func errorNote(msg string) Notification {
	return Notification{Title: "Errore", Message: msg, Severity: SeverityError}
}

// notificationFor arma el texto (locale it) de cada categoría.
func notificationFor(k Kind, msg string) Notification {
	switch k {
	case KindMalformedData:
		return errorNote(fmt.Sprintf("Errore JSON riscontrato:\n%s", msg))
	case KindUntrustedCertificate:
		return Notification{
			Title:    "Certificato non attendibile",
			Message:  "Installa il certificato del server per continuare.",
			Severity: SeverityWarning,
		}
	case KindBadRequest:
		return errorNote(fmt.Sprintf("Richiesta non completa: %s", msg))
	case KindNotFound:
		return errorNote(fmt.Sprintf("Risorsa non trovata: %s", msg))
	case KindConflict:
		return errorNote(fmt.Sprintf("È stato trovato un conflitto: %s", msg))
	case KindPayloadTooLarge:
		return errorNote(fmt.Sprintf("Il file è troppo grande: %s", msg))
	case KindServerError:
		return errorNote(fmt.Sprintf("C'è stato un errore del server: %s", msg))
	case KindUnauthorized:
		return errorNote(fmt.Sprintf("Non autorizzato: %s", msg))
	case KindForbidden:
		return errorNote(fmt.Sprintf("Accesso negato: %s", msg))
	case KindInvalidURL:
		return errorNote(fmt.Sprintf("L'URL %s non è valido", msg))
	case KindServiceUnavailable:
		return Notification{
			Title:    "Servizio non disponibile",
			Message:  "Il server è temporaneamente irraggiungibile, riprova più tardi.",
			Severity: SeverityWarning,
		}
	case KindEmptyResultSet:
		return Notification{Title: "Nessun risultato", Message: "Non ci sono dati da mostrare.", Severity: SeverityInfo}
	case KindCredentialSave:
		return errorNote(fmt.Sprintf("Impossibile salvare %s in modo sicuro.", msg))
	case KindInvalidCredentials:
		return errorNote("Email o password errate.")
	case KindEmailUnverified:
		return Notification{Title: "Email non verificata", Message: "Controlla la tua casella e conferma l'indirizzo email.", Severity: SeverityWarning}
	case KindUserNotFound:
		return errorNote("Utente non trovato.")
	case KindNoConnectivity:
		return Notification{Title: "Offline", Message: "Nessuna connessione a internet.", Severity: SeverityWarning}
	case KindTimeout:
		return Notification{Title: "Timeout", Message: "Il server non ha risposto in tempo.", Severity: SeverityWarning}
	case KindHostUnreachable:
		return errorNote(fmt.Sprintf("Server irraggiungibile: %s", msg))
	case KindMissingToken:
		return errorNote(fmt.Sprintf("Sessione non valida: token %s mancante.", msg))
	case KindReauthRequested:
		return Notification{Title: "Profilo aggiornato", Message: "Sto aggiornando i dati del tuo profilo.", Severity: SeverityInfo}
	case KindImageNotFound:
		return errorNote("Immagine del profilo non trovata.")
	default:
		return errorNote(fmt.Sprintf("Errore riscontrato:\n%s", msg))
	}
}
