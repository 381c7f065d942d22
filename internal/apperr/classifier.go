package apperr

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dropDatabas3/voci/internal/metrics"
	"github.com/dropDatabas3/voci/internal/observability/logger"
)

// Alert es una notificación bloqueante con una acción de remediación.
type Alert struct {
	Notification Notification `json:"notification"`
	ActionTitle  string       `json:"action_title,omitempty"`
	ActionURL    string       `json:"action_url,omitempty"`
}

// Sink recibe lo que hay que mostrar (notify.Center lo implementa).
type Sink interface {
	Toast(n Notification)
	Alert(a Alert)
}

// Refresher refresca la identidad actual en background (session.Manager).
type Refresher interface {
	RefreshCurrentIdentity(ctx context.Context) error
}

// Classifier es el único punto que traduce errores en notificaciones.
type Classifier struct {
	sink    Sink
	certURL string
	metrics *metrics.Metrics
	log     *zap.Logger

	refresher atomic.Pointer[Refresher]
	certShown atomic.Bool
	wg        sync.WaitGroup
}

// NewClassifier crea el clasificador. certURL es el link de descarga del
// certificado que se ofrece cuando el server no es de confianza.
func NewClassifier(sink Sink, certURL string, m *metrics.Metrics) *Classifier {
	return &Classifier{
		sink:    sink,
		certURL: certURL,
		metrics: m,
		log:     logger.Named("classifier"),
	}
}

// SetRefresher conecta el refresco en background de la identidad.
// Se setea después de construir el Session Manager (dependencia circular).
func (c *Classifier) SetRefresher(r Refresher) {
	if r == nil {
		c.refresher.Store(nil)
		return
	}
	c.refresher.Store(&r)
}

// Classify devuelve la notificación de err. ok=false significa "no accionable":
// el error ya se escaló como alerta (certificado no confiable) y no debe
// mostrarse como toast.
func (c *Classifier) Classify(err error) (Notification, bool) {
	if err == nil {
		return Notification{}, false
	}
	kind, n, ok := c.classify(err)
	c.metrics.Classified(string(kind))
	c.log.Debug("error clasificado", logger.Kind(string(kind)), logger.Err(err))
	return n, ok
}

func (c *Classifier) classify(err error) (Kind, Notification, bool) {
	// 1) decodificación/codificación
	if msg, ok := decodingMessage(err); ok {
		return KindMalformedData, notificationFor(KindMalformedData, msg), true
	}

	// 2) certificado no confiable: alerta bloqueante una sola vez
	if IsUntrustedCertificate(err) {
		if c.certShown.CompareAndSwap(false, true) {
			c.sink.Alert(Alert{
				Notification: notificationFor(KindUntrustedCertificate, ""),
				ActionTitle:  "Scarica certificato",
				ActionURL:    c.certURL,
			})
		}
		return KindUntrustedCertificate, Notification{}, false
	}

	// 3) errores de dominio
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Kind == KindReauthRequested {
			c.triggerReauth()
		}
		return ae.Kind, ae.Notification(), true
	}

	// 4) todo lo demás
	return KindUnknown, notificationFor(KindUnknown, err.Error()), true
}

// Report clasifica err y, si es accionable, lo encola como toast.
func (c *Classifier) Report(err error) {
	if n, ok := c.Classify(err); ok {
		c.sink.Toast(n)
	}
}

// Reset rearma la alerta de certificado (logout).
func (c *Classifier) Reset() {
	c.certShown.Store(false)
}

// Wait espera los refrescos en background disparados por Classify.
func (c *Classifier) Wait() {
	c.wg.Wait()
}

func (c *Classifier) triggerReauth() {
	rp := c.refresher.Load()
	if rp == nil {
		return
	}
	r := *rp
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := r.RefreshCurrentIdentity(context.Background()); err != nil {
			c.log.Warn("refresco de identidad en background falló", logger.Err(err))
			// vuelve a pasar por el clasificador como notificación independiente
			c.Report(err)
		}
	}()
}

func decodingMessage(err error) (string, bool) {
	var (
		syn *json.SyntaxError
		typ *json.UnmarshalTypeError
		mar *json.MarshalerError
		uns *json.UnsupportedTypeError
		inv *json.InvalidUnmarshalError
		ae  *Error
	)
	switch {
	case errors.As(err, &ae) && ae.Kind == KindMalformedData:
		return ae.Message, true
	case errors.As(err, &syn), errors.As(err, &typ), errors.As(err, &mar),
		errors.As(err, &uns), errors.As(err, &inv), errors.Is(err, io.ErrUnexpectedEOF):
		return err.Error(), true
	}
	return "", false
}

// IsUntrustedCertificate reporta si err es un fallo de verificación TLS del server.
func IsUntrustedCertificate(err error) bool {
	var (
		unknownAuth x509.UnknownAuthorityError
		invalid     x509.CertificateInvalidError
		hostname    x509.HostnameError
		verify      *tls.CertificateVerificationError
	)
	return Is(err, KindUntrustedCertificate) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &invalid) ||
		errors.As(err, &hostname) ||
		errors.As(err, &verify)
}
