// Package api es el cliente HTTP del API de Voci di Corridoio.
//
// Cada endpoint decodifica el sobre {success, message, data} y mapea los
// status a *apperr.Error según la semántica propia del endpoint. Los errores
// de transporte también salen como *apperr.Error (no_connectivity, timeout,
// host_unreachable, invalid_url, untrusted_certificate).
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/metrics"
	"github.com/dropDatabas3/voci/internal/observability/logger"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 16 << 20
)

// Options configura el cliente.
type Options struct {
	// BaseURL incluye el prefijo del API, ej: https://levoci.local/api
	BaseURL string
	Timeout time.Duration

	// CAFile es un PEM con el certificado del server (el que se descarga de
	// /downloads/certificates) agregado al pool del sistema.
	CAFile string

	// Transport base; nil usa http.DefaultTransport (o uno con CAFile).
	Transport http.RoundTripper
	Metrics   *metrics.Metrics
}

// Client habla con el API. Es seguro para uso concurrente.
type Client struct {
	base *url.URL
	http *http.Client
	log  *zap.Logger
}

// New valida la URL base y arma el cliente.
func New(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	rt := opts.Transport
	if rt == nil {
		rt = http.DefaultTransport
		if opts.CAFile != "" {
			t, err := transportWithCA(opts.CAFile)
			if err != nil {
				return nil, err
			}
			rt = t
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		base: base,
		http: &http.Client{Timeout: timeout, Transport: opts.Metrics.Transport(rt)},
		log:  logger.Named("api"),
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		e := apperr.InvalidURL(raw)
		if err != nil {
			return nil, e.WithCause(err)
		}
		return nil, e
	}
	return u, nil
}

func transportWithCA(path string) (*http.Transport, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("api: leer CA %s: %w", path, err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("api: %s no contiene certificados PEM", path)
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return t, nil
}

// URL arma la URL absoluta de path (que empieza con "/").
func (c *Client) URL(path string) string {
	return c.base.JoinPath(path).String()
}

// CertificateURL es el link de descarga del certificado del server.
func (c *Client) CertificateURL() string {
	return c.URL(PathCertificates)
}

// request describe una llamada.
type request struct {
	method      string
	path        string
	query       url.Values
	bearer      string
	body        []byte
	contentType string
}

// response es la respuesta cruda.
type response struct {
	status int
	body   []byte
	header http.Header
}

func (r *response) ok() bool { return r.status >= 200 && r.status < 300 }

// do ejecuta la llamada y mapea los errores de transporte.
func (c *Client) do(ctx context.Context, r request) (*response, error) {
	u := c.base.JoinPath(r.path)
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, apperr.InvalidURL(u.String()).WithCause(err)
	}
	if r.body != nil {
		ct := r.contentType
		if ct == "" {
			ct = "application/json"
		}
		req.Header.Set("Content-Type", ct)
	}
	req.Header.Set("Accept", "application/json")
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("request falló",
			logger.Method(r.method), logger.Endpoint(r.path), logger.Duration(time.Since(start)), logger.Err(err))
		return nil, mapTransportError(ctx, u.String(), err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, mapTransportError(ctx, u.String(), err)
	}

	c.log.Debug("request",
		logger.Method(r.method), logger.Endpoint(r.path), logger.Status(resp.StatusCode),
		logger.Bytes(len(b)), logger.Duration(time.Since(start)))

	return &response{status: resp.StatusCode, body: b, header: resp.Header}, nil
}

// mapTransportError clasifica un fallo antes de tener respuesta HTTP.
func mapTransportError(ctx context.Context, rawURL string, err error) error {
	// cancelación del caller: se propaga tal cual
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return ctx.Err()
	}
	if apperr.IsUntrustedCertificate(err) {
		return apperr.UntrustedCertificate(rawURL).WithCause(err)
	}

	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return apperr.Timeout(rawURL).WithCause(err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return apperr.HostUnreachable(dnsErr.Name).WithCause(err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) {
		return apperr.HostUnreachable(rawURL).WithCause(err)
	}
	if errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.ENETDOWN) {
		return apperr.NoConnectivity(err.Error()).WithCause(err)
	}

	var ue *url.Error
	if errors.As(err, &ue) && strings.Contains(ue.Err.Error(), "unsupported protocol scheme") {
		return apperr.InvalidURL(rawURL).WithCause(err)
	}
	return apperr.NoConnectivity(err.Error()).WithCause(err)
}
