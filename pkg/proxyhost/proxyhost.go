// Mounts a capture sink onto goproxy, so intercepted provider traffic flows into buckets.
// goproxy owns TLS termination, leaf certificate generation and connection handling; this
// package only decides which hosts to MITM and wires the response hook.
package proxyhost

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"regexp"
	"sync"

	"github.com/alecthomas/kingpin"
	"github.com/elazarl/goproxy"
	kitlog "github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

type Options struct {
	MITMHosts   []string
	CACertPath  string
	CAKeyPath   string
	MaxBodySize int64
	Verbose     bool
}

func (opt *Options) Bind(cmd *kingpin.CmdClause, prefix string) *Options {
	cmd.Flag(fmt.Sprintf("%smitm-host", prefix), "Regex of CONNECT hosts to intercept, others are tunnelled untouched").Default(`pinnacle\.com(:\d+)?$`, `bet365\.[a-z.]+(:\d+)?$`).StringsVar(&opt.MITMHosts)
	cmd.Flag(fmt.Sprintf("%sca-cert", prefix), "PEM CA certificate used to sign intercepted hosts, defaults to goproxy's CA").StringVar(&opt.CACertPath)
	cmd.Flag(fmt.Sprintf("%sca-key", prefix), "PEM private key for the CA certificate").StringVar(&opt.CAKeyPath)
	cmd.Flag(fmt.Sprintf("%smax-body-size", prefix), "Largest response body, in bytes, handed to the sink").Default("67108864").Int64Var(&opt.MaxBodySize)
	cmd.Flag(fmt.Sprintf("%sverbose", prefix), "Log every proxied request").Default("false").BoolVar(&opt.Verbose)

	return opt
}

// New builds a proxy that intercepts TLS for the configured hosts and observes every
// response it proxies.
func New(logger kitlog.Logger, handler Handler, opts Options) (*goproxy.ProxyHttpServer, error) {
	ca, err := loadCA(opts.CACertPath, opts.CAKeyPath)
	if err != nil {
		return nil, err
	}

	hosts := make([]*regexp.Regexp, 0, len(opts.MITMHosts))
	for _, pattern := range opts.MITMHosts {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid mitm host pattern %q", pattern)
		}

		hosts = append(hosts, re)
	}

	proxy := goproxy.NewProxyHttpServer()
	proxy.Verbose = opts.Verbose
	proxy.Logger = printfLogger{kitlog.With(logger, "component", "goproxy")}

	// Without a store, goproxy signs a fresh leaf for every CONNECT
	proxy.CertStore = newCertCache()

	mitm := &goproxy.ConnectAction{
		Action:    goproxy.ConnectMitm,
		TLSConfig: goproxy.TLSConfigFromCA(ca),
	}

	if len(hosts) > 0 {
		proxy.OnRequest(goproxy.ReqHostMatches(hosts...)).HandleConnectFunc(
			func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
				logger.Log("event", "connect.mitm", "host", host)
				return mitm, host
			},
		)
	}

	observer := NewObserver(logger, handler, opts.MaxBodySize)
	proxy.OnResponse().DoFunc(func(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
		return observer.ObserveResponse(resp)
	})

	return proxy, nil
}

// loadCA reads a CA key pair, falling back to goproxy's bundled CA when no paths are given.
// Clients must trust whichever CA is used.
func loadCA(certPath, keyPath string) (*tls.Certificate, error) {
	if certPath == "" && keyPath == "" {
		ca := goproxy.GoproxyCa
		return &ca, nil
	}

	if certPath == "" || keyPath == "" {
		return nil, errors.New("ca-cert and ca-key must be provided together")
	}

	ca, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load CA key pair")
	}

	if ca.Leaf, err = x509.ParseCertificate(ca.Certificate[0]); err != nil {
		return nil, errors.Wrap(err, "failed to parse CA certificate")
	}

	return &ca, nil
}

// certCache keeps generated leaf certificates in memory for the life of the process.
type certCache struct {
	certs map[string]*tls.Certificate
	mtx   sync.RWMutex
}

func newCertCache() *certCache {
	return &certCache{certs: map[string]*tls.Certificate{}}
}

func (c *certCache) Fetch(hostname string, gen func() (*tls.Certificate, error)) (*tls.Certificate, error) {
	c.mtx.RLock()
	cert, ok := c.certs[hostname]
	c.mtx.RUnlock()
	if ok {
		return cert, nil
	}

	cert, err := gen()
	if err != nil {
		return nil, err
	}

	c.mtx.Lock()
	c.certs[hostname] = cert
	c.mtx.Unlock()

	return cert, nil
}

// printfLogger adapts go-kit to the Printf logger goproxy expects.
type printfLogger struct {
	logger kitlog.Logger
}

func (l printfLogger) Printf(format string, v ...interface{}) {
	l.logger.Log("msg", fmt.Sprintf(format, v...))
}
