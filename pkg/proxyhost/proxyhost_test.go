package proxyhost_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"

	"github.com/lawrencejones/oddscap/pkg/proxyhost"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("New", func() {
	var (
		handler  *fakeHandler
		upstream *httptest.Server
		proxy    *httptest.Server
		client   *http.Client
		opts     proxyhost.Options
	)

	BeforeEach(func() {
		handler = &fakeHandler{}
		opts = proxyhost.Options{
			MITMHosts:   []string{`pinnacle\.com(:\d+)?$`},
			MaxBodySize: 1 << 20,
		}

		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"path":%q}`, r.URL.Path)
		}))
	})

	JustBeforeEach(func() {
		server, err := proxyhost.New(logger, handler, opts)
		Expect(err).NotTo(HaveOccurred())

		proxy = httptest.NewServer(server)
		proxyURL, _ := url.Parse(proxy.URL)
		client = &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}
	})

	AfterEach(func() {
		proxy.Close()
		upstream.Close()
	})

	It("observes proxied responses and relays them unchanged", func() {
		resp, err := client.Get(upstream.URL + "/0.1/matchups/9/related")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal(`{"path":"/0.1/matchups/9/related"}`))

		Eventually(handler.Observations).Should(HaveLen(1))
		Expect(handler.Observations()[0].URL).To(Equal(upstream.URL + "/0.1/matchups/9/related"))
		Expect(string(handler.Observations()[0].Body)).To(Equal(`{"path":"/0.1/matchups/9/related"}`))
	})

	Context("with an invalid mitm host pattern", func() {
		It("fails", func() {
			_, err := proxyhost.New(logger, handler, proxyhost.Options{MITMHosts: []string{"("}})
			Expect(err).To(MatchError(ContainSubstring("invalid mitm host pattern")))
		})
	})

	Context("with only half a CA key pair", func() {
		It("fails", func() {
			_, err := proxyhost.New(logger, handler, proxyhost.Options{CACertPath: "ca.pem"})
			Expect(err).To(MatchError(ContainSubstring("must be provided together")))
		})
	})
})
