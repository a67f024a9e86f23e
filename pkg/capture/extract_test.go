package capture_test

import (
	"github.com/lawrencejones/oddscap/pkg/capture"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Predicates", func() {
	DescribeTable("Contains",
		func(url string, expected bool) {
			Expect(capture.Contains("host.com", "/straight")(url)).To(Equal(expected))
		},
		Entry("all present", "https://host.com/a/straight", true),
		Entry("one missing", "https://host.com/a/related", false),
		Entry("none present", "https://other.com/", false),
	)

	DescribeTable("Excludes",
		func(url string, expected bool) {
			Expect(capture.Excludes("/markets/")(url)).To(Equal(expected))
		},
		Entry("absent", "https://host.com/matchups/1/related", true),
		Entry("in path", "https://host.com/matchups/1/markets/related/straight", false),
		Entry("in query", "https://host.com/matchups/1/related?next=/markets/", false),
	)

	DescribeTable("QueryContains",
		func(url string, expected bool) {
			Expect(capture.QueryContains("pd", "I3")(url)).To(Equal(expected))
		},
		Entry("encoded value with marker", "https://h/coupon?pd=%23E1%23I3%23", true),
		Entry("marker in second value", "https://h/coupon?pd=%23E1&pd=%23I3", true),
		Entry("marker in another param", "https://h/coupon?pd=%23E1&x=I3", false),
		Entry("marker only in fragment", "https://h/coupon?pd=%23E1#I3", false),
		Entry("no query", "https://h/coupon/I3", false),
	)

	It("AllOf with no predicates matches everything", func() {
		Expect(capture.AllOf()("anything")).To(BeTrue())
	})
})

var _ = Describe("Extractors", func() {
	Describe("Between", func() {
		extract := capture.Between("/matchups/", "/")

		DescribeTable("extracts",
			func(url, expected string) {
				Expect(extract(url)).To(Equal(expected))
			},
			Entry("segment", "https://h/0.1/matchups/1578/markets/related/straight", "1578"),
			Entry("end of url", "https://h/0.1/matchups/1578", "1578"),
			Entry("first occurrence", "https://h/matchups/1/matchups/2/", "1"),
		)

		It("fails when the delimiter is missing", func() {
			_, err := extract("https://h/0.1/leagues/markets/related/straight")
			Expect(err).To(MatchError(ContainSubstring("delimiter not found")))
		})
	})

	Describe("QueryMarker", func() {
		extract := capture.QueryMarker("pd", "I3", "#E", "#")

		DescribeTable("extracts",
			func(url, expected string) {
				Expect(extract(url)).To(Equal(expected))
			},
			Entry("decoded marker", "https://h/coupon?pd=%23AC%23B1%23E123456%23F3%23I3%23", "123456"),
			Entry("marker at end of value", "https://h/coupon?pd=%23I3%23E99", "99"),
			Entry("skips values without the filter", "https://h/coupon?pd=%23E1%23&pd=%23I3%23E2%23", "2"),
			Entry("value with a malformed escape", "https://h/coupon?pd=I3%23E987%23%ZZ", "987"),
		)

		It("ignores markers outside filtered values", func() {
			_, err := extract("https://h/coupon?pd=%23E1%23&pd=%23I3%23")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("QueryValues", func() {
		It("decodes values and drops empties", func() {
			Expect(capture.QueryValues("https://h/p?pd=&pd=a%23b&x=1", "pd")).To(Equal([]string{"a#b"}))
		})

		It("tolerates malformed pairs", func() {
			Expect(capture.QueryValues("https://h/p?bad=%zz&pd=ok", "pd")).To(Equal([]string{"ok"}))
		})

		It("keeps malformed escapes as literal text", func() {
			Expect(capture.QueryValues("https://h/p?pd=I3%23E987%23%ZZ+x%2", "pd")).To(Equal([]string{"I3#E987#%ZZ x%2"}))
		})

		It("only splits pairs on ampersands", func() {
			Expect(capture.QueryValues("https://h/p?pd=a;b&pd=c", "pd")).To(Equal([]string{"a;b", "c"}))
		})
	})
})
