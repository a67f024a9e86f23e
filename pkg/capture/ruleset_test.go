package capture_test

import (
	"os"
	"path/filepath"

	"github.com/lawrencejones/oddscap/pkg/capture"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("LoadRuleFile", func() {
	var (
		dir    string
		path   string
		source string
		groups []capture.RuleGroup
		err    error
	)

	BeforeEach(func() {
		dir, err = os.MkdirTemp("", "oddscap-rules-")
		Expect(err).NotTo(HaveOccurred())
		path = filepath.Join(dir, "rules.yaml")

		source = `
groups:
  - name: bet365_asian
    rules:
      - tag: bet365_asian
        dir: raw_bet365_asian
        ext: .txt
        mode: append
        match:
          contains: [matchbettingcontentapi]
          any_contains: [coupon, partial]
          query: {param: pd, contains: I3}
        extract:
          query_marker: {param: pd, filter: I3, marker: "#E", until: "#"}
  - name: related
    rules:
      - tag: related
        dir: raw_pinnacle
        ext: .json
        match:
          contains: [guest.api.arcadia.pinnacle.com, /related]
          excludes: [/markets/]
        extract:
          between: {after: /matchups/, until: /}
`
	})

	JustBeforeEach(func() {
		Expect(os.WriteFile(path, []byte(source), 0644)).To(Succeed())
		groups, err = capture.LoadRuleFile(path)
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("compiles groups in file order", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(groups).To(HaveLen(2))
		Expect(groups[0].Name).To(Equal("bet365_asian"))
		Expect(groups[1].Name).To(Equal("related"))
	})

	It("behaves like the built-in rules", func() {
		Expect(err).NotTo(HaveOccurred())

		rule, ok := groups[0].Match(couponURL)
		Expect(ok).To(BeTrue())
		Expect(rule.Mode).To(Equal(capture.AppendWithSeparator))
		Expect(rule.Extract(couponURL)).To(Equal("123456"))

		_, ok = groups[1].Match(straightURL)
		Expect(ok).To(BeFalse())

		rule, ok = groups[1].Match(relatedURL)
		Expect(ok).To(BeTrue())
		Expect(rule.Mode).To(Equal(capture.Overwrite))
		Expect(rule.Path("/data", "1578123456")).To(Equal("/data/raw_pinnacle/related_1578123456.json"))
	})

	Context("with an unknown field", func() {
		BeforeEach(func() {
			source = "groups:\n  - name: x\n    colour: blue\n"
		})

		It("fails to parse", func() {
			Expect(err).To(MatchError(ContainSubstring("failed to parse rule file")))
		})
	})

	Context("with a rule that matches everything", func() {
		BeforeEach(func() {
			source = "groups:\n  - name: x\n    rules:\n      - tag: x\n        extract: {between: {after: /}}\n"
		})

		It("is rejected", func() {
			Expect(err).To(MatchError(ContainSubstring("at least one condition")))
		})
	})

	Context("with two extractors", func() {
		BeforeEach(func() {
			source = `
groups:
  - name: x
    rules:
      - tag: x
        match: {contains: [a]}
        extract:
          between: {after: /}
          query_marker: {param: p, marker: m}
`
		})

		It("is rejected", func() {
			Expect(err).To(MatchError(ContainSubstring("exactly one")))
		})
	})

	Context("with an unknown write mode", func() {
		BeforeEach(func() {
			source = "groups:\n  - name: x\n    rules:\n      - tag: x\n        mode: prepend\n        match: {contains: [a]}\n        extract: {between: {after: /}}\n"
		})

		It("is rejected", func() {
			Expect(err).To(MatchError(ContainSubstring("unknown write mode")))
		})
	})

	Context("when the file is missing", func() {
		JustBeforeEach(func() {
			groups, err = capture.LoadRuleFile(filepath.Join(dir, "missing.yaml"))
		})

		It("fails", func() {
			Expect(err).To(MatchError(ContainSubstring("failed to read rule file")))
		})
	})
})
