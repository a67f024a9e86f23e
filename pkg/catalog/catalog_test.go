package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/lawrencejones/oddscap/pkg/capture"
	"github.com/lawrencejones/oddscap/pkg/catalog"

	kitlog "github.com/go-kit/kit/log"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Catalog", func() {
	var (
		root   string
		groups []capture.RuleGroup
		cat    *catalog.Catalog
		err    error
	)

	write := func(name, content string, modTime time.Time) {
		path := filepath.Join(root, name)
		Expect(os.MkdirAll(filepath.Dir(path), 0755)).To(Succeed())
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		Expect(os.Chtimes(path, modTime, modTime)).To(Succeed())
	}

	BeforeEach(func() {
		root, err = os.MkdirTemp("", "oddscap-catalog-")
		Expect(err).NotTo(HaveOccurred())

		groups = capture.DefaultRuleGroups(capture.DefaultPinnacleDir, capture.DefaultBet365Dir)
	})

	JustBeforeEach(func() {
		cat, err = catalog.Scan(root, groups)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(root)
	})

	Context("before anything is captured", func() {
		It("is empty", func() {
			Expect(cat.IDs()).To(BeEmpty())
			Expect(cat.Ready("pinnacle")).To(BeFalse())
		})
	})

	Context("with buckets", func() {
		var (
			earlier = time.Now().Add(-time.Hour).Truncate(time.Second)
			later   = time.Now().Truncate(time.Second)
		)

		BeforeEach(func() {
			write("raw_pinnacle/pinnacle_1.json", `{}`, earlier)
			write("raw_pinnacle/related_1.json", `[]`, earlier)
			write("raw_pinnacle/pinnacle_2.json", `{}`, later)
			write("raw_pinnacle/related_2.json", ``, later)
			write("raw_pinnacle/.pinnacle_3.json.123", `{}`, later)
			write("raw_pinnacle/notes.txt", `ignored`, later)
			write("raw_bet365_asian/bet365_asian_99.txt", "a\nb", later)
		})

		It("lists every id", func() {
			Expect(cat.IDs()).To(Equal([]string{"1", "2", "99"}))
		})

		It("attributes files to their source tag", func() {
			entries := cat.Entries("1")

			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Tag).To(Equal("pinnacle"))
			Expect(entries[0].Path).To(Equal(filepath.Join(root, "raw_pinnacle", "pinnacle_1.json")))
			Expect(entries[1].Tag).To(Equal("related"))
		})

		It("only counts non-empty buckets as complete", func() {
			Expect(cat.Complete("pinnacle", "related")).To(Equal([]string{"1"}))
		})

		It("finds the latest bucket per tag", func() {
			entry, ok := cat.Latest("pinnacle")

			Expect(ok).To(BeTrue())
			Expect(entry.ID).To(Equal("2"))
			Expect(entry.ModTime).To(BeTemporally("==", later))
		})

		It("is ready once each tag has a bucket", func() {
			Expect(cat.Ready("pinnacle", "related", "bet365_asian")).To(BeTrue())
			Expect(cat.Ready("pinnacle", "other")).To(BeFalse())
		})
	})

	Context("when tags share a directory and a prefix", func() {
		BeforeEach(func() {
			groups = capture.DefaultRuleGroups("", "")
			groups = append(groups, capture.RuleGroup{
				Name: "bet365",
				Rules: []capture.MatchRule{{
					SourceTag: "bet365",
					Predicate: capture.Contains("bet365"),
					Extract:   capture.Between("#E", "#"),
					Ext:       ".txt",
				}},
			})

			write("bet365_asian_5.txt", "x", time.Now())
			write("bet365_5.txt", "y", time.Now())
		})

		It("attributes each file to the longest matching tag", func() {
			entries := cat.Entries("5")

			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Tag).To(Equal("bet365"))
			Expect(entries[1].Tag).To(Equal("bet365_asian"))
		})
	})

	Describe("against a sink", func() {
		It("lists what the sink wrote", func() {
			sink, err := capture.New(kitlog.NewNopLogger(), root, groups, nil)
			Expect(err).NotTo(HaveOccurred())

			sink.Handle(context.Background(), capture.Observation{
				URL:  "https://guest.api.arcadia.pinnacle.com/0.1/matchups/42/related",
				Body: []byte(`[]`),
			})

			cat, err := catalog.Scan(sink.Root(), sink.Groups())
			Expect(err).NotTo(HaveOccurred())
			Expect(cat.Complete("related")).To(Equal([]string{"42"}))
		})
	})
})
