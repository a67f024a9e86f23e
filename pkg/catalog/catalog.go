// Indexes the bucket files a capture sink has written, so downstream processing can tell
// which providers have been captured for which ids without re-deriving file names.
package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lawrencejones/oddscap/pkg/capture"

	"github.com/pkg/errors"
)

// Entry is a single bucket file on disk.
type Entry struct {
	Tag     string
	ID      string
	Path    string
	Size    int64
	ModTime time.Time
}

// Catalog is a point-in-time listing of buckets, keyed by id then source tag.
type Catalog struct {
	entries map[string]map[string]Entry
}

// Scan lists the bucket directories of every rule under root. Directories that don't
// exist yet are treated as empty. When several tags in one directory share a prefix
// ("bet365" and "bet365_asian"), a file is attributed to the longest tag it matches.
func Scan(root string, groups []capture.RuleGroup) (*Catalog, error) {
	rulesByDir := map[string][]capture.MatchRule{}
	for _, group := range groups {
		for _, rule := range group.Rules {
			dir := filepath.Join(root, rule.Dir)
			rulesByDir[dir] = append(rulesByDir[dir], rule)
		}
	}

	cat := &Catalog{entries: map[string]map[string]Entry{}}
	for dir, rules := range rulesByDir {
		// Longest tags first, so the first match is the most specific
		sort.SliceStable(rules, func(i, j int) bool {
			return len(rules[i].SourceTag) > len(rules[j].SourceTag)
		})

		files, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, errors.Wrapf(err, "failed to list %s", dir)
		}

		for _, file := range files {
			if file.IsDir() {
				continue
			}

			tag, id, ok := parseName(file.Name(), rules)
			if !ok {
				continue
			}

			info, err := file.Info()
			if err != nil {
				// Removed between listing and stat
				if os.IsNotExist(err) {
					continue
				}

				return nil, errors.Wrapf(err, "failed to stat %s", file.Name())
			}

			cat.add(Entry{
				Tag:     tag,
				ID:      id,
				Path:    filepath.Join(dir, file.Name()),
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
		}
	}

	return cat, nil
}

func parseName(name string, rules []capture.MatchRule) (tag, id string, ok bool) {
	for _, rule := range rules {
		prefix := rule.SourceTag + "_"
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, rule.Ext) {
			continue
		}

		id = strings.TrimSuffix(strings.TrimPrefix(name, prefix), rule.Ext)
		if id == "" {
			continue
		}

		return rule.SourceTag, id, true
	}

	return "", "", false
}

func (c *Catalog) add(entry Entry) {
	if c.entries[entry.ID] == nil {
		c.entries[entry.ID] = map[string]Entry{}
	}

	c.entries[entry.ID][entry.Tag] = entry
}

// IDs returns every id with at least one bucket, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids
}

// Entries returns the buckets for an id, sorted by tag.
func (c *Catalog) Entries(id string) []Entry {
	entries := make([]Entry, 0, len(c.entries[id]))
	for _, entry := range c.entries[id] {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Tag < entries[j].Tag })
	return entries
}

// Complete returns the sorted ids that have a non-empty bucket for every given tag, such
// as matchups with both a markets snapshot and a related snapshot.
func (c *Catalog) Complete(tags ...string) []string {
	var ids []string
	for _, id := range c.IDs() {
		if c.hasAll(id, tags) {
			ids = append(ids, id)
		}
	}

	return ids
}

func (c *Catalog) hasAll(id string, tags []string) bool {
	for _, tag := range tags {
		if entry, ok := c.entries[id][tag]; !ok || entry.Size == 0 {
			return false
		}
	}

	return true
}

// Ready is true when every tag has at least one non-empty bucket, for any id.
func (c *Catalog) Ready(tags ...string) bool {
	for _, tag := range tags {
		if _, ok := c.Latest(tag); !ok {
			return false
		}
	}

	return true
}

// Latest returns the most recently modified non-empty bucket for a tag.
func (c *Catalog) Latest(tag string) (Entry, bool) {
	var (
		latest Entry
		found  bool
	)

	for _, byTag := range c.entries {
		entry, ok := byTag[tag]
		if !ok || entry.Size == 0 {
			continue
		}

		if !found || entry.ModTime.After(latest.ModTime) {
			latest, found = entry, true
		}
	}

	return latest, found
}
