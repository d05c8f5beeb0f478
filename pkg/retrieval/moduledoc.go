package retrieval

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ModuleDoc searches a scenario module document loaded from disk. The
// document is split on markdown headings and sections are ranked by keyword
// overlap with the query. Good enough for a single scenario; a vector store
// would be overkill here.
type ModuleDoc struct {
	sections []section
}

type section struct {
	heading string
	text    string
	terms   map[string]int
}

// LoadModuleDoc reads and indexes the module document at path.
func LoadModuleDoc(path string) (*ModuleDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading module: %w", err)
	}
	return ParseModuleDoc(string(raw)), nil
}

// ParseModuleDoc indexes module text already in memory.
func ParseModuleDoc(text string) *ModuleDoc {
	doc := &ModuleDoc{}

	heading := ""
	var body strings.Builder
	flush := func() {
		content := strings.TrimSpace(body.String())
		if content == "" && heading == "" {
			return
		}
		doc.sections = append(doc.sections, section{
			heading: heading,
			text:    content,
			terms:   termCounts(heading + " " + content),
		})
		body.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "#") {
			flush()
			heading = strings.TrimSpace(strings.TrimLeft(line, "# "))
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return doc
}

func (d *ModuleDoc) Query(ctx context.Context, query string, topK int) ([]Passage, error) {
	if topK <= 0 {
		topK = 3
	}

	queryTerms := termCounts(query)
	type scored struct {
		sec   section
		score float64
	}

	var hits []scored
	for _, sec := range d.sections {
		var score float64
		for term := range queryTerms {
			if n, ok := sec.terms[term]; ok {
				score += float64(n)
			}
		}
		if score > 0 {
			hits = append(hits, scored{sec: sec, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	passages := make([]Passage, 0, len(hits))
	for _, h := range hits {
		text := h.sec.text
		if h.sec.heading != "" {
			text = h.sec.heading + "\n" + text
		}
		passages = append(passages, Passage{
			Text:   text,
			Source: "module:" + h.sec.heading,
			Score:  h.score,
		})
	}
	return passages, nil
}

func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()[]")
		if len(word) < 3 {
			continue
		}
		counts[word]++
	}
	return counts
}
