package scanner

import "github.com/cloudflare/ahocorasick"

// prefilter finds the rules whose keywords occur in a file, so that only
// those patterns are run against it.
type prefilter struct {
	matcher        *ahocorasick.Matcher
	keywords       []string           // keyword at each index
	keywordRules   map[string][]*Rule // keyword -> rules needing it
	noKeywordRules []*Rule            // always checked
}

func newPrefilter(rules []*Rule) *prefilter {
	pf := &prefilter{
		keywordRules: make(map[string][]*Rule),
	}

	for _, rule := range rules {
		if len(rule.Keywords) == 0 {
			pf.noKeywordRules = append(pf.noKeywordRules, rule)
			continue
		}
		for _, keyword := range rule.Keywords {
			if _, ok := pf.keywordRules[keyword]; !ok {
				pf.keywords = append(pf.keywords, keyword)
			}
			pf.keywordRules[keyword] = append(pf.keywordRules[keyword], rule)
		}
	}

	if len(pf.keywords) > 0 {
		pf.matcher = ahocorasick.NewStringMatcher(pf.keywords)
	}
	return pf
}

// filter returns the rules that might match lowered, which must already be
// lowercase.
func (pf *prefilter) filter(lowered []byte) map[*Rule]bool {
	candidates := make(map[*Rule]bool, len(pf.noKeywordRules))
	for _, rule := range pf.noKeywordRules {
		candidates[rule] = true
	}
	if pf.matcher == nil {
		return candidates
	}

	for _, hit := range pf.matcher.Match(lowered) {
		for _, rule := range pf.keywordRules[pf.keywords[hit]] {
			candidates[rule] = true
		}
	}
	return candidates
}
