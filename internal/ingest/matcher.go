package ingest

import (
	"regexp"
	"sort"

	"github.com/docuflow/docuflow-api/internal/domain"
)

// MatchRule applies the sender's attachment rules to one filename and
// returns the first matching rule, or nil when none match. Rules are
// evaluated in ascending rule_order; the explicit order field breaks
// ties, never slice position. A rule with an invalid pattern is skipped
// rather than failing the whole attachment.
func MatchRule(rules []*domain.AttachmentRule, filename string) *domain.AttachmentRule {
	ordered := make([]*domain.AttachmentRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RuleOrder < ordered[j].RuleOrder
	})

	for _, rule := range ordered {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.FilenamePattern)
		if err != nil {
			continue
		}
		if re.MatchString(filename) {
			return rule
		}
	}

	return nil
}
