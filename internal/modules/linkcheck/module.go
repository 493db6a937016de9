package linkcheck

import (
	"strings"

	"scamwatch/internal/config"
	"scamwatch/internal/utils"
)

// Finding describes a reported link that matches a known scam signal.
type Finding struct {
	URL    string
	Domain string
	Rule   string
}

const (
	RuleBlockedDomain = "blocked_domain"
	RuleKeyword       = "keyword"
)

type Module struct {
	allowlist map[string]struct{}
	blocklist map[string]struct{}
	keywords  []string
}

func New(cfg config.LinkCheckConfig) *Module {
	allowlist := domainSet(cfg.TrustedDomains)
	blocklist := domainSet(cfg.BlockedDomains)
	keywords := make([]string, 0, len(cfg.Keywords))
	for _, keyword := range cfg.Keywords {
		if keyword = strings.ToLower(strings.TrimSpace(keyword)); keyword != "" {
			keywords = append(keywords, keyword)
		}
	}
	return &Module{allowlist: allowlist, blocklist: blocklist, keywords: keywords}
}

func domainSet(domains []string) map[string]struct{} {
	set := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		if domain = strings.ToLower(strings.TrimSpace(domain)); domain != "" {
			set[domain] = struct{}{}
		}
	}
	return set
}

// Check flags links whose domain is on the blocklist, or whose URL carries a
// lure keyword. Trusted domains and their subdomains are never flagged. It
// never rejects a report, it only annotates it.
func (m *Module) Check(links []string) []Finding {
	var findings []Finding
	for _, raw := range links {
		normalized, domain, err := utils.NormalizeURL(raw)
		if err != nil {
			continue
		}
		allowed, blocked := utils.DomainMatch(domain, m.allowlist, m.blocklist)
		if allowed {
			continue
		}
		if blocked {
			findings = append(findings, Finding{URL: raw, Domain: domain, Rule: RuleBlockedDomain})
			continue
		}
		if hasKeywords(normalized, m.keywords) {
			findings = append(findings, Finding{URL: raw, Domain: domain, Rule: RuleKeyword})
		}
	}
	return findings
}

func hasKeywords(content string, keywords []string) bool {
	lower := strings.ToLower(content)
	for _, keyword := range keywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
