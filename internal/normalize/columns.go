package normalize

import "strings"

// Canonical column names. Every normalized row carries exactly these keys.
const (
	ColName        = "name"
	ColProfileURL  = "profile_url"
	ColWebsite     = "website"
	ColCompanySize = "company_size"
	ColIndustry    = "industry"
	ColRevenue     = "revenue"
)

// Columns is the canonical column order.
var Columns = []string{ColName, ColProfileURL, ColWebsite, ColCompanySize, ColIndustry, ColRevenue}

// aliases are checked after exact and case-insensitive matching, in order.
var aliases = map[string][]string{
	ColName:        {"company_name", "company", "account", "organization", "firm"},
	ColProfileURL:  {"linkedin_url", "linkedin", "profile"},
	ColWebsite:     {"site_url", "website_url", "site", "domain", "homepage", "web", "url"},
	ColCompanySize: {"size", "employees", "employee_count", "headcount", "staff"},
	ColIndustry:    {"sector", "vertical", "category"},
	ColRevenue:     {"annual_revenue", "turnover", "sales"},
}

// normalizeHeader lowercases and strips everything but letters and digits, so
// "Company Name", "company_name" and "CompanyName" all compare equal.
func normalizeHeader(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// resolveColumns maps each canonical column to an input header, trying exact
// match, then case-insensitive match, then normalized containment against the
// column name and its aliases. Unresolved columns map to "". The result is
// deterministic for a given header order.
func resolveColumns(headers []string) map[string]string {
	resolved := make(map[string]string, len(Columns))
	taken := make(map[string]bool, len(headers))

	match := func(col string, fn func(header string) bool) bool {
		for _, h := range headers {
			if taken[h] {
				continue
			}
			if fn(h) {
				resolved[col] = h
				taken[h] = true
				return true
			}
		}
		return false
	}

	for _, col := range Columns {
		if match(col, func(h string) bool { return h == col }) {
			continue
		}
		if match(col, func(h string) bool { return strings.EqualFold(h, col) }) {
			continue
		}
		candidates := append([]string{col}, aliases[col]...)
		found := false
		for _, cand := range candidates {
			nc := normalizeHeader(cand)
			if nc == "" {
				continue
			}
			if match(col, func(h string) bool {
				nh := normalizeHeader(h)
				return nh != "" && (strings.Contains(nh, nc) || strings.Contains(nc, nh))
			}) {
				found = true
				break
			}
		}
		if !found {
			resolved[col] = ""
		}
	}
	return resolved
}
