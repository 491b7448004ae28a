package usecase

import (
	"regexp"
	"strings"
)

// topic groups the patterns that identify a policy area with the terms
// appended to a query about it.
type topic struct {
	name     string
	patterns []*regexp.Regexp
	boost    string
}

func mustPatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// Checked in order; the first topic with a matching pattern wins.
var topics = []topic{
	{
		name: "work_from_home",
		patterns: mustPatterns(`work from home`, `remote work`, `\bwfh\b`, `working remotely`,
			`home office`, `telecommut`, `telework`),
		boost: " remote work policy home office telecommute",
	},
	{
		name: "expenses",
		patterns: mustPatterns(`\bexpense`, `reimburse`, `travel cost`, `meal allowance`,
			`\breceipt`, `per diem`, `business travel`),
		boost: " expense reimbursement travel costs receipts",
	},
	{
		name: "conduct",
		patterns: mustPatterns(`code of conduct`, `\bbehaviou?r`, `\bethic`, `harassment`,
			`discrimination`, `workplace conduct`, `professional behavio`),
		boost: " code of conduct ethics behavior workplace",
	},
	{
		name: "leave",
		patterns: mustPatterns(`vacation`, `time off`, `sick leave`, `personal leave`,
			`\bpto\b`, `holiday`, `absence`),
		boost: " leave policy vacation time off PTO",
	},
}

// EnhanceQuery lower-cases the query and appends the boost terms of the
// first matching topic, if any.
func EnhanceQuery(query string) string {
	enhanced, _ := enhanceQuery(query)
	return enhanced
}

func enhanceQuery(query string) (string, string) {
	enhanced := strings.ToLower(query)
	for _, t := range topics {
		for _, p := range t.patterns {
			if p.MatchString(enhanced) {
				return enhanced + t.boost, t.name
			}
		}
	}
	return enhanced, ""
}
