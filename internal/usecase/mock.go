package usecase

import (
	"sort"
	"strings"

	"policyrag/internal/adapter/chunker"
	"policyrag/internal/domain"
)

// cannedPassage stands in for the index when none is available.
type cannedPassage struct {
	keywords []string
	filename string
	score    float64
	content  string
}

var cannedPassages = []cannedPassage{
	{
		keywords: []string{"work from home", "remote work", "wfh"},
		filename: "work_from_home_policy.md",
		score:    0.85,
		content:  "Work from home policy allows employees to work remotely with manager approval. Requirements include reliable internet connection, dedicated workspace, and maintaining regular communication with the team.",
	},
	{
		keywords: []string{"expense", "reimbursement", "receipt"},
		filename: "expense_policy.md",
		score:    0.80,
		content:  "Expense reimbursement requires original receipts and manager approval. Submit expenses within 30 days through the HR portal. Business meals, travel, and office supplies are eligible for reimbursement.",
	},
	{
		keywords: []string{"conduct", "behavior", "ethics"},
		filename: "code_of_conduct.md",
		score:    0.75,
		content:  "Code of conduct emphasizes respect, integrity, and professionalism. All employees must treat colleagues with dignity, maintain confidentiality, and report any violations to HR.",
	},
	{
		keywords: []string{"leave", "vacation", "time off", "pto"},
		filename: "leave_policy.md",
		score:    0.78,
		content:  "Leave policy provides 20 days annual leave, 10 days sick leave, and 5 days personal leave per year. Requests must be submitted at least 2 weeks in advance and approved by your manager.",
	},
}

var generalPassage = cannedPassage{
	filename: "general_policy.md",
	score:    0.60,
	content:  "For specific policy questions, please contact HR directly or refer to the employee handbook. Our HR team is available to assist with any questions about company policies and procedures.",
}

// MockDocuments returns one canned passage for every topic whose keywords
// occur in query, best score first, or the general HR passage when none do.
// It never returns an empty result.
func MockDocuments(query string) []domain.RetrievalResult {
	q := strings.ToLower(query)

	var matched []cannedPassage
	for _, p := range cannedPassages {
		for _, kw := range p.keywords {
			if strings.Contains(q, kw) {
				matched = append(matched, p)
				break
			}
		}
	}
	if len(matched) == 0 {
		matched = append(matched, generalPassage)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].score > matched[j].score
	})

	results := make([]domain.RetrievalResult, len(matched))
	for i, p := range matched {
		results[i] = domain.RetrievalResult{
			Content:  p.content,
			Score:    p.score,
			Rank:     i + 1,
			Filename: p.filename,
			ChunkID:  chunker.ChunkID(p.filename, 0),
		}
	}
	return results
}
