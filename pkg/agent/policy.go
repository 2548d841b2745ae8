package agent

import "strings"

// Action names a tool and the input it should run with.
type Action struct {
	Tool  string
	Input Input
}

// Policy decides the next tool call given the request and the evidence
// gathered so far. Returning ok=false ends the run.
type Policy interface {
	Next(req Request, evidence []Output) (action Action, ok bool)
}

var _ Policy = (*rulePolicy)(nil)

// rulePolicy is a deterministic keyword-driven planner. It picks one
// primary tool from the wording of the query, optionally follows an
// aggregate lookup with a similarity search for supporting passages, and
// then stops.
type rulePolicy struct{}

// NewRulePolicy returns the default deterministic policy.
func NewRulePolicy() Policy {
	return &rulePolicy{}
}

func (p *rulePolicy) Next(req Request, evidence []Output) (Action, bool) {
	input := Input{
		Query:      req.Query,
		Collection: req.Collection,
		TopK:       req.TopK,
		FileID:     req.FileID,
	}

	if len(evidence) == 0 {
		switch {
		case wantsCount(req.Query):
			return Action{Tool: ToolCountAggregate, Input: input}, true
		case wantsFileList(req.Query):
			return Action{Tool: ToolListFiles, Input: input}, true
		case req.FileID != "":
			return Action{Tool: ToolFilterLookup, Input: input}, true
		default:
			return Action{Tool: ToolSimilaritySearch, Input: input}, true
		}
	}

	// An aggregate answer alone cannot cite passages. Follow up with one
	// similarity search when the query asks about content too.
	aggregate := evidence[0].Tool == ToolCountAggregate || evidence[0].Tool == ToolListFiles
	if len(evidence) == 1 && aggregate && hasContentWords(req.Query) {
		return Action{Tool: ToolSimilaritySearch, Input: input}, true
	}

	return Action{}, false
}

func wantsCount(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(q, "how many") ||
		strings.Contains(q, "count") ||
		strings.Contains(q, "number of")
}

func wantsFileList(query string) bool {
	q := strings.ToLower(query)
	if !strings.Contains(q, "list") && !strings.Contains(q, "which") {
		return false
	}
	return strings.Contains(q, "file") || strings.Contains(q, "document") || strings.Contains(q, "id")
}

// hasContentWords reports whether the query contains words beyond the
// counting or listing phrasing itself.
func hasContentWords(query string) bool {
	stop := map[string]bool{
		"how": true, "many": true, "count": true, "number": true, "of": true,
		"list": true, "which": true, "files": true, "file": true, "documents": true,
		"document": true, "ids": true, "id": true, "the": true, "all": true,
		"are": true, "is": true, "there": true, "in": true, "stored": true,
		"store": true, "do": true, "we": true, "have": true, "what": true,
	}
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if !stop[strings.Trim(word, "?.,!")] {
			return true
		}
	}
	return false
}
