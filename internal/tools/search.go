package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/medassistd/internal/knowledge"
	"github.com/fyrsmithlabs/medassistd/internal/llm"
)

const (
	defaultSearchK = 4
	maxSearchK     = 10
)

// SearchTool retrieves knowledge-base passages with citation sources.
type SearchTool struct {
	searcher knowledge.Searcher
	topK     int
}

// NewSearchTool builds the search_knowledge tool. topK is the passage
// count used when the model omits k.
func NewSearchTool(searcher knowledge.Searcher, topK int) (*SearchTool, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if topK <= 0 {
		topK = defaultSearchK
	}
	return &SearchTool{searcher: searcher, topK: topK}, nil
}

func (t *SearchTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name: "search_knowledge",
		Description: "Search the curated medical knowledge base for passages relevant to " +
			"a health question. Returns passages with their sources; cite the sources " +
			"when you use a passage in your answer.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The question or topic to look up.",
				},
				"k": map[string]any{
					"type":        "integer",
					"description": "Maximum number of passages to return.",
				},
			},
			"required": []string{"query"},
		},
	}
}

type searchArgs struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type searchPassage struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

type searchResponse struct {
	Passages []searchPassage `json:"passages"`
	Sources  []string        `json:"sources"`
}

func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) ToolResult {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return errorResult("invalid search_knowledge arguments: %v", err)
	}
	if strings.TrimSpace(a.Query) == "" {
		return errorResult("search_knowledge requires a non-empty query")
	}

	k := a.K
	if k <= 0 {
		k = t.topK
	}
	if k > maxSearchK {
		k = maxSearchK
	}

	passages, err := t.searcher.Search(ctx, a.Query, k)
	if err != nil {
		return errorResult("knowledge search failed: %v", err)
	}
	if len(passages) == 0 {
		return ToolResult{Content: `{"passages":[],"sources":[]}`}
	}

	resp := searchResponse{Passages: make([]searchPassage, 0, len(passages))}
	seen := make(map[string]bool, len(passages))
	for _, p := range passages {
		resp.Passages = append(resp.Passages, searchPassage{Content: p.Content, Source: p.Source})
		if p.Source != "" && !seen[p.Source] {
			seen[p.Source] = true
			resp.Sources = append(resp.Sources, p.Source)
		}
	}

	b, err := json.Marshal(resp)
	if err != nil {
		return errorResult("encode search results: %v", err)
	}
	return ToolResult{Content: string(b)}
}
