package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/queryflow/queryflow/pkg/models"
)

// Fixed tool selections per query type.
var (
	chatTools     = []string{"llm_tool", "search_tool", "weather_tool"}
	researchTools = []string{"llm_tool", "search_tool", "crawl_tool", "extract_tool", "map_tool"}
	docsTools     = []string{"doc_mcp_make_query", "llm_tool"}
)

const chatPlanTemplate = `You are a helpful AI assistant.

- Answer the user query clearly and concisely.
- Keep responses brief.
- Do not include unnecessary details unless asked.
- If you do not know the answer, say so honestly.

User query: %s
`

const researchPlanTemplate = `You are a research assistant AI. Provide well-structured markdown responses.
Break the user query into smaller queries.
Use tools to search, crawl, extract and map, and use LLM inference to answer.

FORMATTING RULES:
- Use ## for main sections, ### for subsections
- Use consistent bullet points (-) or numbered lists
- Bold important terms with **text**
- Format links as [text](url)
- Return raw markdown content only, without code fences

User query: %s
`

const docsPlanTemplate = `You are DocsAgent. Answer the user query for the repository '%s'.

User query: %s

Use the 'doc_mcp_make_query' tool to retrieve relevant documents, then form
the final answer with the LLM tool.
`

// ToolsFor returns the fixed tool selection for a query type.
func ToolsFor(queryType models.QueryType) []string {
	switch queryType {
	case models.QueryTypeResearch:
		return researchTools
	case models.QueryTypeDocs:
		return docsTools
	default:
		return chatTools
	}
}

// BuildPrompt renders the prompt template for a query type. Only the docs
// template interpolates the repository name.
func BuildPrompt(queryType models.QueryType, query, repoName string) string {
	switch queryType {
	case models.QueryTypeResearch:
		return fmt.Sprintf(researchPlanTemplate, query)
	case models.QueryTypeDocs:
		return fmt.Sprintf(docsPlanTemplate, repoName, query)
	default:
		return fmt.Sprintf(chatPlanTemplate, query)
	}
}

// InvalidToolsError reports a requested tool selection the engine cannot
// serve, with enough detail for the caller to act.
type InvalidToolsError struct {
	Invalid   []string
	Available []string
}

func (e *InvalidToolsError) Error() string {
	return fmt.Sprintf("invalid tools requested: %s (available: %s)",
		strings.Join(e.Invalid, ", "), strings.Join(e.Available, ", "))
}

// ValidateTools checks that every requested tool is available on the
// engine. Returns an *InvalidToolsError naming the offending and available
// tool identifiers.
func ValidateTools(engine Engine, requested []string) error {
	available := engine.AvailableTools()
	known := make(map[string]bool, len(available))
	for _, id := range available {
		known[id] = true
	}

	var invalid []string
	for _, id := range requested {
		if !known[id] {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) == 0 {
		return nil
	}

	sort.Strings(invalid)
	return &InvalidToolsError{Invalid: invalid, Available: available}
}
