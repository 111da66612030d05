package tools

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"marketmate/pkg/llm"
)

// Tool names as advertised to the model.
const (
	ToolFinancialNews    = "get_financial_news"
	ToolQuarterlyResults = "get_quarterly_results"
	ToolInvalid          = "invalid"
)

// InvalidQueryMessage is returned by the invalid tool and surfaced
// verbatim as the assistant response for off-topic queries.
const InvalidQueryMessage = "Query is not related to financial markets. Please ask about stocks, earnings, or financial news."

var quarterPattern = regexp.MustCompile(`^\d{4}-Q[1-4]$`)

// FinancialNews fetches recent news headlines for a company. The data
// source is mocked; the shape matches what a real provider would return.
type FinancialNews struct{}

func (FinancialNews) Name() string { return ToolFinancialNews }

func (FinancialNews) Describe() llm.ToolDescriptor {
	return llm.ToolDescriptor{
		Name:        ToolFinancialNews,
		Description: "Fetch financial news for a company",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"company_name": map[string]any{"type": "string"},
			},
			"required": []string{"company_name"},
		},
	}
}

func (FinancialNews) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	company, ok := args["company_name"].(string)
	if !ok || company == "" {
		return nil, fmt.Errorf("missing required argument company_name")
	}
	return map[string]any{
		"company_name": company,
		"news": []map[string]any{
			{
				"headline":    fmt.Sprintf("Mock news for %s", company),
				"description": "Sample news",
				"date":        time.Now().Format("2006-01-02"),
				"source":      "Mock",
			},
		},
	}, nil
}

// QuarterlyResults fetches quarterly financials for a company.
type QuarterlyResults struct{}

func (QuarterlyResults) Name() string { return ToolQuarterlyResults }

func (QuarterlyResults) Describe() llm.ToolDescriptor {
	return llm.ToolDescriptor{
		Name:        ToolQuarterlyResults,
		Description: "Fetch quarterly financial results for a company",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"company_name": map[string]any{"type": "string"},
				"quarter": map[string]any{
					"type":        "string",
					"description": "Quarter in YYYY-Q# format (e.g., 2024-Q4)",
				},
			},
			"required": []string{"company_name", "quarter"},
		},
	}
}

func (QuarterlyResults) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	company, ok := args["company_name"].(string)
	if !ok || company == "" {
		return nil, fmt.Errorf("missing required argument company_name")
	}
	quarter, ok := args["quarter"].(string)
	if !ok || quarter == "" {
		return nil, fmt.Errorf("missing required argument quarter")
	}
	if !quarterPattern.MatchString(quarter) {
		return nil, fmt.Errorf("quarter %q is not in YYYY-Q# format", quarter)
	}
	return map[string]any{
		"company_name": company,
		"quarter":      quarter,
		"valuation_ratios": map[string]any{
			"pe_ratio": 15.5,
			"pb_ratio": 2.3,
		},
		"sales": 90000000,
	}, nil
}

// Invalid is the rejection tool. The model calls it for queries outside
// the financial domain; its payload terminates the reasoning loop.
type Invalid struct{}

func (Invalid) Name() string { return ToolInvalid }

func (Invalid) Describe() llm.ToolDescriptor {
	return llm.ToolDescriptor{
		Name:        ToolInvalid,
		Description: "Call this function when the user query is not related to financial markets.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
	}
}

func (Invalid) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"error": InvalidQueryMessage}, nil
}

// RegisterFinanceTools registers the closed finance tool set.
func RegisterFinanceTools(r *Registry) {
	r.Register(FinancialNews{})
	r.Register(QuarterlyResults{})
	r.Register(Invalid{})
}
