package reasoner

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = `You are a senior mortgage underwriting and compliance analyst.
Answer with a single JSON object and nothing else, using exactly these fields:
{"approve": bool, "recommendation": string, "rationale": string,
 "risk_factors": [string], "strengths": [string], "recommendations": [string]}`

var kindInstructions = map[Kind]string{
	KindUnderwriting: "Perform a holistic underwriting review of this application. Weigh compensating factors the ratio checks cannot see. Set recommendation to one of: Approve, Refer to Underwriter, Decline.",
	KindBorderline:   "This application is borderline on one or more criteria. Decide whether it should pass overall and explain the deciding factors in rationale.",
	KindCompliance:   "Review this application for regulatory compliance concerns beyond the mechanical checks. List concerns as risk_factors and remediation steps as recommendations.",
}

// buildPrompt renders the request as an instruction plus a JSON context
// block. The context uses the same field names the decision records use,
// so analyst answers can reference them directly.
func buildPrompt(req Request) (string, error) {
	instruction, ok := kindInstructions[req.Kind]
	if !ok {
		return "", fmt.Errorf("unknown reasoning kind %q", req.Kind)
	}
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	return instruction + "\n\nApplication context:\n" + string(payload), nil
}

// decodeVerdict extracts the JSON object from a model reply. Replies are
// often wrapped in prose or code fences, so it parses the outermost braces.
func decodeVerdict(content string) (*Verdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply")
	}
	var v Verdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("parse verdict: %w", err)
	}
	return &v, nil
}
