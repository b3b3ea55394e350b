package vlm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/physical-mcp/engine/internal/core"
)

var httpClient = &http.Client{}

// postJSON POSTs body to url with the given headers and a per-call
// timeout already bound into ctx, decoding the response into out.
// Non-2xx responses become provider_error.
func postJSON(ctx context.Context, url string, headers map[string]string, body interface{}, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return core.Wrap(core.KindProviderError, "encoding request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return core.Wrap(core.KindProviderError, "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return core.Wrap(core.KindProviderError, "calling provider", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Wrap(core.KindProviderError, "reading provider response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return core.New(core.KindProviderError, fmt.Sprintf("provider returned status %d: %s", resp.StatusCode, truncate(string(raw), 500)))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return core.Wrap(core.KindProviderBadJSON, "decoding provider response envelope", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// buildSceneInstruction is the shared free-text instruction all
// adapters wrap the image with for AnalyzeScene, in the JSON shape
// ExtractJSON expects back.
func buildSceneInstruction(priorContext string, prompt PromptSpec) string {
	instr := prompt.SystemPrompt
	if instr == "" {
		instr = "You are a camera scene analyst."
	}
	return instr + "\n\nPrior scene context:\n" + priorContext +
		"\n\nDescribe the current frame. Respond with ONLY a JSON object: " +
		`{"summary": string, "objects": [string], "people_count": integer, "changes": string}.`
}

// buildRulesInstruction wraps the watch-rule conditions into a single
// free-text instruction for EvaluateRules.
func buildRulesInstruction(rules []RuleSpec, sceneContext string, prompt PromptSpec) string {
	instr := prompt.SystemPrompt
	if instr == "" {
		instr = "You are evaluating natural-language watch rules against a camera frame."
	}

	var b bytes.Buffer
	b.WriteString(instr)
	b.WriteString("\n\nScene context:\n")
	b.WriteString(sceneContext)
	b.WriteString("\n\nRules to evaluate:\n")
	for _, r := range rules {
		fmt.Fprintf(&b, "- id=%s: %s\n", r.RuleID, r.Condition)
	}
	b.WriteString("\nRespond with ONLY a JSON array, one object per rule: " +
		`[{"rule_id": string, "triggered": boolean, "confidence": number, "reasoning": string}].`)
	return b.String()
}
