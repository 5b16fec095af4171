package careplan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/carebridge/platform/internal/shared/config"
)

func testConfig(url string) config.CarePlanConfig {
	return config.CarePlanConfig{
		URL:            url,
		APIKey:         "test-key",
		Model:          "claude-3-5-haiku-20241022",
		MaxTokens:      4096,
		Temperature:    0.7,
		TimeoutSeconds: 5,
	}
}

func planRequest() PlanRequest {
	return PlanRequest{
		PatientFirstName:    "Jane",
		PatientLastName:     "Doe",
		PatientMRN:          "123456",
		PrimaryDiagnosis:    "E11.9",
		AdditionalDiagnoses: []string{"I10"},
		ReferringProvider:   "Sarah Chen",
		ProviderNPI:         "1234567890",
		MedicationName:      "Adalimumab",
		MedicationHistory:   []string{"Metformin 1000mg BID"},
		PatientRecords:      "Baseline labs within normal limits.",
	}
}

func planResponse(text string) string {
	b, _ := json.Marshal(map[string]any{
		"content": []map[string]string{{"type": "text", "text": text}},
	})
	return string(b)
}

func TestGenerate(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	var gotBody messagesRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(planResponse("PROBLEM LIST\n1. Diabetes management")))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	plan, err := client.Generate(context.Background(), planRequest())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if plan != "PROBLEM LIST\n1. Diabetes management" {
		t.Errorf("Unexpected plan: %q", plan)
	}
	if gotPath != "/v1/messages" {
		t.Errorf("Expected /v1/messages, got %s", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("Expected API key header, got %q", gotKey)
	}
	if gotVersion != "2023-06-01" {
		t.Errorf("Unexpected version header: %q", gotVersion)
	}
	if gotBody.Model != "claude-3-5-haiku-20241022" || gotBody.MaxTokens != 4096 {
		t.Errorf("Unexpected request body: %+v", gotBody)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Role != "user" {
		t.Fatalf("Expected single user message, got %+v", gotBody.Messages)
	}
}

func TestGeneratePromptContents(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body messagesRequest
		json.NewDecoder(r.Body).Decode(&body)
		prompt = body.Messages[0].Content
		w.Write([]byte(planResponse("plan")))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	if _, err := client.Generate(context.Background(), planRequest()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	for _, want := range []string{
		"Name: Jane Doe",
		"MRN: 123456",
		"Primary Diagnosis (ICD-10): E11.9",
		"Additional Diagnoses: I10",
		"Prescribed Medication: Adalimumab",
		"Medication History: Metformin 1000mg BID",
		"PROBLEM LIST / DRUG THERAPY PROBLEMS (DTPs)",
		"MONITORING PLAN & LAB SCHEDULE",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q", want)
		}
	}
}

func TestGenerateEmptyArrayPlaceholders(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body messagesRequest
		json.NewDecoder(r.Body).Decode(&body)
		prompt = body.Messages[0].Content
		w.Write([]byte(planResponse("plan")))
	}))
	defer server.Close()

	req := planRequest()
	req.AdditionalDiagnoses = nil
	req.MedicationHistory = nil

	client := NewClient(testConfig(server.URL))
	if _, err := client.Generate(context.Background(), req); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !strings.Contains(prompt, "Additional Diagnoses: None") {
		t.Error("Expected 'None' placeholder for empty diagnoses")
	}
	if !strings.Contains(prompt, "Medication History: None documented") {
		t.Error("Expected 'None documented' placeholder for empty history")
	}
}

func TestRegeneratePrompt(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body messagesRequest
		json.NewDecoder(r.Body).Decode(&body)
		prompt = body.Messages[0].Content
		w.Write([]byte(planResponse("revised plan")))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	plan, err := client.Regenerate(context.Background(), "ORIGINAL PLAN TEXT", []Revision{
		{Kind: "correction", Section: "GOALS", OriginalText: "A1c < 8%", CorrectedText: "A1c < 7%"},
		{Kind: "suggestion", Section: "MONITORING PLAN", Comment: "Add renal panel"},
		{Kind: "approval", Section: "PROBLEM LIST"},
	})
	if err != nil {
		t.Fatalf("Regenerate failed: %v", err)
	}
	if plan != "revised plan" {
		t.Errorf("Unexpected plan: %q", plan)
	}

	for _, want := range []string{
		"CORRECTIONS NEEDED:",
		"SECTION: GOALS",
		"Original: A1c < 8%",
		"Corrected: A1c < 7%",
		"Rationale: See correction above",
		"Suggestion: Add renal panel",
		"SECTIONS APPROVED AS-IS:\nPROBLEM LIST",
		"CURRENT CARE PLAN:\nORIGINAL PLAN TEXT",
		"Return the COMPLETE revised care plan",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q", want)
		}
	}
}

func TestRegenerateEmptyFeedbackPlaceholders(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body messagesRequest
		json.NewDecoder(r.Body).Decode(&body)
		prompt = body.Messages[0].Content
		w.Write([]byte(planResponse("plan")))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	if _, err := client.Regenerate(context.Background(), "plan", nil); err != nil {
		t.Fatalf("Regenerate failed: %v", err)
	}

	if !strings.Contains(prompt, "CORRECTIONS NEEDED:\nNone") {
		t.Error("Expected 'None' for empty corrections")
	}
	if !strings.Contains(prompt, "SECTIONS APPROVED AS-IS:\nNone yet") {
		t.Error("Expected 'None yet' for empty approvals")
	}
}

func TestGenerateAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.Generate(context.Background(), planRequest())
	if err == nil {
		t.Fatal("Expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "rejected the configured credentials") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestGenerateServiceUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused

	client := NewClient(testConfig(server.URL))
	_, err := client.Generate(context.Background(), planRequest())
	if err == nil {
		t.Fatal("Expected error for unreachable service")
	}
	if !strings.Contains(err.Error(), "unreachable") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestGenerateMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"Not JSON", "<html>gateway error</html>"},
		{"Empty content", `{"content":[]}`},
		{"No text blocks", `{"content":[{"type":"tool_use"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(testConfig(server.URL))
			_, err := client.Generate(context.Background(), planRequest())
			if err == nil {
				t.Fatal("Expected error for malformed response")
			}
			if !strings.Contains(err.Error(), "malformed response") {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestGenerateUpstreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.Generate(context.Background(), planRequest())
	if err == nil {
		t.Fatal("Expected error for 500 response")
	}
}
