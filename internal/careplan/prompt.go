package careplan

import (
	"fmt"
	"strings"
)

// PlanRequest carries the clinical inputs for care plan generation
type PlanRequest struct {
	PatientFirstName    string
	PatientLastName     string
	PatientMRN          string
	PrimaryDiagnosis    string
	AdditionalDiagnoses []string
	ReferringProvider   string
	ProviderNPI         string
	MedicationName      string
	MedicationHistory   []string
	PatientRecords      string
}

// Revision is one pharmacist feedback item fed into regeneration
type Revision struct {
	Kind          string // correction, suggestion, approval
	Section       string
	OriginalText  string
	CorrectedText string
	Comment       string
}

const planStructure = `PROBLEM LIST / DRUG THERAPY PROBLEMS (DTPs)
List all relevant drug therapy problems including:
- Need for therapy / efficacy concerns
- Risk of adverse reactions (infusion-related, allergic, etc.)
- Risk of organ dysfunction (renal, hepatic, etc.)
- Risk of thromboembolic events or other serious complications
- Potential drug-drug interactions or dosing timing issues
- Patient education / adherence gaps

GOALS (SMART)
Define specific, measurable goals including:
- Primary therapeutic goal (efficacy)
- Safety goals (specific parameters to avoid complications)
- Process goals (completion of therapy with monitoring)

PHARMACIST INTERVENTIONS / PLAN
Provide detailed interventions for:

1. Dosing & Administration
   - Verify dose calculation and total course
   - Document lot number and expiration tracking requirements

2. Premedication
   - Recommend specific premeds with doses and timing
   - Rationale for premedication strategy

3. Infusion Rates & Titration
   - Starting rate and escalation schedule
   - How to manage infusion reactions

4. Hydration & Organ Protection (if applicable)
   - Renal protection strategies
   - Fluid management recommendations
   - Product selection considerations

5. Risk Mitigation (thrombosis, infections, etc.)
   - Risk assessment
   - Prophylactic measures if needed
   - Patient education on warning signs

6. Concomitant Medications
   - Continue/modify existing medications
   - Timing considerations
   - Drug interaction monitoring

7. Monitoring During Administration
   - Vital sign monitoring schedule
   - Lab monitoring (if applicable)
   - Documentation requirements

8. Adverse Event Management
   - Mild reaction management
   - Moderate/severe reaction protocols
   - Emergency contact information

9. Documentation & Communication
   - EMR documentation requirements
   - Communication plan with team

MONITORING PLAN & LAB SCHEDULE
Provide specific schedule:
- Before therapy: Required baseline labs and assessments
- During therapy: Monitoring frequency and parameters
- Post-therapy: Follow-up labs and timeframes
- Clinical follow-up: Schedule for efficacy and safety assessment`

// generationPrompt builds the prompt for a fresh care plan
func generationPrompt(req PlanRequest) string {
	additional := "None"
	if len(req.AdditionalDiagnoses) > 0 {
		additional = strings.Join(req.AdditionalDiagnoses, ", ")
	}
	medHistory := "None documented"
	if len(req.MedicationHistory) > 0 {
		medHistory = strings.Join(req.MedicationHistory, ", ")
	}

	return fmt.Sprintf(`You are a clinical pharmacist specializing in specialty pharmacy care planning.
Based on the patient information and clinical records provided below, generate a comprehensive pharmacist care plan following the standardized format used in specialty pharmacy practice.

PATIENT INFORMATION:
- Name: %s %s
- MRN: %s
- Primary Diagnosis (ICD-10): %s
- Additional Diagnoses: %s

PROVIDER INFORMATION:
- Referring Provider: %s
- Provider NPI: %s

MEDICATION INFORMATION:
- Prescribed Medication: %s
- Medication History: %s

PATIENT CLINICAL RECORDS:
%s

Please generate a comprehensive pharmacist care plan using the following structure:

%s

Please format the care plan in a clear, professional manner suitable for clinical documentation and EMR entry. Use bullet points and clear sections. Be specific with doses, frequencies, and timeframes where applicable.`,
		req.PatientFirstName, req.PatientLastName,
		req.PatientMRN,
		req.PrimaryDiagnosis,
		additional,
		req.ReferringProvider,
		req.ProviderNPI,
		req.MedicationName,
		medHistory,
		req.PatientRecords,
		planStructure,
	)
}

// revisionPrompt builds the prompt for regenerating a plan from
// pharmacist feedback. The current plan is included so the model has
// the full document to revise.
func revisionPrompt(currentPlan string, revisions []Revision) string {
	var corrections, suggestions []string
	var approvedSections []string

	for _, r := range revisions {
		switch r.Kind {
		case "correction":
			if r.OriginalText != "" && r.CorrectedText != "" {
				rationale := r.Comment
				if rationale == "" {
					rationale = "See correction above"
				}
				corrections = append(corrections, fmt.Sprintf(
					"SECTION: %s\nOriginal: %s\nCorrected: %s\nRationale: %s",
					r.Section, r.OriginalText, r.CorrectedText, rationale))
			}
		case "suggestion":
			suggestions = append(suggestions, fmt.Sprintf(
				"SECTION: %s\nSuggestion: %s", r.Section, r.Comment))
		case "approval":
			approvedSections = append(approvedSections, r.Section)
		}
	}

	correctionsBlock := "None"
	if len(corrections) > 0 {
		correctionsBlock = strings.Join(corrections, "\n")
	}
	suggestionsBlock := "None"
	if len(suggestions) > 0 {
		suggestionsBlock = strings.Join(suggestions, "\n")
	}
	approvedBlock := "None yet"
	if len(approvedSections) > 0 {
		approvedBlock = strings.Join(approvedSections, ", ")
	}

	return fmt.Sprintf(`You are a clinical pharmacist reviewing and improving a care plan based on professional feedback.

PHARMACIST FEEDBACK RECEIVED:

CORRECTIONS NEEDED:
%s

SUGGESTIONS FOR IMPROVEMENT:
%s

SECTIONS APPROVED AS-IS:
%s

CURRENT CARE PLAN:
%s

Please revise the care plan above to:
1. Incorporate all corrections exactly as specified
2. Address all suggestions in the appropriate sections
3. Keep approved sections unchanged
4. Maintain the professional structure and all required sections
5. Ensure clinical accuracy and safety

Return the COMPLETE revised care plan with all sections, not just the changed parts.`,
		correctionsBlock, suggestionsBlock, approvedBlock, currentPlan)
}
