package exam

// TurnPrompt builds the user message asking for the patient's next line.
func TurnPrompt(scenario, student string) string {
	return "Scenario: " + scenario + "\nStudent: " + student + "\nPatient:"
}

// AssessmentPrompt builds the user message asking for feedback on the whole
// conversation.
func AssessmentPrompt(criteria string, tr *Transcript) string {
	return "ADC Criteria: " + criteria + "\nConversation: " + tr.Render() + "\nAssessment:"
}
