package resolution

import "regexp"

const maskToken = "***MASKED***"

// Masking runs before any evidence crosses the process boundary to an
// external collaborator. It must be idempotent: the mask token itself
// matches none of the patterns below.
var (
	keyedSecretPattern = regexp.MustCompile(`(?i)(api_key|apikey|password|passwd|token|secret|access_key)\s*[=:]\s*[^\s,;"']+`)
	bearerPattern      = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/-]+=*`)
	emailPattern       = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	ssnPattern         = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	cardPattern        = regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{4}\b`)
)

// MaskSensitive redacts credentials and personal data from free text.
func MaskSensitive(text string) string {
	masked := keyedSecretPattern.ReplaceAllString(text, "$1="+maskToken)
	masked = bearerPattern.ReplaceAllString(masked, "Bearer "+maskToken)
	masked = emailPattern.ReplaceAllString(masked, maskToken)
	masked = ssnPattern.ReplaceAllString(masked, maskToken)
	masked = cardPattern.ReplaceAllString(masked, maskToken)
	return masked
}

// MaskEvidence returns a masked copy of the evidence list.
func MaskEvidence(evidence []string) []string {
	if len(evidence) == 0 {
		return nil
	}
	masked := make([]string, len(evidence))
	for i, item := range evidence {
		masked[i] = MaskSensitive(item)
	}
	return masked
}
