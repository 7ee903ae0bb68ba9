package domain

// ClassifySeverity derives incident-level severity from the anomaly list.
// One critical anomaly makes the incident critical; two or more critical/high
// anomalies make it high; a single critical/high anomaly makes it medium.
// Pure function of the anomaly list.
func ClassifySeverity(anomalies []Anomaly) Severity {
	critical := 0
	high := 0
	for _, a := range anomalies {
		switch a.Severity {
		case SeverityCritical:
			critical++
		case SeverityHigh:
			high++
		}
	}

	switch {
	case critical >= 1:
		return SeverityCritical
	case critical+high >= 2:
		return SeverityHigh
	case critical+high >= 1:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
