package resolution

import "github.com/Waryjustice/azure-incident-resolver/internal/domain"

// strategies maps each mapped root cause to its mitigation pair. Unmapped
// types fall through to manual investigation so no incident is ever dropped.
var strategies = map[domain.RootCauseType]domain.Strategy{
	domain.RootCauseConnectionExhaustion: {
		Immediate: domain.ActionScaleDatabaseTier,
		Permanent: domain.PermanentConnectionPooling,
	},
	domain.RootCauseMemoryLeak: {
		Immediate: domain.ActionRestartService,
		Permanent: domain.PermanentFixMemoryLeak,
	},
	domain.RootCauseRateLimitBreach: {
		Immediate: domain.ActionEnableCircuitBreaker,
		Permanent: domain.PermanentBackoffRetry,
	},
	domain.RootCauseFailedDeployment: {
		Immediate: domain.ActionRollbackDeployment,
		Permanent: domain.PermanentFixDeployment,
	},
}

var defaultStrategy = domain.Strategy{
	Immediate: domain.ActionManualInvestigation,
	Permanent: domain.PermanentIncidentReport,
}

// SelectStrategy returns the mitigation pair for a root cause type.
// It never fails; unknown types get the manual-investigation default.
func SelectStrategy(rootCause domain.RootCauseType) domain.Strategy {
	if strategy, ok := strategies[rootCause]; ok {
		return strategy
	}
	return defaultStrategy
}
