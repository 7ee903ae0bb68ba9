package resolution

import (
	"context"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// FixRequest carries masked context for permanent-fix generation.
// Evidence must already be masked before constructing one.
type FixRequest struct {
	Action            domain.PermanentAction
	RootCauseType     domain.RootCauseType
	Description       string
	AffectedComponent string
	Evidence          []string
}

// CodeFixer proposes a code change addressing a root cause.
type CodeFixer interface {
	GenerateFix(ctx context.Context, req FixRequest) (*domain.PermanentFix, error)
}

type staticFix struct {
	patch string
	files []string
}

var staticFixes = map[domain.PermanentAction]staticFix{
	domain.PermanentConnectionPooling: {
		files: []string{"src/database/connection.js"},
		patch: `+  const poolConfig = {
+    max: 20,
+    min: 5,
+    idleTimeoutMillis: 30000,
+    connectionTimeoutMillis: 2000
+  };
+  const pool = new Pool(poolConfig);
`,
	},
	domain.PermanentFixMemoryLeak: {
		files: []string{"src/services/cache.js"},
		patch: `+  setInterval(() => cache.prune(), 60000);
+  cache.on("evict", entry => entry.release());
`,
	},
	domain.PermanentBackoffRetry: {
		files: []string{"src/services/api-client.js"},
		patch: `+  const retry = require("async-retry");
+  await retry(call, { retries: 5, factor: 2, minTimeout: 200 });
`,
	},
}

// StaticFix returns the canned fallback fix for a permanent action,
// or nil when no fallback exists for that action.
func StaticFix(action domain.PermanentAction) *domain.PermanentFix {
	fix, ok := staticFixes[action]
	if !ok {
		return nil
	}
	return &domain.PermanentFix{
		Action:        action,
		Patch:         fix.patch,
		FilesModified: fix.files,
		Source:        domain.FixSourceStatic,
	}
}
