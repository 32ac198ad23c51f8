package gateway

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/workbench/internal/artifact"
	"github.com/sells-group/workbench/internal/config"
)

// Agent names known to the catalog.
const (
	AgentPrecallBrief  = "precall-brief"
	AgentDemoIdeas     = "demo-ideas"
	AgentQualification = "qualification"
	AgentPostcall      = "postcall"
	AgentFollowupEmail = "followup-email"
	AgentCoaching      = "coaching"
	AgentExecSummary   = "exec-summary"
	AgentDealReview    = "deal-review"
	AgentClosedLost    = "closed-lost"
	AgentBackfill      = "backfill"
	AgentHandoff       = "handoff"
	AgentRefresh       = "refresh"
	AgentApply         = "apply"
)

// ModeApply is the mode flag passed to the orchestrator to apply patches.
const ModeApply = "apply"

// ErrUnknownAgent is returned when building an invocation for an agent the
// catalog does not know.
var ErrUnknownAgent = eris.New("gateway: unknown agent")

const orchestratorScript = "src/execute-agent.ts"

var defaultScripts = map[string]string{
	AgentPrecallBrief:  "scripts/test-precall-brief.ts",
	AgentDemoIdeas:     "scripts/test-demo-ideas.ts",
	AgentQualification: "scripts/test-qualification.ts",
	AgentPostcall:      "scripts/test-postcall.ts",
	AgentFollowupEmail: "scripts/test-email.ts",
	AgentCoaching:      "scripts/test-coaching.ts",
	AgentExecSummary:   "scripts/test-exec-summary.ts",
	AgentDealReview:    "scripts/test-deal-review.ts",
	AgentClosedLost:    "scripts/test-closedlost.ts",
	AgentBackfill:      "scripts/test-backfill.ts",
	AgentHandoff:       "scripts/test-handoff.ts",
	AgentRefresh:       orchestratorScript,
	AgentApply:         orchestratorScript,
}

// BuildOptions adds optional arguments to an agent invocation.
type BuildOptions struct {
	CallID string
	Mode   string
	Stdin  []byte
}

// Catalog maps agent names to the command lines that run them.
type Catalog struct {
	command string
	args    []string
	dir     string
	scripts map[string]string
}

// NewCatalog builds a catalog from config. Scripts not set in config fall
// back to the built-in defaults.
func NewCatalog(cfg config.AgentsConfig) *Catalog {
	c := &Catalog{
		command: cfg.Command,
		args:    cfg.Args,
		dir:     cfg.Dir,
		scripts: make(map[string]string, len(defaultScripts)),
	}
	if c.command == "" {
		c.command = "npx"
		c.args = []string{"tsx"}
	}
	for name, script := range defaultScripts {
		c.scripts[name] = script
	}
	for name, script := range cfg.Scripts {
		c.scripts[name] = script
	}
	return c
}

// Agents returns the agent names in sorted order.
func (c *Catalog) Agents() []string {
	names := make([]string, 0, len(c.scripts))
	for name := range c.scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build renders the invocation for agent against account. The argv is the
// configured prefix, the script, the account display name, then the call id
// and the mode flag when set. The call id is positional. The apply agent
// always carries --apply.
func (c *Catalog) Build(agent, account string, opts BuildOptions) (Invocation, error) {
	script, ok := c.scripts[agent]
	if !ok {
		return Invocation{}, eris.Wrapf(ErrUnknownAgent, "%q", agent)
	}
	if agent == AgentApply && opts.Mode == "" {
		opts.Mode = ModeApply
	}

	args := make([]string, 0, len(c.args)+5)
	args = append(args, c.args...)
	if script != "" {
		args = append(args, script)
	}
	args = append(args, artifact.DisplayName(account))
	if opts.CallID != "" {
		args = append(args, opts.CallID)
	}
	if opts.Mode != "" {
		args = append(args, "--"+opts.Mode)
	}

	return Invocation{
		Command: c.command,
		Args:    args,
		Stdin:   opts.Stdin,
		Dir:     c.dir,
		Agent:   agent,
		Account: account,
	}, nil
}
