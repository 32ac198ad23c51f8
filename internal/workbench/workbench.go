// Package workbench composes the artifact store, patch review and agent
// gateway into the operations the CLI and HTTP server expose.
package workbench

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/workbench/internal/approval"
	"github.com/sells-group/workbench/internal/artifact"
	"github.com/sells-group/workbench/internal/config"
	"github.com/sells-group/workbench/internal/gateway"
	"github.com/sells-group/workbench/internal/model"
	"github.com/sells-group/workbench/internal/patch"
	"github.com/sells-group/workbench/pkg/salesforce"
)

var (
	// ErrNoDraft is returned when an account has no CRM draft to review.
	ErrNoDraft = eris.New("workbench: no crm draft")

	// ErrNoBackfill is returned when an account has no backfill proposals.
	ErrNoBackfill = eris.New("workbench: no backfill proposals")

	// ErrApplyInProgress is returned when an apply is already running for
	// the account.
	ErrApplyInProgress = eris.New("workbench: apply already in progress")

	// ErrNoSession is returned when an account has no open review.
	ErrNoSession = eris.New("workbench: no review session")
)

// Service runs workbench operations. Review sessions live in memory, one
// per account, and are lost when the process exits.
type Service struct {
	cfg        *config.Config
	artifacts  *artifact.Store
	gateway    gateway.Gateway
	catalog    *gateway.Catalog
	salesforce salesforce.Client

	mu       sync.Mutex
	sessions map[string]*approval.Session
	applying map[string]bool
}

// New creates a Service. sf may be nil, in which case only basic patch
// validation runs before an apply.
func New(
	cfg *config.Config,
	artifacts *artifact.Store,
	gw gateway.Gateway,
	catalog *gateway.Catalog,
	sf salesforce.Client,
) *Service {
	return &Service{
		cfg:        cfg,
		artifacts:  artifacts,
		gateway:    gw,
		catalog:    catalog,
		salesforce: sf,
		sessions:   make(map[string]*approval.Session),
		applying:   make(map[string]bool),
	}
}

// Artifacts returns the underlying artifact store.
func (s *Service) Artifacts() *artifact.Store {
	return s.artifacts
}

// Catalog returns the agent catalog.
func (s *Service) Catalog() *gateway.Catalog {
	return s.catalog
}

// LoadPatchSet parses the newest CRM draft for account. It returns
// ErrNoDraft when there is none.
func (s *Service) LoadPatchSet(account string) (*patch.Set, error) {
	a, err := s.artifacts.ResolveLatest(account, artifact.CategoryCRMDraft)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, eris.Wrapf(ErrNoDraft, "account %q", account)
	}
	return patch.FromDraft(a)
}

// LoadBackfill parses the newest backfill artifact for account into its own
// patch set. Proposals are never merged with the draft. A newest report that
// fails to decode is an error; older reports are never reviewed in its place.
func (s *Service) LoadBackfill(account string) (*patch.Set, error) {
	a, err := s.artifacts.ResolveLatest(account, artifact.CategoryBackfill)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, eris.Wrapf(ErrNoBackfill, "account %q", account)
	}
	report, err := patch.BackfillFromArtifact(a)
	if err != nil {
		return nil, err
	}
	return report.AsPatchSet(account, s.cfg.Backfill.ObjectType), nil
}

// StartReview opens a fresh review of the newest draft for account,
// replacing any previous session unless an apply is running.
func (s *Service) StartReview(account string) (*approval.Session, error) {
	set, err := s.LoadPatchSet(account)
	if err != nil {
		return nil, err
	}
	return s.open(account, set)
}

// StartBackfillReview opens a review of the newest backfill proposals.
func (s *Service) StartBackfillReview(account string) (*approval.Session, error) {
	set, err := s.LoadBackfill(account)
	if err != nil {
		return nil, err
	}
	return s.open(account, set)
}

func (s *Service) open(account string, set *patch.Set) (*approval.Session, error) {
	sess := approval.NewSession(set, approval.WithValidator(s.validator(account)))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applying[account] {
		return nil, eris.Wrapf(ErrApplyInProgress, "account %q", account)
	}
	s.sessions[account] = sess

	zap.L().Debug("workbench: review opened",
		zap.String("account", account),
		zap.String("draft", set.DraftPath),
		zap.Int("patches", set.Count()),
	)
	return sess, nil
}

// Session returns the open review for account.
func (s *Service) Session(account string) (*approval.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[account]
	if !ok {
		return nil, eris.Wrapf(ErrNoSession, "account %q", account)
	}
	return sess, nil
}

// validator chains the checks run on Confirm. Salesforce checks are added
// only when a client is configured.
func (s *Service) validator(account string) approval.Validator {
	validators := []approval.Validator{approval.ValidatorFunc(approval.ValidateBasic)}
	if s.salesforce != nil {
		if s.cfg.Salesforce.ValidateFields {
			validators = append(validators, salesforce.NewFieldValidator(s.salesforce))
		}
		if s.cfg.Salesforce.CheckDrift {
			validators = append(validators, salesforce.NewDriftValidator(s.salesforce, artifact.DisplayName(account)))
		}
	}
	return approval.Chain(validators...)
}

// ApplyOutcome is what an apply attempt produced.
type ApplyOutcome struct {
	Request *model.ApplyRequest `json:"request"`
	Result  gateway.Result      `json:"result"`
	State   approval.State      `json:"state"`
}

// Apply confirms sess and hands the approved subset to the apply agent as
// JSON on stdin. Nothing is invoked when the selection is empty or fails
// validation. The session ends applied or failed according to the agent's
// exit status.
func (s *Service) Apply(ctx context.Context, sess *approval.Session) (*ApplyOutcome, error) {
	account := sess.Set().Account
	if err := s.beginApply(account); err != nil {
		return nil, err
	}
	defer s.endApply(account)

	req, err := sess.Confirm(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "workbench: encode apply request")
	}
	inv, err := s.catalog.Build(gateway.AgentApply, account, gateway.BuildOptions{Stdin: body})
	if err != nil {
		return nil, err
	}

	res, invokeErr := s.gateway.Invoke(ctx, inv)
	if err := sess.RecordResult(res); err != nil {
		return nil, err
	}

	out := &ApplyOutcome{Request: req, Result: res, State: sess.State()}
	if invokeErr != nil {
		return out, invokeErr
	}

	zap.L().Info("workbench: apply finished",
		zap.String("account", account),
		zap.Int("patches", len(req.Patches)),
		zap.String("state", string(out.State)),
	)
	return out, nil
}

func (s *Service) beginApply(account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applying[account] {
		return eris.Wrapf(ErrApplyInProgress, "account %q", account)
	}
	s.applying[account] = true
	return nil
}

func (s *Service) endApply(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.applying, account)
}

// RunAgent invokes a generation agent for account. A non-zero exit is
// reported in the Result.
func (s *Service) RunAgent(ctx context.Context, agent, account string, opts gateway.BuildOptions) (gateway.Result, error) {
	if _, err := s.artifacts.AccountDir(account); err != nil {
		return gateway.Result{}, err
	}
	inv, err := s.catalog.Build(agent, account, opts)
	if err != nil {
		return gateway.Result{}, err
	}
	return s.gateway.Invoke(ctx, inv)
}

// AccountRun is one account's outcome in a multi-account run.
type AccountRun struct {
	Account string         `json:"account"`
	Result  gateway.Result `json:"result"`
	Err     error          `json:"-"`
}

// RunAgentAll runs agent for each account in turn, waiting for every run to
// finish before starting the next. A failing account never stops the rest.
// When ctx is cancelled the remaining accounts are skipped and ctx.Err() is
// returned with the runs completed so far.
func (s *Service) RunAgentAll(ctx context.Context, agent string, accounts []string, opts gateway.BuildOptions) ([]AccountRun, error) {
	if _, err := s.catalog.Build(agent, "", opts); err != nil {
		return nil, err
	}

	out := make([]AccountRun, 0, len(accounts))
	var failed int
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.RunAgent(ctx, agent, account, opts)
		if err != nil || !res.Success {
			failed++
			zap.L().Warn("workbench: agent failed",
				zap.String("agent", agent),
				zap.String("account", account),
				zap.Int("exit_code", res.ExitCode),
				zap.Error(err),
			)
		}
		out = append(out, AccountRun{Account: account, Result: res, Err: err})
	}

	zap.L().Info("workbench: multi-account run complete",
		zap.String("agent", agent),
		zap.Int("accounts", len(accounts)),
		zap.Int("failed", failed),
	)
	return out, nil
}

// LatestApplied decodes the newest apply receipt for account. Both return
// values are nil when there is none.
func (s *Service) LatestApplied(account string) (*model.ApplyResult, *model.Artifact, error) {
	a, err := s.artifacts.ResolveLatest(account, artifact.CategoryApplied)
	if err != nil || a == nil {
		return nil, nil, err
	}
	res, err := DecodeApplyResult(a)
	if err != nil {
		return nil, a, err
	}
	return res, a, nil
}

// DecodeApplyResult maps an applied-receipt record onto ApplyResult.
func DecodeApplyResult(a *model.Artifact) (*model.ApplyResult, error) {
	data, err := json.Marshal(a.Record)
	if err != nil {
		return nil, &artifact.DecodeError{Path: a.Path, Err: err}
	}
	var res model.ApplyResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, &artifact.DecodeError{Path: a.Path, Err: err}
	}
	return &res, nil
}
