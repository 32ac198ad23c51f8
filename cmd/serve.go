package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/workbench/internal/approval"
	"github.com/sells-group/workbench/internal/artifact"
	"github.com/sells-group/workbench/internal/gateway"
	"github.com/sells-group/workbench/internal/model"
	"github.com/sells-group/workbench/internal/patch"
	"github.com/sells-group/workbench/internal/workbench"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the workbench HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initWorkbench(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env.Service, cfg.Agents.SummaryLength),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter wires the HTTP API onto svc. summaryLen bounds the stderr
// returned to clients.
func buildRouter(svc *workbench.Service, summaryLen int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	h := &handlers{svc: svc, summaryLen: summaryLen}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/accounts", h.listAccounts)
	r.Route("/accounts/{slug}", func(r chi.Router) {
		r.Get("/capabilities", h.capabilities)
		r.Get("/calls", h.calls)
		r.Get("/artifacts/{category}", h.artifacts)
		r.Get("/draft", h.draft)
		r.Get("/applied", h.applied)
		r.Get("/review", h.review)
		r.Post("/review", h.startReview)
		r.Post("/review/decisions", h.decisions)
		r.Post("/review/confirm", h.confirm)
		r.Post("/agents/{agent}", h.runAgent)
	})

	return r
}

type handlers struct {
	svc        *workbench.Service
	summaryLen int
}

type accountView struct {
	Slug         string          `json:"slug"`
	Name         string          `json:"name"`
	Capabilities map[string]bool `json:"capabilities"`
}

func (h *handlers) listAccounts(w http.ResponseWriter, _ *http.Request) {
	st := h.svc.Artifacts()
	slugs, err := st.ListAccounts()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]accountView, 0, len(slugs))
	for _, s := range slugs {
		caps, err := st.DetectCapabilities(s)
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, accountView{Slug: s, Name: artifact.DisplayName(s), Capabilities: caps})
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (h *handlers) capabilities(w http.ResponseWriter, r *http.Request) {
	caps, err := h.svc.Artifacts().DetectCapabilities(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

func (h *handlers) calls(w http.ResponseWriter, r *http.Request) {
	calls, err := h.svc.Artifacts().LoadGongCalls(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

type skippedView struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func (h *handlers) artifacts(w http.ResponseWriter, r *http.Request) {
	slug, category := chi.URLParam(r, "slug"), chi.URLParam(r, "category")
	st := h.svc.Artifacts()

	if r.URL.Query().Get("all") != "" {
		res, err := st.ResolveAll(slug, category)
		if err != nil {
			writeError(w, err)
			return
		}
		skipped := make([]skippedView, 0, len(res.Skipped))
		for _, de := range res.Skipped {
			skipped = append(skipped, skippedView{Path: de.Path, Error: de.Err.Error()})
		}
		writeJSON(w, http.StatusOK, map[string]any{"artifacts": res.Artifacts, "skipped": skipped})
		return
	}

	a, err := st.ResolveLatest(slug, category)
	if err != nil {
		writeError(w, err)
		return
	}
	if a == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("no %s artifacts", category)})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handlers) draft(w http.ResponseWriter, r *http.Request) {
	set, err := h.svc.LoadPatchSet(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReviewView(approval.NewSession(set)))
}

func (h *handlers) applied(w http.ResponseWriter, r *http.Request) {
	res, a, err := h.svc.LatestApplied(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	if res == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no apply receipts"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": a.Path, "timestamp": a.Timestamp, "result": res})
}

func (h *handlers) review(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Session(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newReviewView(sess))
}

func (h *handlers) startReview(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.StartReview(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newReviewView(sess))
}

type decisionsRequest struct {
	// Reset drops every override first. All, when set, then applies to every
	// patch before Decisions.
	Reset     bool            `json:"reset,omitempty"`
	All       *bool           `json:"all,omitempty"`
	Decisions map[string]bool `json:"decisions"`
}

func (h *handlers) decisions(w http.ResponseWriter, r *http.Request) {
	var req decisionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sess, err := h.openSession(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}

	// Every key is checked before the session changes so a bad request leaves
	// the decisions as they were.
	keys := make(map[patch.Key]bool, len(req.Decisions))
	for raw, approved := range req.Decisions {
		k, err := patch.ParseKey(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if _, ok := sess.Set().Lookup(k); !ok {
			writeError(w, eris.Wrapf(approval.ErrUnknownPatch, "%s", k))
			return
		}
		keys[k] = approved
	}

	if req.Reset {
		if err := sess.ResetDecisions(); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.All != nil {
		if err := sess.SetAll(*req.All); err != nil {
			writeError(w, err)
			return
		}
	}
	for k, approved := range keys {
		if err := sess.SetDecision(k, approved); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, newReviewView(sess))
}

func (h *handlers) confirm(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Session(chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := h.svc.Apply(r.Context(), sess)
	if err != nil && out == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		zap.L().Warn("serve: apply invocation failed", zap.String("account", sess.Set().Account), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     out.State,
		"patches":   len(out.Request.Patches),
		"exitCode":  out.Result.ExitCode,
		"lastError": gateway.Summary(sess.LastError(), h.summaryLen),
	})
}

type agentRequest struct {
	CallID string `json:"callId"`
	Mode   string `json:"mode"`
}

func (h *handlers) runAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	res, err := h.svc.RunAgent(r.Context(), chi.URLParam(r, "agent"), chi.URLParam(r, "slug"),
		gateway.BuildOptions{CallID: req.CallID, Mode: req.Mode})
	if err != nil {
		var ie *gateway.InvocationError
		if !errors.As(err, &ie) {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  res.Success,
		"exitCode": res.ExitCode,
		"stdout":   res.Stdout,
		"stderr":   gateway.Summary(res.Stderr, h.summaryLen),
		"duration": res.Duration.String(),
	})
}

// openSession returns the open review for slug, starting one if needed.
func (h *handlers) openSession(slug string) (*approval.Session, error) {
	sess, err := h.svc.Session(slug)
	if errors.Is(err, workbench.ErrNoSession) {
		return h.svc.StartReview(slug)
	}
	return sess, err
}

type patchView struct {
	Key      string      `json:"key"`
	Patch    model.Patch `json:"patch"`
	Approved bool        `json:"approved"`
}

type groupView struct {
	ObjectType string      `json:"objectType"`
	Patches    []patchView `json:"patches"`
}

// reviewView is a review as returned over HTTP. Request is set once the
// review was confirmed.
type reviewView struct {
	Account     string              `json:"account"`
	Draft       string              `json:"draft"`
	GeneratedAt string              `json:"generatedAt,omitempty"`
	State       approval.State      `json:"state"`
	LastError   string              `json:"lastError,omitempty"`
	Tally       approval.Tally      `json:"tally"`
	Request     *model.ApplyRequest `json:"request,omitempty"`
	Groups      []groupView         `json:"groups"`
}

func newReviewView(sess *approval.Session) reviewView {
	set := sess.Set()
	v := reviewView{
		Account:     set.Account,
		Draft:       set.DraftPath,
		GeneratedAt: set.GeneratedAt,
		State:       sess.State(),
		LastError:   sess.LastError(),
		Tally:       sess.Tally(),
		Request:     sess.Request(),
		Groups:      []groupView{},
	}
	for _, g := range set.GroupByObjectType() {
		gv := groupView{ObjectType: g.ObjectType, Patches: make([]patchView, 0, len(g.Entries))}
		for _, e := range g.Entries {
			gv.Patches = append(gv.Patches, patchView{Key: e.Key.String(), Patch: e.Patch, Approved: sess.Decision(e.Key)})
		}
		v.Groups = append(v.Groups, gv)
	}
	return v
}

// statusFor maps workbench errors onto HTTP status codes.
func statusFor(err error) int {
	var ve *approval.ValidationError
	var de *artifact.DecodeError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.Is(err, workbench.ErrApplyInProgress), errors.Is(err, approval.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, approval.ErrEmptySelection),
		errors.Is(err, approval.ErrUnknownPatch),
		errors.Is(err, artifact.ErrInvalidAccount),
		errors.Is(err, artifact.ErrUnknownCategory),
		errors.Is(err, gateway.ErrUnknownAgent):
		return http.StatusBadRequest
	case errors.Is(err, workbench.ErrNoDraft),
		errors.Is(err, workbench.ErrNoBackfill),
		errors.Is(err, workbench.ErrNoSession):
		return http.StatusNotFound
	case errors.As(err, &de):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := map[string]any{"error": err.Error()}
	var ve *approval.ValidationError
	if errors.As(err, &ve) {
		problems := make([]map[string]string, 0, len(ve.Problems))
		for _, p := range ve.Problems {
			problems = append(problems, map[string]string{"key": p.Key.String(), "message": p.Message})
		}
		body["problems"] = problems
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("serve: request failed", zap.Error(err))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
