// Package orchestrator sequences one end-to-end documentation run: clone,
// analyze, decide whether regeneration is warranted, partition the
// repository into areas, run scout/plan/write for each, then reconcile the
// content store against what survived. Grounded on the teacher's
// campaign.Orchestrator top-level driver (internal/campaign/orchestrator*.go),
// scaled down from its phase/task state machine to the single linear
// pipeline this spec calls for — one run in, one Stats out, no pause/resume.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/isocrates/isocrates/internal/analyzer"
	"github.com/isocrates/isocrates/internal/audit"
	"github.com/isocrates/isocrates/internal/breaker"
	"github.com/isocrates/isocrates/internal/cliui"
	"github.com/isocrates/isocrates/internal/config"
	"github.com/isocrates/isocrates/internal/errs"
	"github.com/isocrates/isocrates/internal/llm"
	"github.com/isocrates/isocrates/internal/logging"
	"github.com/isocrates/isocrates/internal/partitioner"
	"github.com/isocrates/isocrates/internal/planner"
	"github.com/isocrates/isocrates/internal/regen"
	"github.com/isocrates/isocrates/internal/scout"
	"github.com/isocrates/isocrates/internal/store"
	"github.com/isocrates/isocrates/internal/types"
	"github.com/isocrates/isocrates/internal/writer"
	"go.uber.org/zap"
)

// Config is everything one Run invocation needs beyond the repo URL.
type Config struct {
	WorkDir     string // local directory under which repos are cloned
	CratePrefix string // restrict generation to one crate; "" means the whole repo
	Trigger     string // carried into each document's AuthorMeta.Trigger ("push", "manual", "schedule")

	LLM         config.LLMTierConfig
	Scout       config.ScoutConfig
	Writer      config.WriterConfig
	Partitioner config.PartitionerConfig
}

// Stats is the orchestrator's report for one run.
type Stats struct {
	RepoURL        string
	RepoName       string
	CommitSHA      string
	Skipped        bool
	SkipReason     string
	AreasProcessed int
	GeneratedIDs   []string
	FailedIDs      []string
	OrphansCleaned int
}

// Runner executes pipeline runs against one content store.
type Runner struct {
	store    *store.Store
	breakers *breaker.Registry
	audit    *audit.Logger
	log      *zap.Logger
	mermaid  writer.MermaidValidator
}

// New constructs a Runner. auditLog may be nil (events are then dropped).
func New(st *store.Store, breakers *breaker.Registry, auditLog *audit.Logger) *Runner {
	if breakers == nil {
		breakers = breaker.NewRegistry(3, 60*time.Second)
	}
	return &Runner{
		store:    st,
		breakers: breakers,
		audit:    auditLog,
		log:      logging.Get(logging.CategoryOrchestrator),
		mermaid:  writer.NewCLIMermaidValidator(),
	}
}

// Run executes the 7-step pipeline against repoURL: clone/pull, analyze,
// decide whether to regenerate at all, snapshot, partition and run
// scout/plan/write per area, reconcile orphans, report stats.
func (r *Runner) Run(ctx context.Context, repoURL string, cfg Config) (*Stats, error) {
	repoName := repoNameFromURL(repoURL)
	stats := &Stats{RepoURL: repoURL, RepoName: repoName}
	repoPath := filepath.Join(cfg.WorkDir, repoName)

	r.stage("clone", func() error {
		sha, err := ensureClone(ctx, repoURL, repoPath)
		if err != nil {
			return err
		}
		stats.CommitSHA = sha
		return nil
	})
	if stats.CommitSHA == "" {
		return nil, fmt.Errorf("orchestrator: cloning %s failed", repoURL)
	}

	var analysis *types.Analysis
	if err := r.stageErr("analyze", func() error {
		a, err := analyzer.Analyze(repoPath)
		if err != nil {
			return err
		}
		if cfg.CratePrefix != "" {
			a = filterAnalysisByCrate(a, cfg.CratePrefix)
		}
		analysis = a
		return nil
	}); err != nil {
		return nil, fmt.Errorf("orchestrator: analyzing %s: %w", repoPath, err)
	}
	r.log.Sugar().Infow("analysis complete",
		"size", cliui.Bytes(analysis.TotalBytes),
		"tokens", cliui.Count(analysis.TokenEstimate),
		"modules", len(analysis.Modules))

	existingDocs, err := r.store.ListDocuments(ctx, store.ListOptions{RepoURL: repoURL, Limit: 1_000_000})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: listing existing documents: %w", err)
	}

	var diffReport *types.ScoutReport
	if len(existingDocs) > 0 {
		skip, reason, dr := r.decideRegeneration(ctx, repoPath, existingDocs, stats.CommitSHA)
		if skip {
			stats.Skipped = true
			stats.SkipReason = reason
			r.record(audit.EventStageCompleted, "regen_decision", true, reason)
			return stats, nil
		}
		diffReport = dr
	}

	snapshot, err := r.store.Snapshot(ctx, repoURL)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: snapshotting %s: %w", repoURL, err)
	}

	result, err := r.generate(ctx, repoPath, repoURL, repoName, stats.CommitSHA, cfg, analysis, existingDocs, diffReport)
	if err != nil {
		return stats, err
	}
	stats.AreasProcessed = result.areasProcessed
	stats.GeneratedIDs = result.GeneratedIDs
	stats.FailedIDs = result.FailedIDs

	cleaned, err := r.store.CleanupOrphans(ctx, snapshot, stats.GeneratedIDs, stats.FailedIDs)
	if err != nil {
		var refusal *errs.SafetyRefusal
		if errors.As(err, &refusal) {
			r.log.Sugar().Warnw("orphan cleanup skipped", "reason", refusal.Error())
			r.record(audit.EventSafetyRefusal, "cleanup_orphans", false, refusal.Error())
		} else {
			return stats, fmt.Errorf("orchestrator: cleaning up orphans: %w", err)
		}
	} else {
		stats.OrphansCleaned = cleaned
		r.record(audit.EventOrphanCleanup, "cleanup_orphans", true, fmt.Sprintf("%d removed", cleaned))
	}

	return stats, nil
}

// decideRegeneration applies the repo-level gate: it treats the most
// recently written version across all of the repo's documents as the
// baseline, and skips the whole run when the repository has not changed
// since then (spec.md §4.8's engine is the per-document decision used here
// at repo granularity to avoid paying for scout/planner/writer calls when
// nothing changed). No per-document targeted check follows: the pipeline
// never calls regen.ShouldRegenerateTargeted, and when the run is not
// skipped every planned document is written.
func (r *Runner) decideRegeneration(ctx context.Context, repoPath string, existingDocs []*types.Document, currentSHA string) (skip bool, reason string, diffReport *types.ScoutReport) {
	latest, prevSHA := latestVersion(ctx, r.store, existingDocs)
	gitCLI := regen.NewGitCLI(repoPath)
	decision := regen.ShouldRegenerate(ctx, gitCLI, true, latest, time.Now().UTC())
	if !decision.Regenerate {
		return true, decision.Reason, nil
	}

	if prevSHA != "" && prevSHA != currentSHA {
		titles := make([]string, 0, len(existingDocs))
		for _, d := range existingDocs {
			titles = append(titles, d.Title)
		}
		diff := diffSummary(ctx, repoPath, prevSHA, currentSHA)
		report := types.ScoutReport{
			Key: "diff",
			Content: fmt.Sprintf("Repository changed from %s to %s.\n\nDiff summary:\n%s\n\nExisting documents: %v",
				prevSHA, currentSHA, diff, titles),
		}
		diffReport = &report
	}
	return false, decision.Reason, diffReport
}

// latestVersion finds the single most recently created version across
// every document and returns it (plus its recorded commit SHA) as the
// representative baseline for the repo-level regeneration gate.
func latestVersion(ctx context.Context, st *store.Store, docs []*types.Document) (regen.LatestVersion, string) {
	var latest regen.LatestVersion
	var sha string
	for _, d := range docs {
		versions, err := st.Versions(ctx, d.ID)
		if err != nil || len(versions) == 0 {
			continue
		}
		v := versions[0]
		if v.CreatedAt.After(latest.CreatedAt) {
			latest = regen.LatestVersion{AuthorType: v.AuthorType, CommitSHA: v.AuthorMeta.CommitSHA, CreatedAt: v.CreatedAt}
			sha = v.AuthorMeta.CommitSHA
		}
	}
	return latest, sha
}

type generateResult struct {
	writer.Result
	areasProcessed int
}

// generate runs step 5: partition the (possibly crate-filtered) analysis
// into areas, then scout/plan/write each one, accumulating writer results.
func (r *Runner) generate(ctx context.Context, repoPath, repoURL, repoName, commitSHA string, cfg Config, analysis *types.Analysis, existingDocs []*types.Document, diffReport *types.ScoutReport) (generateResult, error) {
	scoutModel, err := config.ResolveModelConfig(cfg.LLM.Scout.Model)
	if err != nil {
		return generateResult{}, fmt.Errorf("orchestrator: resolving scout model: %w", err)
	}
	plannerModel, err := config.ResolveModelConfig(cfg.LLM.Planner.Model)
	if err != nil {
		return generateResult{}, fmt.Errorf("orchestrator: resolving planner model: %w", err)
	}

	scoutPool := scout.NewPool(clientFactory(ctx, cfg.LLM, cfg.LLM.Scout), cfg.Scout, r.breakers)
	plannerFactory := clientFactory(ctx, cfg.LLM, cfg.LLM.Planner)
	writerPool := writer.NewPool(clientFactory(ctx, cfg.LLM, cfg.LLM.Writer), r.store, cfg.Writer, r.breakers, r.mermaid)

	ratio := scout.BudgetRatio(analysis.TokenEstimate, scoutModel.ContextWindowTokens)
	areas := partitioner.Partition(analysis, partitioner.Options{
		ContextBudget: cfg.Partitioner.ContextBudget,
		MinAreas:      cfg.Partitioner.MinAreas,
		MaxAreas:      cfg.Partitioner.MaxAreas,
	})

	crateName := repoName
	if cfg.CratePrefix != "" {
		crateName = cfg.CratePrefix
	} else if len(analysis.Crates) == 1 {
		crateName = analysis.Crates[0]
	}
	existingTitles := titlesFor(existingDocs, cfg.CratePrefix)
	complexity := complexityFor(analysis.SizeLabel)

	var result writer.Result
	processed := 0
	for _, area := range areas {
		reports, err := scoutPool.RunAreaScouts(ctx, analysis, area, ratio)
		if err != nil {
			r.log.Sugar().Errorw("area scouts failed", "area", area.Name, "err", err)
			continue
		}
		if diffReport != nil {
			reports = append(reports, *diffReport)
		}

		compressed, err := scoutPool.Compress(ctx, reports, plannerModel.ContextWindowTokens)
		if err != nil {
			r.log.Sugar().Warnw("scout compression failed, using uncompressed reports", "area", area.Name, "err", err)
			compressed = reports
		}

		bp, err := planner.Plan(ctx, plannerFactory(), planner.Input{
			CrateName:      crateName,
			RepoName:       repoName,
			ScoutReports:   scout.JoinReports(compressed),
			ExistingTitles: existingTitles,
			Complexity:     complexity,
		})
		if err != nil {
			r.log.Sugar().Errorw("planner failed for area", "area", area.Name, "err", err)
			continue
		}

		validTitles := append(append([]string(nil), existingTitles...), titlesFromBlueprint(bp)...)
		areaResult := writerPool.Run(ctx, writer.RunInput{
			RepoURL:      repoURL,
			RepoName:     repoName,
			CommitSHA:    commitSHA,
			RepoRoot:     repoPath,
			Blueprint:    bp,
			ScoutReports: compressed,
			ValidTitles:  validTitles,
			Trigger:      cfg.Trigger,
		})
		result.GeneratedIDs = append(result.GeneratedIDs, areaResult.GeneratedIDs...)
		result.FailedIDs = append(result.FailedIDs, areaResult.FailedIDs...)
		processed++

		r.record(audit.EventStageCompleted, "area:"+area.Name,
			len(areaResult.FailedIDs) == 0,
			fmt.Sprintf("generated=%d failed=%d", len(areaResult.GeneratedIDs), len(areaResult.FailedIDs)))
	}

	return generateResult{Result: result, areasProcessed: processed}, nil
}

// clientFactory builds the func() llm.Client each pool needs, resolving the
// tier endpoint's base URL/API key fallback once up front. Every call
// constructs a fresh client, so each scout/writer task owns its own; a
// construction failure is returned as an errorClient whose Complete reports
// it, since each tier's own failure handling (scout retry, planner fallback,
// writer per-document failure) already treats a completion error as routine.
func clientFactory(ctx context.Context, tiers config.LLMTierConfig, endpoint config.LLMEndpoint) func() llm.Client {
	resolved := (&config.Config{LLM: tiers}).ResolveEndpoint(endpoint)
	return func() llm.Client {
		client, err := llm.NewGenAIClient(ctx, resolved)
		if err != nil {
			return errorClient{model: endpoint.Model, err: err}
		}
		return client
	}
}

// errorClient is the fallback func() llm.Client result when an endpoint
// fails to construct: it surfaces the construction error as a normal
// completion failure instead of panicking the pool.
type errorClient struct {
	model string
	err   error
}

func (e errorClient) Model() string { return e.model }
func (e errorClient) Complete(context.Context, []llm.Message) (string, error) {
	return "", e.err
}

func (r *Runner) stage(name string, fn func() error) {
	_ = r.stageErr(name, fn)
}

func (r *Runner) stageErr(name string, fn func() error) error {
	start := time.Now()
	r.record(audit.EventStageStarted, name, true, "")
	err := fn()
	r.record(audit.EventStageCompleted, name, err == nil, errString(err))
	if err != nil {
		r.log.Sugar().Errorw("stage failed", "stage", name, "err", err, "elapsed", time.Since(start))
	}
	return err
}

func (r *Runner) record(evType audit.EventType, target string, success bool, msg string) {
	if r.audit == nil {
		return
	}
	r.audit.Record(audit.Event{Type: evType, Target: target, Success: success, Message: msg})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
