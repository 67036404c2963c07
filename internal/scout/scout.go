// Package scout implements Tier 0 of the generation pipeline (spec.md §4.4):
// parallel exploration workers that each read a slice of the repository and
// emit a structured intelligence report for the planner to consume.
//
// Grounded on the teacher's campaign.IntelligenceGatherer (errgroup-based
// fan-out where one gatherer's failure is recorded but never cancels the
// others) and shards/researcher's retry/backoff texture for the one kind of
// scout that does retry.
package scout

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/isocrates/isocrates/internal/breaker"
	"github.com/isocrates/isocrates/internal/config"
	"github.com/isocrates/isocrates/internal/llm"
	"github.com/isocrates/isocrates/internal/logging"
	"github.com/isocrates/isocrates/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Kind identifies the flavor of scout that produced a report.
type Kind string

const (
	KindTopic  Kind = "topic"
	KindModule Kind = "module"
	KindArea   Kind = "area"
	KindDiff   Kind = "diff"
)

// topicCatalogue is the fixed set of topic scouts, in always-run order
// followed by conditional ones. Order matters only for determinism of the
// returned report slice, not for correctness.
var topicCatalogue = []string{"structure", "architecture", "api", "infra", "tests"}

const (
	infraRatioThreshold = 0.3
	testsRatioThreshold = 1.0
	moduleRatioThreshold = 1.0
	minModulesForModuleScouts = 4
)

// Pool runs scouts against an Analysis (or a DocumentationArea subset of
// one) and returns their reports. Each scout owns its own LLM client
// instance so parallel scouts never share conversation state, per spec.md
// §4.4 ("independent worker that owns its own LLM client, conversation, and
// condenser").
type Pool struct {
	newClient func() llm.Client
	cfg       config.ScoutConfig
	breakers  *breaker.Registry
	log       *zap.Logger
}

// NewPool constructs a scout Pool. newClient is called for every completion
// the pool makes, so no two scouts share a client/conversation.
func NewPool(newClient func() llm.Client, cfg config.ScoutConfig, breakers *breaker.Registry) *Pool {
	return &Pool{newClient: newClient, cfg: cfg, breakers: breakers, log: logging.Get(logging.CategoryScout)}
}

// BudgetRatio is repo tokens divided by the scout tier's context window;
// it drives which conditional scouts run and how aggressively manifests are
// truncated (spec.md §4.4).
func BudgetRatio(tokenEstimate, scoutContextWindow int) float64 {
	if scoutContextWindow <= 0 {
		return 0
	}
	return float64(tokenEstimate) / float64(scoutContextWindow)
}

// SelectTopics returns the topic scouts that should run for the given
// budget ratio: structure/architecture/api always, infra at ratio >= 0.3,
// tests at ratio >= 1.0.
func SelectTopics(ratio float64) []string {
	topics := []string{"structure", "architecture", "api"}
	if ratio >= infraRatioThreshold {
		topics = append(topics, "infra")
	}
	if ratio >= testsRatioThreshold {
		topics = append(topics, "tests")
	}
	return topics
}

// RunTopicScouts runs the topic scouts selected for ratio. Sequential when
// fewer than 3 scouts are scheduled (spec.md §4.4's "sequential path... for
// smaller batches"); otherwise a parallel wave bounded by cfg.Parallel.
func (p *Pool) RunTopicScouts(ctx context.Context, analysis *types.Analysis, ratio float64) ([]types.ScoutReport, error) {
	topics := SelectTopics(ratio)
	manifest := buildManifest(analysis, ratio, nil)

	run := func(ctx context.Context, topic string) types.ScoutReport {
		return p.runTopicScout(ctx, topic, manifest, ratio)
	}

	if len(topics) < 3 {
		reports := make([]types.ScoutReport, 0, len(topics))
		for _, t := range topics {
			reports = append(reports, run(ctx, t))
		}
		return reports, nil
	}
	return p.runWave(ctx, topics, run), nil
}

func (p *Pool) runTopicScout(ctx context.Context, topic string, manifest []manifestEntry, ratio float64) types.ScoutReport {
	prompt := buildPrompt(topic, manifest, ratio)
	label := "scout:" + topic

	const maxAttempts = 2 // one retry, per spec.md §4.4
	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return failureReport(topic, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		content, err := p.complete(ctx, label, prompt)
		if err == nil {
			return types.ScoutReport{Key: topic, Content: content}
		}
		lastErr = err
		p.log.Sugar().Warnw("topic scout attempt failed", "topic", topic, "attempt", attempt+1, "err", err)
	}
	return failureReport(topic, lastErr)
}

func (p *Pool) complete(ctx context.Context, label, prompt string) (string, error) {
	client := p.newClient()
	return breaker.RunWithTimeout(ctx, p.breakers, label, 2*time.Minute, func(ctx context.Context) (string, error) {
		return client.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}})
	})
}

func failureReport(key string, err error) types.ScoutReport {
	msg := "scout failed"
	if err != nil {
		msg = err.Error()
	}
	return types.ScoutReport{
		Key:     key,
		Content: fmt.Sprintf("(scout %q failed: %s)", key, msg),
		Failed:  true,
	}
}

// RunModuleScouts buckets analysis.Modules via locality-aware bin-packing
// and runs one scout per bucket. Module scouts do not retry (spec.md
// §4.4): a failure yields a placeholder report so the planner always sees
// one report per scheduled key.
func (p *Pool) RunModuleScouts(ctx context.Context, analysis *types.Analysis, ratio float64) []types.ScoutReport {
	if ratio <= moduleRatioThreshold || len(analysis.Modules) < minModulesForModuleScouts {
		return nil
	}
	buckets := bucketModules(analysis, p.cfg.Parallel)
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	run := func(ctx context.Context, key string) types.ScoutReport {
		manifest := buildManifest(analysis, ratio, buckets[key])
		prompt := buildPrompt("module_"+key, manifest, ratio)
		content, err := p.complete(ctx, "scout:module_"+key, prompt)
		if err != nil {
			return failureReport("module_"+key, err)
		}
		return types.ScoutReport{Key: "module_" + key, Content: content}
	}
	return p.runWave(ctx, keys, run)
}

// RunAreaScouts runs module scouts scoped to a single DocumentationArea;
// single-module areas fall back to topic scouts for breadth, per spec.md
// §4.4.
func (p *Pool) RunAreaScouts(ctx context.Context, full *types.Analysis, area types.DocumentationArea, ratio float64) ([]types.ScoutReport, error) {
	if len(area.ModuleNames) <= 1 {
		return p.RunTopicScouts(ctx, areaAnalysis(full, area), ratio)
	}
	return p.RunModuleScouts(ctx, areaAnalysis(full, area), ratio), nil
}

func areaAnalysis(full *types.Analysis, area types.DocumentationArea) *types.Analysis {
	modules := make(map[string]*types.ModuleInfo, len(area.ModuleNames))
	for _, name := range area.ModuleNames {
		if m, ok := full.Modules[name]; ok {
			modules[name] = m
		}
	}
	return &types.Analysis{
		FileManifest:  area.Files,
		TokenEstimate: area.TokenEstimate,
		Modules:       modules,
	}
}

// DiffScoutInput carries the pre-computed git context the diff scout needs;
// this package only shapes the prompt and runs the completion. No pipeline
// code calls RunDiffScout: the orchestrator runs `git diff --stat` itself
// and hands the planner a "diff" report built from that raw output, without
// an LLM pass.
type DiffScoutInput struct {
	PreviousSHA  string
	CurrentSHA   string
	DiffSummary  string
	ExistingDocs []string
}

// RunDiffScout produces a report describing which existing documents are
// outdated, missing new facts, or reference removed features.
func (p *Pool) RunDiffScout(ctx context.Context, in DiffScoutInput) types.ScoutReport {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository changed from %s to %s.\n\n", in.PreviousSHA, in.CurrentSHA)
	b.WriteString("Diff summary:\n")
	b.WriteString(in.DiffSummary)
	b.WriteString("\n\nExisting documents:\n")
	for _, d := range in.ExistingDocs {
		fmt.Fprintf(&b, "- %s\n", d)
	}
	b.WriteString("\nFor each existing document, state whether it is outdated, missing new facts, or references removed features.\n")

	content, err := p.complete(ctx, "scout:diff", b.String())
	if err != nil {
		return failureReport("diff", err)
	}
	return types.ScoutReport{Key: "diff", Content: content}
}

// runWave runs one task per key in parallel when len(keys) >= 3, bounded by
// p.cfg.Parallel concurrent goroutines via errgroup.SetLimit; sequential
// otherwise. Individual task failures are folded into their own report
// (failureReport) rather than returned as errors, so one scout failing
// never cancels the others' context — mirrored from the teacher's
// IntelligenceGatherer.Gather, which always returns nil from each eg.Go
// closure and records failures separately.
func (p *Pool) runWave(ctx context.Context, keys []string, run func(ctx context.Context, key string) types.ScoutReport) []types.ScoutReport {
	if len(keys) < 3 {
		reports := make([]types.ScoutReport, 0, len(keys))
		for _, k := range keys {
			reports = append(reports, run(ctx, k))
		}
		return reports
	}

	parallel := p.cfg.Parallel
	if parallel <= 0 {
		parallel = 4
	}

	reports := make([]types.ScoutReport, len(keys))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(parallel)
	for i, key := range keys {
		i, key := i, key
		eg.Go(func() error {
			reports[i] = run(egCtx, key)
			return nil
		})
	}
	_ = eg.Wait()
	return reports
}
