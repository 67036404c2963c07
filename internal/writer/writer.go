// Package writer implements Tier 2 of the generation pipeline (spec.md
// §4.6): one independent LLM worker per blueprint document, run in two
// waves (detail pages, then hub pages), each posting its finished document
// to the content store.
package writer

import (
	"context"
	"fmt"

	"github.com/isocrates/isocrates/internal/breaker"
	"github.com/isocrates/isocrates/internal/config"
	"github.com/isocrates/isocrates/internal/llm"
	"github.com/isocrates/isocrates/internal/logging"
	"github.com/isocrates/isocrates/internal/planner"
	"github.com/isocrates/isocrates/internal/provenance"
	"github.com/isocrates/isocrates/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// hubTypes are written in Wave 2, after every detail page exists, so their
// wikilinks resolve against a complete title set (spec.md §4.6).
var hubTypes = map[string]bool{"overview": true, "capabilities": true, "quickstart": true}

// Store is the subset of the content store the writer pool needs. It is an
// interface so internal/store can depend on nothing from internal/writer.
type Store interface {
	Upsert(ctx context.Context, create types.DocumentCreate) (*types.Document, bool, error)
}

// RunInput bundles everything one writer pool invocation needs.
type RunInput struct {
	RepoURL       string
	RepoName      string
	CommitSHA     string
	RepoRoot      string // local checkout, for provenance hashing
	Blueprint     *types.Blueprint
	ScoutReports  []types.ScoutReport
	ValidTitles   []string // blueprint pages + pre-existing same-crate titles
	Trigger       string
}

// Result is the orchestrator's bookkeeping per spec.md §4.6's "writer
// result tracking": every attempted document lands in exactly one set.
type Result struct {
	GeneratedIDs []string
	FailedIDs    []string
}

type Pool struct {
	newClient func() llm.Client
	store     Store
	cfg       config.WriterConfig
	breakers  *breaker.Registry
	log       *zap.Logger
	mermaid   MermaidValidator
}

func NewPool(newClient func() llm.Client, store Store, cfg config.WriterConfig, breakers *breaker.Registry, mermaid MermaidValidator) *Pool {
	return &Pool{
		newClient: newClient,
		store:     store,
		cfg:       cfg,
		breakers:  breakers,
		log:       logging.Get(logging.CategoryWriter),
		mermaid:   mermaid,
	}
}

// Run writes every document in the blueprint across two waves: all detail
// pages in parallel, then all hub pages in parallel (spec.md §4.6).
func (p *Pool) Run(ctx context.Context, in RunInput) Result {
	var detail, hub []types.DocumentSpec
	for _, d := range in.Blueprint.Documents {
		if hubTypes[d.Type] {
			hub = append(hub, d)
		} else {
			detail = append(detail, d)
		}
	}

	result := Result{}
	result.merge(p.runWave(ctx, in, detail))
	result.merge(p.runWave(ctx, in, hub))
	return result
}

func (r *Result) merge(other Result) {
	r.GeneratedIDs = append(r.GeneratedIDs, other.GeneratedIDs...)
	r.FailedIDs = append(r.FailedIDs, other.FailedIDs...)
}

func (p *Pool) runWave(ctx context.Context, in RunInput, docs []types.DocumentSpec) Result {
	if len(docs) == 0 {
		return Result{}
	}

	parallel := p.cfg.Parallel
	if parallel <= 0 {
		parallel = 3
	}

	outcomes := make([]outcome, len(docs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(parallel)
	for i, spec := range docs {
		i, spec := i, spec
		eg.Go(func() error {
			outcomes[i] = p.writeOne(egCtx, in, spec)
			return nil
		})
	}
	_ = eg.Wait()

	var result Result
	for _, o := range outcomes {
		if o.err != nil {
			result.FailedIDs = append(result.FailedIDs, o.id)
			p.log.Sugar().Errorw("writer failed", "title", o.title, "err", o.err)
			continue
		}
		result.GeneratedIDs = append(result.GeneratedIDs, o.id)
	}
	return result
}

type outcome struct {
	id    string
	title string
	err   error
}

func (p *Pool) writeOne(ctx context.Context, in RunInput, spec types.DocumentSpec) outcome {
	reports := relevantReports(in.ScoutReports, spec.Type)
	prompt := buildPrompt(spec, reports, in.ValidTitles)

	client := p.newClient()
	content, err := breaker.RunWithTimeout(ctx, p.breakers, "writer:"+spec.Type, writerTimeout, func(ctx context.Context) (string, error) {
		return client.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}})
	})
	if err != nil {
		return outcome{title: spec.Title, err: fmt.Errorf("writer: completing %q: %w", spec.Title, err)}
	}

	content = sanitizeWikilinks(content, in.ValidTitles)
	content = p.validateMermaid(ctx, client, content)

	refs := provenance.ExtractSourceReferences(content, spec.KeyFiles)
	hashes := provenance.ComputeSourceHashes(in.RepoRoot, refs)

	create := types.DocumentCreate{
		RepoURL:    in.RepoURL,
		RepoName:   in.RepoName,
		DocType:    spec.Type,
		Path:       spec.Path,
		Title:      spec.Title,
		Content:    content,
		AuthorType: types.AuthorAI,
		AuthorMeta: types.AuthorMeta{
			Model:        client.Model(),
			CommitSHA:    in.CommitSHA,
			SourceHashes: hashes,
			Trigger:      in.Trigger,
		},
	}

	doc, _, err := p.store.Upsert(ctx, create)
	if err != nil {
		return outcome{title: spec.Title, err: fmt.Errorf("writer: storing %q: %w", spec.Title, err)}
	}
	return outcome{id: doc.ID, title: spec.Title}
}

func relevantReports(reports []types.ScoutReport, docType string) []types.ScoutReport {
	want := make(map[string]bool)
	for _, k := range planner.ReportsFor(docType) {
		want[k] = true
	}
	var out []types.ScoutReport
	for _, r := range reports {
		if want[r.Key] {
			out = append(out, r)
		}
	}
	return out
}
