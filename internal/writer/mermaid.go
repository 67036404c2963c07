package writer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"

	"github.com/isocrates/isocrates/internal/llm"
)

var mermaidBlockRe = regexp.MustCompile("(?s)```mermaid\n(.*?)\n```")

// MermaidValidator checks one mermaid diagram body and returns a parse
// error, if any. It is an interface so tests can script it without shelling
// out, and so production code can swap parsers without touching the writer.
type MermaidValidator interface {
	Validate(ctx context.Context, diagram string) error
}

// CLIMermaidValidator shells out to the mmdc CLI (mermaid-js's reference
// parser) if present on PATH. Mirrors the teacher's exec.LookPath-guarded
// optional-tool pattern (cmd/nerd/cmd_auth.go's execLookPath): absence of
// the binary is not an error, just "validation unavailable."
type CLIMermaidValidator struct {
	binary string // defaults to "mmdc"
}

func NewCLIMermaidValidator() *CLIMermaidValidator {
	return &CLIMermaidValidator{binary: "mmdc"}
}

// Available reports whether the validator's binary is on PATH.
func (v *CLIMermaidValidator) Available() bool {
	_, err := exec.LookPath(v.binary)
	return err == nil
}

func (v *CLIMermaidValidator) Validate(ctx context.Context, diagram string) error {
	if !v.Available() {
		return nil
	}
	cmd := exec.CommandContext(ctx, v.binary, "--input", "-", "--output", "/dev/null")
	cmd.Stdin = bytes.NewReader([]byte(diagram))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mermaid: %s", stderr.String())
	}
	return nil
}

// validateMermaid extracts every fenced mermaid block and, when a
// validator is configured and available, repairs parse errors with one
// additional LLM pass (spec.md §4.6 step 3). If no validator is wired, or a
// block can't be parsed by it, the diagram is left untouched beyond the
// repair attempt.
func (p *Pool) validateMermaid(ctx context.Context, client llm.Client, content string) string {
	if p.mermaid == nil {
		return content
	}

	matches := mermaidBlockRe.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return content
	}

	var out []byte
	last := 0
	for _, m := range matches {
		out = append(out, content[last:m[0]]...)
		diagram := content[m[2]:m[3]]
		if err := p.mermaid.Validate(ctx, diagram); err != nil {
			diagram = p.repairMermaid(ctx, client, diagram, err)
		}
		out = append(out, []byte("```mermaid\n"+diagram+"\n```")...)
		last = m[1]
	}
	out = append(out, content[last:]...)
	return string(out)
}

func (p *Pool) repairMermaid(ctx context.Context, client llm.Client, diagram string, parseErr error) string {
	prompt := fmt.Sprintf(
		"This mermaid diagram failed to parse with error: %s\n\nDiagram:\n%s\n\nReturn only the corrected mermaid diagram body, no fences, no commentary.",
		parseErr, diagram,
	)
	repaired, err := client.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		p.log.Sugar().Warnw("mermaid repair pass failed, keeping original diagram", "err", err)
		return diagram
	}
	return repaired
}
