// Package types holds the domain types shared across the IsoCrates pipeline:
// analyzer output, partitioner areas, scout reports, the planner's blueprint,
// and the content store's documents/versions/dependencies/jobs.
package types

import "time"

// ModuleInfo is a logical grouping of source files discovered by the
// analyzer. Created once per pipeline run and immutable thereafter.
type ModuleInfo struct {
	Name          string
	TopDir        string
	Files         []FileRef
	TokenEstimate int
	ImportsFrom   map[string]bool
	ImportedBy    map[string]bool
	EntryPoints   []string
	Languages     map[string]int
}

// FileRef is a (relative path, size in bytes) pair.
type FileRef struct {
	Path string
	Size int64
}

// SizeLabel classifies a repository by token estimate.
type SizeLabel string

const (
	SizeSmall  SizeLabel = "small"
	SizeMedium SizeLabel = "medium"
	SizeLarge  SizeLabel = "large"
)

// Analysis is the Repo Analyzer's output.
type Analysis struct {
	FileManifest  []FileRef
	TotalBytes    int64
	TokenEstimate int
	SizeLabel     SizeLabel
	TopDirs       []string
	Modules       map[string]*ModuleInfo
	Crates        []string
}

// DocumentationArea is a frozen partition of modules sized to fit the
// planner's context window.
type DocumentationArea struct {
	Name          string
	ModuleNames   []string
	Files         []FileRef
	TokenEstimate int
}

// ScoutReport is a structured text report produced by one scout worker.
type ScoutReport struct {
	Key     string // e.g. "structure", "api", "module_backend"
	Content string
	Failed  bool
}

// DocumentSpec is one page entry in the planner's Blueprint.
type DocumentSpec struct {
	Type           string // loose taxonomy tag: overview, api, config, ...
	Title          string
	Path           string
	Rationale      string
	Sections       []BlueprintSection
	KeyFiles       []string
	WikilinksOut   []string
	ReplacesTitle  string
}

// BlueprintSection is one heading plus rich-content directives.
type BlueprintSection struct {
	Heading    string
	Directives []string // e.g. "diagram:...", "table:...", "code:..."
}

// Complexity is the planner's size label for a repository.
type Complexity string

const (
	ComplexitySmall  Complexity = "small"
	ComplexityMedium Complexity = "medium"
	ComplexityLarge  Complexity = "large"
)

// Blueprint is the planner's JSON output.
type Blueprint struct {
	RepoSummary string
	Complexity  Complexity
	Documents   []DocumentSpec
}

// AuthorType identifies who produced a Version.
type AuthorType string

const (
	AuthorAI     AuthorType = "ai"
	AuthorHuman  AuthorType = "human"
	AuthorSystem AuthorType = "system"
)

// AuthorMeta is the JSON author-metadata attached to a Version.
type AuthorMeta struct {
	Model          string            `json:"model,omitempty"`
	CommitSHA      string            `json:"commit_sha,omitempty"`
	SourceHashes   map[string]string `json:"source_hashes,omitempty"`
	Trigger        string            `json:"trigger,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	MovedDoc       string            `json:"moved_doc,omitempty"`
}

// Document is the unit stored in the content store.
type Document struct {
	ID          string
	RepoURL     string
	RepoName    string
	DocType     string
	Path        string // first segment is the "crate"
	Title       string
	Content     string
	Preview     string // first 500 chars of Content
	Description string
	Keywords    []string
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
	Embedding   []float32
	EmbedModel  string
}

// Active reports whether the document has not been soft-deleted.
func (d *Document) Active() bool { return d.DeletedAt == nil }

// Crate returns the document's first path segment.
func (d *Document) Crate() string {
	return firstSegment(d.Path)
}

func firstSegment(path string) string {
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return path
}

// DocumentCreate is the upsert payload for the content store.
type DocumentCreate struct {
	RepoURL     string
	RepoName    string
	DocType     string
	Path        string
	Title       string
	Content     string
	Description string
	Keywords    []string
	AuthorType  AuthorType
	AuthorMeta  AuthorMeta
}

// Version is an immutable snapshot of a document.
type Version struct {
	ID          string
	DocID       string
	Content     string
	ContentHash string // sha256 hex
	AuthorType  AuthorType
	AuthorMeta  AuthorMeta
	CreatedAt   time.Time
}

// Dependency is a directed edge in the wikilink graph.
type Dependency struct {
	FromDocID string
	ToDocID   string
	LinkType  string // default "wikilink"
	LinkText  string
	Section   string
}

const WikilinkType = "wikilink"

// JobStatus is the lifecycle state of a GenerationJob.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// GenerationJob is a unit of queued regeneration work.
type GenerationJob struct {
	ID          string
	RepoURL     string
	CommitSHA   string
	Status      JobStatus
	RetryCount  int
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}
