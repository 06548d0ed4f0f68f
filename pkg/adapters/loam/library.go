package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/pkg/domain"
)

// Library reads flow documents from a Loam repository.
type Library struct {
	Repo *loam.TypedRepository[FlowMetadata]
}

// New creates a Library over an existing typed repository.
func New(repo *loam.TypedRepository[FlowMetadata]) *Library {
	return &Library{Repo: repo}
}

// Open initializes a read-only Loam repository at dir.
func Open(dir string) (*Library, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	// The library never writes; read-only also keeps Loam from sandboxing.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[FlowMetadata](repo)), nil
}

// Get returns the document stored under id. The id may omit the file
// extension.
func (l *Library) Get(ctx context.Context, id string) (*Document, error) {
	doc, err := l.Repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loam get failed for %s: %w", id, err)
	}

	meta := doc.Data
	rawID := meta.ID
	if rawID == "" {
		rawID = doc.ID
	}
	meta.ID = trimExtension(rawID)

	return &Document{FlowMetadata: meta, Script: doc.Content}, nil
}

// Load compiles the flow stored under id. The flow is named after the
// document id; opts are applied after that.
func (l *Library) Load(ctx context.Context, id string, opts ...callflow.Option) (*callflow.Flow, domain.Diagnostics, error) {
	doc, err := l.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	base := []callflow.Option{callflow.WithName(doc.ID)}
	if doc.Strict {
		base = append(base, callflow.WithStrict())
	}
	flow, diags, err := callflow.Compile(doc.Script, append(base, opts...)...)
	if err != nil {
		return nil, diags, fmt.Errorf("flow %s: %w", doc.ID, err)
	}
	return flow, diags, nil
}

// List returns the metadata of every flow, ordered by id.
func (l *Library) List(ctx context.Context) ([]FlowMetadata, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	out := make([]FlowMetadata, 0, len(docs))
	for _, doc := range docs {
		meta := doc.Data
		rawID := meta.ID
		if rawID == "" {
			rawID = doc.ID
		}
		id := trimExtension(rawID)

		if existingPath, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", id, existingPath, doc.ID)
		}
		seen[id] = doc.ID

		meta.ID = id
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Watch reports the id of every flow document that changes.
func (l *Library) Watch(ctx context.Context) (<-chan string, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				select {
				case ch <- trimExtension(evt.ID):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
