package loam

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/loam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/callflow/internal/testutils"
	"github.com/aretw0/callflow/pkg/domain"
)

const welcome = `---
id: welcome
title: Welcome line
description: Greets the caller
intents: [yes, no]
---
Step main
  Speak "Hello " + $name
  Listen 5
  Branch "yes" done
  Default main
Step done
  Exit
`

func newLibrary(t *testing.T, files map[string]string) *Library {
	t.Helper()
	dir, repo := testutils.SetupTestRepo(t)
	testutils.WriteFiles(t, dir, files)
	return New(loam.NewTypedRepository[FlowMetadata](repo))
}

func TestLibrary_Load(t *testing.T) {
	lib := newLibrary(t, map[string]string{"welcome.md": welcome})

	doc, err := lib.Get(context.Background(), "welcome")
	require.NoError(t, err)
	assert.Equal(t, "welcome", doc.ID)
	assert.Equal(t, "Welcome line", doc.Title)
	assert.Equal(t, []string{"yes", "no"}, doc.Intents)
	assert.Contains(t, doc.Script, "Step main")

	flow, diags, err := lib.Load(context.Background(), "welcome")
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, "welcome", flow.Name)
	assert.Equal(t, "main", flow.Graph().Main())
	assert.Equal(t, []string{"name"}, flow.DeclaredVariables())
}

func TestLibrary_StrictDocument(t *testing.T) {
	lib := newLibrary(t, map[string]string{
		"broken.md": "---\nstrict: true\n---\nStep main\n  Listen soon\n",
		"lenient.md": "---\ntitle: Lenient\n---\nStep main\n  Listen soon\n  Exit\n",
	})

	_, diags, err := lib.Load(context.Background(), "broken")
	var compileErr *domain.CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.True(t, diags.HasErrors())

	flow, diags, err := lib.Load(context.Background(), "lenient")
	require.NoError(t, err)
	assert.True(t, diags.HasErrors())
	assert.Equal(t, "lenient", flow.Name)
}

func TestLibrary_LoadMissing(t *testing.T) {
	lib := newLibrary(t, nil)
	_, _, err := lib.Load(context.Background(), "nope")
	assert.Error(t, err)
}

func TestLibrary_List_NormalizesIDs(t *testing.T) {
	lib := newLibrary(t, map[string]string{
		"welcome.md":  welcome,
		"implicit.md": "---\ntitle: Implicit\n---\nStep main\n  Exit\n",
		"billing.md":  "---\nid: billing.md\n---\nStep main\n  Exit\n",
	})

	list, err := lib.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "billing", list[0].ID)
	assert.Equal(t, "implicit", list[1].ID)
	assert.Equal(t, "welcome", list[2].ID)
}

func TestLibrary_List_DetectsCollisions(t *testing.T) {
	lib := newLibrary(t, map[string]string{
		"foo.md":   "---\nid: foo\n---\nStep main\n  Exit\n",
		"foo.yaml": "id: foo\n",
	})

	_, err := lib.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collision detected")
}

func TestLibrary_Watch(t *testing.T) {
	dir, repo := testutils.SetupTestRepo(t)
	testutils.WriteFiles(t, dir, map[string]string{"welcome.md": welcome})
	lib := New(loam.NewTypedRepository[FlowMetadata](repo))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := lib.Watch(ctx)
	require.NoError(t, err)

	// give the watcher a moment to register
	time.Sleep(100 * time.Millisecond)
	testutils.WriteFiles(t, dir, map[string]string{"welcome.md": welcome + "# edited\n"})

	select {
	case id := <-changes:
		assert.Equal(t, "welcome", id)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-changes
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestTrimExtension(t *testing.T) {
	assert.Equal(t, "welcome", trimExtension("welcome.md"))
	assert.Equal(t, "sales/intro", trimExtension("sales/intro.yaml"))
	assert.Equal(t, "plain", trimExtension("plain"))
}
