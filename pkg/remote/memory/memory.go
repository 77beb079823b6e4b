// Package memory implements remote.Source over an in-process tree. It backs
// the engine's tests and supports pagination, fault injection and call
// counting.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/sidkik/drivesync/pkg/errors"
	"github.com/sidkik/drivesync/pkg/remote"
)

// The method names accepted by Fail and Calls.
const (
	MethodList     = "ListChildren"
	MethodMetadata = "GetMetadata"
	MethodContent  = "OpenContent"
	MethodExport   = "OpenExport"
)

// ErrNotFound is returned for ids that aren't in the tree.
var ErrNotFound = errors.New("entry not found")

type node struct {
	entry    remote.Entry
	content  []byte
	exports  map[string][]byte
	children []string
}

type interruption struct {
	after int
	err   error
}

// Tree is a mutable in-memory remote.Source. It is safe for concurrent use.
type Tree struct {
	// PageSize limits the number of entries per listing page. Zero means
	// everything is returned in one page.
	PageSize int

	lock          sync.Mutex
	nodes         map[string]*node
	faults        map[string][]error
	interruptions map[string][]interruption
	calls         map[string]int
}

// New creates a tree containing an empty root folder with the given id.
func New(rootID string) *Tree {
	return &Tree{
		nodes: map[string]*node{
			rootID: {entry: remote.Entry{ID: rootID, Name: rootID, Kind: remote.KindFolder}},
		},
		faults:        map[string][]error{},
		interruptions: map[string][]interruption{},
		calls:         map[string]int{},
	}
}

// AddFolder adds an empty folder under `parentID`.
func (t *Tree) AddFolder(parentID, id, name string) {
	t.add(parentID, &node{entry: remote.Entry{
		ID:       id,
		Name:     name,
		Kind:     remote.KindFolder,
		MimeType: "application/vnd.google-apps.folder",
	}})
}

// AddFile adds a regular file under `parentID`.
func (t *Tree) AddFile(parentID, id, name string, content []byte, modified time.Time) {
	t.add(parentID, &node{
		entry: remote.Entry{
			ID:           id,
			Name:         name,
			Kind:         remote.KindFile,
			MimeType:     "application/octet-stream",
			Size:         uint64(len(content)),
			ModifiedTime: modified,
		},
		content: content,
	})
}

// AddComposite adds a composite entry that can only be exported. `exports`
// maps each supported target MIME type to its rendering.
func (t *Tree) AddComposite(parentID, id, name, mimeType string,
	exports map[string][]byte, modified time.Time) {

	t.add(parentID, &node{
		entry: remote.Entry{
			ID:           id,
			Name:         name,
			Kind:         remote.KindFile,
			MimeType:     mimeType,
			Composite:    true,
			ModifiedTime: modified,
		},
		exports: exports,
	})
}

func (t *Tree) add(parentID string, n *node) {
	t.lock.Lock()
	defer t.lock.Unlock()

	parent, ok := t.nodes[parentID]
	if !ok {
		panic(fmt.Sprintf("memory: unknown parent %q", parentID))
	}
	parent.children = append(parent.children, n.entry.ID)
	t.nodes[n.entry.ID] = n
}

// Update replaces the content and modification time of an existing file.
func (t *Tree) Update(id string, content []byte, modified time.Time) {
	t.lock.Lock()
	defer t.lock.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		panic(fmt.Sprintf("memory: unknown entry %q", id))
	}
	n.content = content
	n.entry.Size = uint64(len(content))
	n.entry.ModifiedTime = modified
}

// Fail queues errors to be returned by the next calls of `method` for `id`.
// Each queued error is consumed by one call.
func (t *Tree) Fail(method, id string, errs ...error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	key := faultKey(method, id)
	t.faults[key] = append(t.faults[key], errs...)
}

// Interrupt makes the next content or export stream for `id` fail with `err`
// after `after` bytes have been read.
func (t *Tree) Interrupt(id string, after int, err error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.interruptions[id] = append(t.interruptions[id], interruption{after, err})
}

// Calls returns how many times `method` has been called.
func (t *Tree) Calls(method string) int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.calls[method]
}

// ListChildren implements remote.Source. Page tokens are offsets into the
// folder's children.
func (t *Tree) ListChildren(_ context.Context, folderID, pageToken string) (
	[]remote.Entry, string, error) {

	t.lock.Lock()
	defer t.lock.Unlock()

	if err := t.enter(MethodList, folderID); err != nil {
		return nil, "", err
	}

	folder, ok := t.nodes[folderID]
	if !ok || folder.entry.Kind != remote.KindFolder {
		return nil, "", errors.WithContext(ErrNotFound, folderID)
	}

	start := 0
	if pageToken != "" {
		var err error
		start, err = strconv.Atoi(pageToken)
		if err != nil || start < 0 || start > len(folder.children) {
			return nil, "", fmt.Errorf("invalid page token %q", pageToken)
		}
	}

	end := len(folder.children)
	if t.PageSize > 0 && start+t.PageSize < end {
		end = start + t.PageSize
	}

	var entries []remote.Entry
	for _, id := range folder.children[start:end] {
		entries = append(entries, t.nodes[id].entry)
	}

	var next string
	if end < len(folder.children) {
		next = strconv.Itoa(end)
	}
	return entries, next, nil
}

// GetMetadata implements remote.Source.
func (t *Tree) GetMetadata(_ context.Context, id string) (remote.Metadata, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if err := t.enter(MethodMetadata, id); err != nil {
		return remote.Metadata{}, err
	}

	n, ok := t.nodes[id]
	if !ok {
		return remote.Metadata{}, errors.WithContext(ErrNotFound, id)
	}
	return remote.Metadata{
		MimeType:     n.entry.MimeType,
		Kind:         n.entry.Kind,
		Composite:    n.entry.Composite,
		Size:         n.entry.Size,
		ModifiedTime: n.entry.ModifiedTime,
	}, nil
}

// OpenContent implements remote.Source.
func (t *Tree) OpenContent(_ context.Context, id string) (io.ReadCloser, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if err := t.enter(MethodContent, id); err != nil {
		return nil, err
	}

	n, ok := t.nodes[id]
	if !ok {
		return nil, errors.WithContext(ErrNotFound, id)
	}
	if n.entry.Composite || n.entry.Kind == remote.KindFolder {
		return nil, errors.WithContext(errors.ErrUnsupportedKind, id)
	}
	return t.stream(id, n.content), nil
}

// OpenExport implements remote.Source.
func (t *Tree) OpenExport(_ context.Context, id, mimeType string) (io.ReadCloser, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if err := t.enter(MethodExport, id); err != nil {
		return nil, err
	}

	n, ok := t.nodes[id]
	if !ok {
		return nil, errors.WithContext(ErrNotFound, id)
	}
	content, ok := n.exports[mimeType]
	if !ok {
		return nil, errors.WithContext(errors.ErrUnsupportedKind,
			fmt.Sprintf("export %s as %s", id, mimeType))
	}
	return t.stream(id, content), nil
}

// enter records the call and pops the next queued fault. The lock must be
// held.
func (t *Tree) enter(method, id string) error {
	t.calls[method]++

	key := faultKey(method, id)
	queued := t.faults[key]
	if len(queued) == 0 {
		return nil
	}
	t.faults[key] = queued[1:]
	return queued[0]
}

func (t *Tree) stream(id string, content []byte) io.ReadCloser {
	copied := append([]byte(nil), content...)
	queued := t.interruptions[id]
	if len(queued) == 0 {
		return io.NopCloser(bytes.NewReader(copied))
	}
	t.interruptions[id] = queued[1:]

	intr := queued[0]
	if intr.after > len(copied) {
		intr.after = len(copied)
	}
	return io.NopCloser(io.MultiReader(
		bytes.NewReader(copied[:intr.after]),
		errReader{intr.err},
	))
}

type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) {
	return 0, r.err
}

func faultKey(method, id string) string {
	return method + "/" + id
}
