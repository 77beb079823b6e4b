package sync

import (
	"context"
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/drivesync/pkg/errors"
	"github.com/sidkik/drivesync/pkg/remote"
	"github.com/sidkik/drivesync/pkg/retry"
)

// FolderFailure records a folder whose listing failed. Its subtree is
// missing from the walk.
type FolderFailure struct {
	ID      string
	RelPath string
	Err     error
}

// Tree is the result of walking a remote root.
type Tree struct {
	// Items are every folder and file below the root, in walk order. A
	// folder always comes before its children.
	Items []Item

	FailedFolders []FolderFailure
}

// Walker enumerates remote trees.
type Walker struct {
	Source        remote.Source
	Retry         *retry.Executor
	MaxNameLength int
	Log           log.FieldLogger
}

type pendingFolder struct {
	id      string
	relPath string
}

// Walk lists every descendant of `rootID`. Folders are visited depth-first
// from an explicit stack, so arbitrarily deep trees don't grow the goroutine
// stack. Failing to list the root is returned as an error. Failing to list
// any other folder only drops that folder's subtree.
func (w Walker) Walk(ctx context.Context, rootID string) (Tree, error) {
	var tree Tree
	stack := []pendingFolder{{id: rootID}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return tree, errors.WithContext(err, "walk")
		}

		folder := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := w.listAll(ctx, folder.id)
		if err != nil {
			if folder.id == rootID {
				return Tree{}, errors.WithContext(err, fmt.Sprintf("list root %s", rootID))
			}

			w.logger().WithError(err).WithFields(log.Fields{
				"folder": folder.id,
				"path":   folder.relPath,
			}).Error("Failed to list folder. Its contents won't be synced.")
			tree.FailedFolders = append(tree.FailedFolders, FolderFailure{
				ID:      folder.id,
				RelPath: folder.relPath,
				Err:     err,
			})
			continue
		}

		for _, child := range children {
			relPath := filepath.Join(folder.relPath, localName(child, w.MaxNameLength))
			tree.Items = append(tree.Items, Item{Entry: child, RelPath: relPath})
			if child.Kind == remote.KindFolder {
				stack = append(stack, pendingFolder{id: child.ID, relPath: relPath})
			}
		}
	}
	return tree, nil
}

// listAll drains every page of a folder listing. Each page is retried on its
// own so that a transient failure doesn't restart the whole folder.
func (w Walker) listAll(ctx context.Context, folderID string) ([]remote.Entry, error) {
	type page struct {
		entries []remote.Entry
		next    string
	}

	var entries []remote.Entry
	var token string
	for {
		p, err := retry.DoWithResult(ctx, w.Retry, "list "+folderID,
			func(ctx context.Context) (page, error) {
				entries, next, err := w.Source.ListChildren(ctx, folderID, token)
				return page{entries, next}, err
			})
		if err != nil {
			return nil, err
		}

		entries = append(entries, p.entries...)
		if p.next == "" {
			return entries, nil
		}
		token = p.next
	}
}

func (w Walker) logger() log.FieldLogger {
	if w.Log == nil {
		return log.StandardLogger()
	}
	return w.Log
}
