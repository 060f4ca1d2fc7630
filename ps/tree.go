package ps

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/filemode"
	"github.com/go-git/go-git/v6/plumbing/object"

	"github.com/nickyhof/QueryGate/core"
)

var ErrNoCommits = errors.New("repository has no commits")

// edits maps tree paths to their new blob. A nil blob removes the path.
type edits map[string]*plumbing.Hash

func (p *Persistence) storeBlob(data []byte) (plumbing.Hash, error) {
	obj := p.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("blob writer: %w", err)
	}
	_, err = w.Write(data)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("writing blob: %w", err)
	}
	return p.repo.Storer.SetEncodedObject(obj)
}

// headCommit returns the HEAD commit, or nil for a repository without
// commits.
func (p *Persistence) headCommit() (*object.Commit, error) {
	ref, err := p.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading head: %w", err)
	}
	commit, err := p.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading head commit: %w", err)
	}
	return commit, nil
}

// treeKey orders tree entries the way git does: directories compare as if
// their name ended in a slash.
func treeKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

func (p *Persistence) storeTree(entries []object.TreeEntry) (plumbing.Hash, error) {
	slices.SortFunc(entries, func(a, b object.TreeEntry) int {
		return strings.Compare(treeKey(a), treeKey(b))
	})
	obj := p.repo.Storer.NewEncodedObject()
	if err := (&object.Tree{Entries: entries}).Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encoding tree: %w", err)
	}
	return p.repo.Storer.SetEncodedObject(obj)
}

// editTree applies changes below the tree root and stores every tree it
// touches. Directories left empty are pruned; an empty root yields
// ZeroHash.
func (p *Persistence) editTree(root plumbing.Hash, changes edits) (plumbing.Hash, error) {
	entries := make(map[string]object.TreeEntry)
	if root != plumbing.ZeroHash {
		tree, err := object.GetTree(p.repo.Storer, root)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("reading tree %s: %w", root, err)
		}
		for _, e := range tree.Entries {
			entries[e.Name] = e
		}
	}

	nested := make(map[string]edits)
	for path, blob := range changes {
		if dir, rest, ok := strings.Cut(path, "/"); ok {
			if nested[dir] == nil {
				nested[dir] = make(edits)
			}
			nested[dir][rest] = blob
			continue
		}
		if blob == nil {
			delete(entries, path)
			continue
		}
		entries[path] = object.TreeEntry{Name: path, Mode: filemode.Regular, Hash: *blob}
	}

	for dir, inner := range nested {
		base := plumbing.ZeroHash
		if e, ok := entries[dir]; ok && e.Mode == filemode.Dir {
			base = e.Hash
		}
		sub, err := p.editTree(base, inner)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if sub == plumbing.ZeroHash {
			delete(entries, dir)
			continue
		}
		entries[dir] = object.TreeEntry{Name: dir, Mode: filemode.Dir, Hash: sub}
	}

	if len(entries) == 0 {
		return plumbing.ZeroHash, nil
	}
	return p.storeTree(slices.Collect(maps.Values(entries)))
}

// commit records tree as the new tip of the branch HEAD points at.
func (p *Persistence) commit(tree plumbing.Hash, identity core.Identity, message string) (Transaction, error) {
	if tree == plumbing.ZeroHash {
		empty, err := p.storeTree(nil)
		if err != nil {
			return Transaction{}, err
		}
		tree = empty
	}

	head, err := p.headCommit()
	if err != nil {
		return Transaction{}, err
	}
	var parents []plumbing.Hash
	if head != nil {
		parents = []plumbing.Hash{head.Hash}
	}

	sig := object.Signature{Name: identity.Name, Email: identity.Email, When: time.Now()}
	c := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     tree,
		ParentHashes: parents,
	}
	obj := p.repo.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return Transaction{}, fmt.Errorf("encoding commit: %w", err)
	}
	hash, err := p.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return Transaction{}, fmt.Errorf("storing commit: %w", err)
	}

	branch := plumbing.Master
	if ref, err := p.repo.Storer.Reference(plumbing.HEAD); err == nil && ref.Type() == plumbing.SymbolicReference {
		branch = ref.Target()
	}
	if err := p.repo.Storer.SetReference(plumbing.NewHashReference(branch, hash)); err != nil {
		return Transaction{}, fmt.Errorf("moving %s: %w", branch, err)
	}

	c.Hash = hash
	return Transaction{Id: hash.String(), When: sig.When, Author: author(c)}, nil
}

// readFile returns the content of path in the HEAD tree.
func (p *Persistence) readFile(path string) ([]byte, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}
	head, err := p.headCommit()
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, ErrNoCommits
	}
	tree, err := head.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading tree: %w", err)
	}
	file, err := tree.File(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r, err := file.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (p *Persistence) readBlob(hash plumbing.Hash) ([]byte, error) {
	blob, err := p.repo.BlobObject(hash)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", hash, err)
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", hash, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// recordsTree returns the records directory of the HEAD tree, or nil when
// no record is stored.
func (p *Persistence) recordsTree() (*object.Tree, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}
	head, err := p.headCommit()
	if err != nil || head == nil {
		return nil, err
	}
	tree, err := head.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading tree: %w", err)
	}
	records, err := tree.Tree(RecordsDir)
	if err != nil {
		return nil, nil
	}
	return records, nil
}
