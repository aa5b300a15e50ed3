// Package history keeps every persisted block array of a policy as a commit
// in a per-policy git repository.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"policyforge/api/internal/block"
)

const (
	blocksFile = "blocks.json"
	mainBranch = "main"
)

var ErrNotFound = errors.New("revision not found")

var policyIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type Commit struct {
	Hash      string    `json:"hash"`
	ShortHash string    `json:"shortHash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	author  string
	now     func() time.Time
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		author:  "policyforge",
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Record commits blocks as the newest revision of policyID. Recording an
// unchanged array returns the current head without a new commit.
func (s *Service) Record(policyID string, blocks []block.Block, message string) (Commit, error) {
	if !policyIDPattern.MatchString(policyID) {
		return Commit{}, fmt.Errorf("invalid policy id %q", policyID)
	}
	lock := s.policyLock(policyID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(policyID)
	if err != nil {
		return Commit{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Commit{}, fmt.Errorf("open worktree: %w", err)
	}

	if blocks == nil {
		blocks = []block.Block{}
	}
	payload, err := json.MarshalIndent(block.Sorted(blocks), "", "  ")
	if err != nil {
		return Commit{}, fmt.Errorf("marshal blocks: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), blocksFile), append(payload, '\n'), 0o644); err != nil {
		return Commit{}, fmt.Errorf("write %s: %w", blocksFile, err)
	}
	if _, err := worktree.Add(blocksFile); err != nil {
		return Commit{}, fmt.Errorf("git add blocks: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  s.author,
			Email: s.author + "@localhost",
			When:  s.now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		head, headErr := repo.Head()
		if headErr != nil {
			return Commit{}, fmt.Errorf("read head: %w", headErr)
		}
		hash = head.Hash()
	} else if err != nil {
		return Commit{}, fmt.Errorf("commit blocks: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj), nil
}

// Log lists up to limit revisions of policyID, newest first. A policy
// without a repository has no revisions.
func (s *Service) Log(policyID string, limit int) ([]Commit, error) {
	if !policyIDPattern.MatchString(policyID) {
		return []Commit{}, nil
	}
	lock := s.policyLock(policyID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(policyID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	commits := make([]Commit, 0)
	err = iter.ForEach(func(c *object.Commit) error {
		commits = append(commits, toCommit(c))
		if limit > 0 && len(commits) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return commits, nil
}

// At returns the block array recorded at rev, a full or abbreviated hash.
func (s *Service) At(policyID, rev string) ([]block.Block, Commit, error) {
	if !policyIDPattern.MatchString(policyID) {
		return nil, Commit{}, ErrNotFound
	}
	lock := s.policyLock(policyID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(policyID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, Commit{}, ErrNotFound
	}
	if err != nil {
		return nil, Commit{}, fmt.Errorf("open repo: %w", err)
	}

	hash, err := resolveHash(repo, rev)
	if err != nil {
		return nil, Commit{}, err
	}
	commitObj, err := repo.CommitObject(hash)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, Commit{}, ErrNotFound
	}
	if err != nil {
		return nil, Commit{}, fmt.Errorf("read commit %s: %w", rev, err)
	}

	blocks, err := readBlocks(commitObj)
	if err != nil {
		return nil, Commit{}, err
	}
	return blocks, toCommit(commitObj), nil
}

func (s *Service) openOrInit(policyID string) (*git.Repository, error) {
	path := s.repoPath(policyID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", mainBranch, err)
	}
	return repo, nil
}

func (s *Service) repoPath(policyID string) string {
	return filepath.Join(s.baseDir, policyID)
}

func (s *Service) policyLock(policyID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[policyID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[policyID] = lock
	return lock
}

func readBlocks(commitObj *object.Commit) ([]block.Block, error) {
	file, err := commitObj.File(blocksFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", blocksFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open blocks reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read blocks: %w", err)
	}
	blocks, err := block.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode commit blocks: %w", err)
	}
	return block.Sorted(blocks), nil
}

func toCommit(c *object.Commit) Commit {
	hash := c.Hash.String()
	return Commit{
		Hash:      hash,
		ShortHash: hash[:7],
		Message:   c.Message,
		Author:    c.Author.Name,
		CreatedAt: c.Author.When,
	}
}

var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]{4,40}$`)

func resolveHash(repo *git.Repository, rev string) (plumbing.Hash, error) {
	if !hexPattern.MatchString(rev) {
		return plumbing.ZeroHash, ErrNotFound
	}
	if len(rev) == 40 {
		return plumbing.NewHash(rev), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, ErrNotFound
	}
	return *resolved, nil
}
