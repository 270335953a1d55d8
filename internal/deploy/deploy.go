// Package deploy publishes the output tree to a hosting branch of a git
// remote. Every publish creates one commit whose tree is exactly the output
// tree, on top of the branch's current tip. A missing branch is created as an
// orphan.
package deploy

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/conneroisu/sitegraph/internal/fsutil"
	"github.com/conneroisu/sitegraph/internal/logging"
)

// Options configures where and how the output tree is published.
type Options struct {
	// Remote is a remote name of the project repository or a URL.
	Remote      string
	Branch      string
	Message     string
	AuthorName  string
	AuthorEmail string
	// Token authenticates HTTPS remotes.
	Token string
}

// Publisher pushes the output tree to the hosting branch.
type Publisher struct {
	projectDir string
	opts       Options
	logger     logging.Logger
	now        func() time.Time
}

// New creates a publisher for the project at projectDir.
func New(projectDir string, opts Options, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{
		projectDir: projectDir,
		opts:       opts,
		logger:     logger.WithComponent("deploy"),
		now:        time.Now,
	}
}

// Publish commits the contents of dir to the hosting branch and pushes it.
// It returns the hash of the published commit.
func (p *Publisher) Publish(ctx context.Context, dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("output root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("output root %s is not a directory", dir)
	}

	url, err := p.remoteURL()
	if err != nil {
		return "", err
	}

	work, err := os.MkdirTemp("", "sitegraph-deploy-*")
	if err != nil {
		return "", fmt.Errorf("creating work tree: %w", err)
	}
	defer os.RemoveAll(work)

	repo, err := git.PlainInit(work, false)
	if err != nil {
		return "", fmt.Errorf("initializing work repository: %w", err)
	}
	if _, err := repo.CreateRemote(&ggitcfg.RemoteConfig{Name: "origin", URLs: []string{url}}); err != nil {
		return "", fmt.Errorf("adding remote: %w", err)
	}

	branch := plumbing.NewBranchReferenceName(p.opts.Branch)
	auth := p.auth(url)

	if err := p.checkoutBranch(ctx, repo, branch, auth); err != nil {
		return "", err
	}

	if err := copyTree(dir, work); err != nil {
		return "", err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", err
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("staging output tree: %w", err)
	}

	hash, err := wt.Commit(p.opts.Message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  p.opts.AuthorName,
			Email: p.opts.AuthorEmail,
			When:  p.now(),
		},
	})
	if stderrors.Is(err, git.ErrEmptyCommit) {
		head, headErr := repo.Head()
		if headErr != nil {
			return "", fmt.Errorf("reading branch tip: %w", headErr)
		}
		p.logger.Info(ctx, "Hosting branch already up to date", "branch", p.opts.Branch, "commit", head.Hash().String())
		return head.Hash().String(), nil
	}
	if err != nil {
		return "", fmt.Errorf("committing output tree: %w", err)
	}

	refSpec := ggitcfg.RefSpec(branch.String() + ":" + branch.String())
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []ggitcfg.RefSpec{refSpec},
		Auth:       auth,
	})
	if err != nil && !stderrors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", fmt.Errorf("pushing %s to %s: %w", p.opts.Branch, redact(url), err)
	}

	p.logger.Info(ctx, "Published output tree", "branch", p.opts.Branch, "remote", redact(url), "commit", hash.String())
	return hash.String(), nil
}

// checkoutBranch points HEAD at the hosting branch, fetching its current tip
// when the remote has one. The index is left empty so the next commit's tree
// is exactly what gets staged.
func (p *Publisher) checkoutBranch(ctx context.Context, repo *git.Repository, branch plumbing.ReferenceName, auth transport.AuthMethod) error {
	remoteRef := plumbing.NewRemoteReferenceName("origin", p.opts.Branch)
	spec := ggitcfg.RefSpec("+" + branch.String() + ":" + remoteRef.String())

	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []ggitcfg.RefSpec{spec},
		Auth:       auth,
		Tags:       git.NoTags,
	})

	switch {
	case err == nil, stderrors.Is(err, git.NoErrAlreadyUpToDate):
		ref, err := repo.Reference(remoteRef, true)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", remoteRef, err)
		}
		if err := repo.Storer.SetReference(plumbing.NewHashReference(branch, ref.Hash())); err != nil {
			return err
		}
	case stderrors.Is(err, git.NoMatchingRefSpecError{}), stderrors.Is(err, transport.ErrEmptyRemoteRepository):
		p.logger.Info(ctx, "Creating hosting branch", "branch", p.opts.Branch)
	default:
		return fmt.Errorf("fetching %s: %w", p.opts.Branch, err)
	}

	return repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branch))
}

// remoteURL resolves the configured remote. Anything that looks like a URL
// or path is used as is; a bare name is looked up in the project repository.
func (p *Publisher) remoteURL() (string, error) {
	remote := p.opts.Remote
	if remote == "" {
		remote = "origin"
	}
	if strings.ContainsAny(remote, "/:\\") {
		return remote, nil
	}

	repo, err := git.PlainOpenWithOptions(p.projectDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("opening project repository to resolve remote %q: %w", remote, err)
	}
	r, err := repo.Remote(remote)
	if err != nil {
		return "", fmt.Errorf("resolving remote %q: %w", remote, err)
	}
	urls := r.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("remote %q has no URL", remote)
	}
	return urls[0], nil
}

func (p *Publisher) auth(url string) transport.AuthMethod {
	if p.opts.Token == "" || !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return nil
	}
	return &http.BasicAuth{
		Username: "x-access-token",
		Password: p.opts.Token,
	}
}

// copyTree copies every file under src into dst, skipping git metadata.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if err := fsutil.CopyFile(path, filepath.Join(dst, rel)); err != nil {
			return fmt.Errorf("copying %s: %w", rel, err)
		}
		return nil
	})
}

// redact hides credentials embedded in a remote URL.
func redact(url string) string {
	scheme := strings.Index(url, "://")
	at := strings.LastIndex(url, "@")
	if scheme < 0 || at < scheme {
		return url
	}
	return url[:scheme+3] + "***" + url[at:]
}
