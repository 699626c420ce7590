package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// NullCommitID is the all-zero identifier a ref update carries when the
// ref is being deleted.
const NullCommitID = "0000000000000000000000000000000000000000"

// SoftFailTags are the commit tags granting a soft-fail allowance: an
// external tool's failing exit status is downgraded to advisory for
// commits carrying one of them.
var SoftFailTags = []string{"HOTFIX", "MESS", "TEMP", "WIP"}

// CommitList is the ordered sequence of commits a ref update introduces,
// in push order.
type CommitList struct {
	Ref     string
	Commits []*Commit
}

func NewCommitList(ref string, commits []*Commit) *CommitList {
	return &CommitList{Ref: ref, Commits: commits}
}

// BranchName is the ref name without its refs/heads or refs/tags prefix.
func (l *CommitList) BranchName() string {
	parts := strings.SplitN(l.Ref, "/", 3)
	return parts[len(parts)-1]
}

// Contains matches by commit identifier.
func (l *CommitList) Contains(commit *Commit) bool {
	for _, c := range l.Commits {
		if c.ID == commit.ID {
			return true
		}
	}
	return false
}

func (l *CommitList) Append(commit *Commit) {
	l.Commits = append(l.Commits, commit)
}

func (l *CommitList) String() string {
	name := ""
	if len(l.Commits) > 0 {
		name = fmt.Sprintf("%s..%s", l.Commits[0], l.Commits[len(l.Commits)-1])
	}
	if l.Ref != "" {
		name += fmt.Sprintf(" (%s)", l.Ref)
	}
	return strings.TrimSpace(name)
}

// Contributor is the author or committer identity of a commit.
type Contributor struct {
	Name      string
	Email     string
	Timestamp int64
}

// EmailDomain is the part of the email address after the @ sign.
func (c Contributor) EmailDomain() string {
	if _, domain, found := strings.Cut(c.Email, "@"); found {
		return domain
	}
	return c.Email
}

func parseContributor(line string) (Contributor, error) {
	name, rest, found := strings.Cut(line, " <")
	if !found {
		return Contributor{}, fmt.Errorf("malformed contributor %q", line)
	}
	email, rest, found := strings.Cut(rest, "> ")
	if !found {
		return Contributor{}, fmt.Errorf("malformed contributor %q", line)
	}
	timestampField, _, _ := strings.Cut(rest, " ")
	timestamp, err := strconv.ParseInt(timestampField, 10, 64)
	if err != nil {
		return Contributor{}, fmt.Errorf("malformed contributor timestamp %q: %w", line, err)
	}
	return Contributor{Name: name, Email: email, Timestamp: timestamp}, nil
}

// Commit is a single commit. Its metadata is fetched from the backend
// lazily and at most once.
type Commit struct {
	ID      string
	backend Backend

	fetched      bool
	parents      []*Commit
	author       Contributor
	committer    Contributor
	messageLines []string

	changedFiles []*CommittedFile
	filesFetched bool
}

func NewCommit(backend Backend, id string) *Commit {
	return &Commit{ID: id, backend: backend}
}

func (c *Commit) String() string {
	if len(c.ID) > 8 {
		return c.ID[:8]
	}
	return c.ID
}

// Zero reports whether the commit denotes a ref deletion.
func (c *Commit) Zero() bool { return c.ID == NullCommitID }

func (c *Commit) fetchContent(ctx context.Context) error {
	if c.fetched {
		return nil
	}
	content, err := c.backend.CommitContent(ctx, c.ID)
	if err != nil {
		return err
	}

	lines := strings.Split(string(content), "\n")
	index := 0
	for ; index < len(lines); index++ {
		line := lines[index]
		if line == "" {
			index++
			break
		}
		switch {
		case strings.HasPrefix(line, "parent "):
			c.parents = append(c.parents, NewCommit(c.backend, strings.TrimSpace(line[len("parent "):])))
		case strings.HasPrefix(line, "author "):
			if c.author, err = parseContributor(line[len("author "):]); err != nil {
				return err
			}
		case strings.HasPrefix(line, "committer "):
			if c.committer, err = parseContributor(line[len("committer "):]); err != nil {
				return err
			}
		}
	}
	c.messageLines = lines[index:]
	if n := len(c.messageLines); n > 0 && c.messageLines[n-1] == "" {
		c.messageLines = c.messageLines[:n-1]
	}
	c.fetched = true
	return nil
}

func (c *Commit) Parents(ctx context.Context) ([]*Commit, error) {
	if err := c.fetchContent(ctx); err != nil {
		return nil, err
	}
	return c.parents, nil
}

func (c *Commit) Author(ctx context.Context) (Contributor, error) {
	if err := c.fetchContent(ctx); err != nil {
		return Contributor{}, err
	}
	return c.author, nil
}

func (c *Commit) Committer(ctx context.Context) (Contributor, error) {
	if err := c.fetchContent(ctx); err != nil {
		return Contributor{}, err
	}
	return c.committer, nil
}

// Contributors returns the author and the committer, in that order.
func (c *Commit) Contributors(ctx context.Context) ([]Contributor, error) {
	if err := c.fetchContent(ctx); err != nil {
		return nil, err
	}
	return []Contributor{c.author, c.committer}, nil
}

func (c *Commit) MessageLines(ctx context.Context) ([]string, error) {
	if err := c.fetchContent(ctx); err != nil {
		return nil, err
	}
	return c.messageLines, nil
}

// Summary is the first message line, empty for an empty message.
func (c *Commit) Summary(ctx context.Context) (string, error) {
	lines, err := c.MessageLines(ctx)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", nil
	}
	return lines[0], nil
}

// ParseTags splits leading [TAG] markers off the summary, returning the
// tags and the remainder.
func (c *Commit) ParseTags(ctx context.Context) ([]string, string, error) {
	rest, err := c.Summary(ctx)
	if err != nil {
		return nil, "", err
	}
	var tags []string
	for strings.HasPrefix(rest, "[") && strings.Contains(rest, "]") {
		end := strings.Index(rest, "]")
		tags = append(tags, rest[1:end])
		rest = rest[end+1:]
	}
	return tags, rest, nil
}

// CanSoftFail reports whether the commit's tags grant the soft-fail
// allowance for external tools.
func (c *Commit) CanSoftFail(ctx context.Context) (bool, error) {
	tags, _, err := c.ParseTags(ctx)
	if err != nil {
		return false, err
	}
	for _, tag := range tags {
		for _, soft := range SoftFailTags {
			if tag == soft {
				return true, nil
			}
		}
	}
	return false, nil
}

// ChangedFiles lists the files added or modified by the commit, in diff
// order, computed at most once.
func (c *Commit) ChangedFiles(ctx context.Context) ([]*CommittedFile, error) {
	if c.filesFetched {
		return c.changedFiles, nil
	}
	changes, err := c.backend.ChangedFiles(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	files := make([]*CommittedFile, 0, len(changes))
	for _, change := range changes {
		files = append(files, NewCommittedFile(c, change.Path, change.Mode))
	}
	c.changedFiles = files
	c.filesFetched = true
	return files, nil
}
