package checks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartekus/commitgate/internal/check"
	"github.com/bartekus/commitgate/internal/git"
	"github.com/bartekus/commitgate/internal/git/gittest"
)

// history builds a linear chain old..new on the backend and returns the
// list of pushed commits, the ones after historyLen.
func contributorHistory(t *testing.T, backend *gittest.Backend, idents []string, historyLen int) *git.CommitList {
	t.Helper()
	var commits []*git.Commit
	previous := ""
	for i, ident := range idents {
		var parents []string
		if previous != "" {
			parents = []string{previous}
		}
		id := backend.Add(commitID(i), gittest.FakeCommit{
			Parents:   parents,
			Author:    ident,
			Committer: ident,
			Message:   "Change something",
		})
		if i >= historyLen {
			commits = append(commits, git.NewCommit(backend, id))
		}
		previous = id
	}
	return git.NewCommitList("refs/heads/main", commits)
}

func TestContributorsSameEmailDifferentName(t *testing.T) {
	backend := gittest.NewBackend()
	list := contributorHistory(t, backend, []string{
		gittest.Ident("Alice Dev", "alice@example.com", 1000),
		gittest.Ident("Bob Impostor", "alice@example.com", 2000),
	}, 1)

	c := prepareOn(t, &CheckContributors{}, list)
	problems := collectProblems(t, c)

	require.NotEmpty(t, problems)
	assert.Equal(t, check.SeverityError, problems[0].Severity)
	assert.Contains(t, problems[0].Message, `different name "Bob Impostor" than "Alice Dev"`)
}

func TestContributorsNewDomain(t *testing.T) {
	backend := gittest.NewBackend()
	list := contributorHistory(t, backend, []string{
		gittest.Ident("Alice Dev", "alice@example.com", 1000),
		gittest.Ident("Carol New", "carol@elsewhere.org", 2000),
	}, 1)

	c := prepareOn(t, &CheckContributors{}, list)
	problems := collectProblems(t, c)

	require.Len(t, problems, 1)
	assert.Equal(t, check.SeverityNotice, problems[0].Severity)
	assert.Contains(t, problems[0].Message, `new domain "elsewhere.org"`)
}

func TestContributorsSameNameDifferentEmail(t *testing.T) {
	backend := gittest.NewBackend()
	list := contributorHistory(t, backend, []string{
		gittest.Ident("Alice Dev", "alice@example.com", 1000),
		gittest.Ident("Alice Dev", "alice.dev@example.com", 2000),
	}, 1)

	c := prepareOn(t, &CheckContributors{}, list)
	problems := collectProblems(t, c)

	require.Len(t, problems, 1)
	assert.Equal(t, check.SeverityError, problems[0].Severity)
	assert.Contains(t, problems[0].Message, `different email address "alice.dev@example.com"`)
}

func TestContributorsConsistentHistory(t *testing.T) {
	backend := gittest.NewBackend()
	list := contributorHistory(t, backend, []string{
		gittest.Ident("Alice Dev", "alice@example.com", 1000),
		gittest.Ident("Alice Dev", "alice@example.com", 2000),
		gittest.Ident("Alice Dev", "alice@example.com", 3000),
	}, 1)

	c := prepareOn(t, &CheckContributors{}, list)
	assert.Empty(t, collectProblems(t, c))
}

func TestContributorsAnomalyReportedOncePerPush(t *testing.T) {
	backend := gittest.NewBackend()
	list := contributorHistory(t, backend, []string{
		gittest.Ident("Alice Dev", "alice@example.com", 1000),
		gittest.Ident("Bob Impostor", "alice@example.com", 2000),
		gittest.Ident("Bob Impostor", "alice@example.com", 3000),
	}, 1)

	c := prepareOn(t, &CheckContributors{}, list)
	problems := collectProblems(t, c)

	// The second pushed commit reuses the already complained-about
	// identity; the override after the first report keeps it quiet.
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Message, "different name")
}

func TestContributorsEmptyHistory(t *testing.T) {
	backend := gittest.NewBackend()
	list := contributorHistory(t, backend, []string{
		gittest.Ident("Alice Dev", "alice@example.com", 1000),
	}, 0)

	c := prepareOn(t, &CheckContributors{}, list)
	problems := collectProblems(t, c)

	// The very first commit of a repository has no history to compare
	// against; its own domain is unknown, which is only a notice.
	require.Len(t, problems, 1)
	assert.Equal(t, check.SeverityNotice, problems[0].Severity)
}
