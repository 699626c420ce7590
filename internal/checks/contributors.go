package checks

import (
	"context"
	"fmt"
	"iter"

	"github.com/bartekus/commitgate/internal/check"
	"github.com/bartekus/commitgate/internal/git"
)

// CheckContributors validates that committer and author identities stay
// consistent with the repository history. Committing with varying
// combinations of names and email addresses ruins any statistics made
// from the history, so we index past contributors and cross-check the
// pushed commits against them. The name is combined with the email
// domain rather than the full address, because some systems commit on
// behalf of a user under a different address.
//
// The index is filled on demand: history is walked backwards only as
// far as needed to answer the lookup at hand.
type CheckContributors struct {
	check.Base
	list *git.CommitList

	emails  map[string]git.Contributor
	domains map[string]bool
	names   map[nameDomain]git.Contributor

	worklist []*git.Commit
	visited  map[string]bool
	seeded   bool
}

type nameDomain struct {
	name   string
	domain string
}

func (c *CheckContributors) String() string {
	return scopedName("CheckContributors", c.list)
}

func (c *CheckContributors) Prepare(_ context.Context, scope any) (check.Check, error) {
	list, ok := scope.(*git.CommitList)
	if !ok {
		return c, nil
	}
	clone := *c
	clone.list = list
	clone.emails = map[string]git.Contributor{}
	clone.domains = map[string]bool{}
	clone.names = map[nameDomain]git.Contributor{}
	clone.visited = map[string]bool{}
	clone.SetState(check.StateReady)
	return &clone, nil
}

func (c *CheckContributors) Problems(ctx context.Context) iter.Seq2[check.Problem, error] {
	return func(yield func(check.Problem, error) bool) {
		if err := c.seed(ctx); err != nil {
			yield(check.Problem{}, err)
			return
		}
		for _, commit := range c.list.Commits {
			contributors, err := commit.Contributors(ctx)
			if err != nil {
				yield(check.Problem{}, err)
				return
			}
			for _, contributor := range contributors {
				if !c.checkContributor(ctx, contributor, commit, yield) {
					return
				}
			}
		}
	}
}

// seed fills the worklist with the parents of the pushed commits. The
// pushed commits themselves are marked visited so the traversal only
// indexes existing history.
func (c *CheckContributors) seed(ctx context.Context) error {
	if c.seeded {
		return nil
	}
	c.seeded = true
	for _, commit := range c.list.Commits {
		c.visited[commit.ID] = true
	}
	for _, commit := range c.list.Commits {
		parents, err := commit.Parents(ctx)
		if err != nil {
			return err
		}
		c.enqueue(parents)
	}
	return nil
}

func (c *CheckContributors) enqueue(parents []*git.Commit) {
	for _, parent := range parents {
		if c.visited[parent.ID] {
			continue
		}
		c.visited[parent.ID] = true
		c.worklist = append(c.worklist, parent)
	}
}

// indexUntil walks history backwards, indexing contributors, until the
// predicate holds or history is exhausted. Indexing never overrides:
// the entry closest to the push wins.
func (c *CheckContributors) indexUntil(ctx context.Context, found func() bool) error {
	for !found() && len(c.worklist) > 0 {
		commit := c.worklist[0]
		c.worklist = c.worklist[1:]

		contributors, err := commit.Contributors(ctx)
		if err != nil {
			return err
		}
		for _, contributor := range contributors {
			c.record(contributor, false)
		}
		parents, err := commit.Parents(ctx)
		if err != nil {
			return err
		}
		c.enqueue(parents)
	}
	return nil
}

func (c *CheckContributors) record(contributor git.Contributor, override bool) {
	domain := contributor.EmailDomain()
	if _, exists := c.emails[contributor.Email]; override || !exists {
		c.emails[contributor.Email] = contributor
	}
	c.domains[domain] = true
	key := nameDomain{contributor.Name, domain}
	if _, exists := c.names[key]; override || !exists {
		c.names[key] = contributor
	}
}

func (c *CheckContributors) checkContributor(ctx context.Context, contributor git.Contributor, commit *git.Commit, yield func(check.Problem, error) bool) bool {
	fail := func(err error) bool {
		yield(check.Problem{}, err)
		return false
	}

	if err := c.indexUntil(ctx, func() bool {
		_, ok := c.emails[contributor.Email]
		return ok
	}); err != nil {
		return fail(err)
	}
	if other, ok := c.emails[contributor.Email]; ok && other.Name != contributor.Name {
		if !yield(check.Problem{
			Severity: check.SeverityError,
			Message: fmt.Sprintf(
				"contributor of commit %s has a different name %q than %q of the contributor with the same email address",
				commit, contributor.Name, other.Name,
			),
		}, nil) {
			return false
		}
	}

	domain := contributor.EmailDomain()
	if err := c.indexUntil(ctx, func() bool {
		return c.domains[domain]
	}); err != nil {
		return fail(err)
	}
	if !c.domains[domain] {
		if !yield(check.Problem{
			Severity: check.SeverityNotice,
			Message: fmt.Sprintf(
				"contributor of commit %s has an email address with a new domain %q",
				commit, domain,
			),
		}, nil) {
			return false
		}
	}

	key := nameDomain{contributor.Name, domain}
	if err := c.indexUntil(ctx, func() bool {
		_, ok := c.names[key]
		return ok
	}); err != nil {
		return fail(err)
	}
	if other, ok := c.names[key]; ok && other.Email != contributor.Email {
		if !yield(check.Problem{
			Severity: check.SeverityError,
			Message: fmt.Sprintf(
				"contributor of commit %s has a different email address %q with the same domain as %q of the contributor with the same name",
				commit, contributor.Email, other.Email,
			),
		}, nil) {
			return false
		}
	}

	// Re-record the observed identity, overriding any mismatching
	// historical entry, so the same anomaly is reported only once per
	// push.
	c.record(contributor, true)
	return true
}
