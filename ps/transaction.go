package ps

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v6/plumbing/object"
)

// Transaction identifies the commit a write batch produced.
type Transaction struct {
	Id     string
	When   time.Time
	Author string // "Name <email>" format
}

func (transaction Transaction) String() string {
	return fmt.Sprintf("Transaction{Id: %s, When: %s, Author: %s}", transaction.Id, transaction.When, transaction.Author)
}

// LatestTransaction describes the HEAD commit, or returns the zero value
// for an empty repository.
func (persistence *Persistence) LatestTransaction() Transaction {
	if !persistence.IsInitialized() {
		return Transaction{}
	}
	headRef, err := persistence.repo.Head()
	if err != nil || headRef == nil {
		// No commits yet
		return Transaction{}
	}

	commit, err := persistence.repo.CommitObject(headRef.Hash())
	if err != nil {
		return Transaction{}
	}

	return Transaction{
		Id:     headRef.Hash().String(),
		When:   commit.Committer.When,
		Author: author(commit),
	}
}

func author(c *object.Commit) string {
	if c.Author.Name == "" && c.Author.Email == "" {
		return ""
	}
	return fmt.Sprintf("%s <%s>", c.Author.Name, c.Author.Email)
}
