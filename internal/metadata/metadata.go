// Package metadata stores per-address display metadata (name and usage
// timestamps) in an external, eventually consistent collaborator. Nothing in
// here is authoritative: callers treat every failure as "no metadata".
package metadata

import (
	"context"
	"time"
)

// Account is the metadata document kept for one wallet address.
type Account struct {
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed"`
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Name     *string
	LastUsed *time.Time
}

// Apply merges the patch into acct.
func (p Patch) Apply(acct Account) Account {
	if p.Name != nil {
		acct.Name = *p.Name
	}
	if p.LastUsed != nil {
		acct.LastUsed = p.LastUsed.UTC()
	}
	return acct
}

// Collaborator is the address-keyed metadata backend.
type Collaborator interface {
	Get(ctx context.Context, address string) (Account, bool, error)
	Set(ctx context.Context, address string, acct Account) error
	Update(ctx context.Context, address string, patch Patch) error
}

// mergeUpdate implements Update for backends that only offer get and set.
func mergeUpdate(ctx context.Context, c Collaborator, address string, patch Patch) error {
	acct, ok, err := c.Get(ctx, address)
	if err != nil {
		return err
	}
	if !ok {
		acct = Account{Address: address, CreatedAt: time.Now().UTC()}
	}
	return c.Set(ctx, address, patch.Apply(acct))
}
