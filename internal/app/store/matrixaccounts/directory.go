// internal/app/store/matrixaccounts/directory.go
package matrixaccountstore

import (
	"context"
	"errors"

	privilegesstore "github.com/mkn8rn/mk8.identity/internal/app/store/privileges"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Directory resolves a membership to its Matrix accounts through the
// privileges record that owns them. The lifecycle service consults it when
// deciding whether a deactivated member still has enabled accounts.
type Directory struct {
	accounts   *Store
	privileges *privilegesstore.Store
}

func NewDirectory(accounts *Store, privileges *privilegesstore.Store) *Directory {
	return &Directory{accounts: accounts, privileges: privileges}
}

// ListEnabledForMembership returns the member's enabled Matrix accounts.
// A member without a privileges record has no accounts.
func (d *Directory) ListEnabledForMembership(ctx context.Context, membershipID primitive.ObjectID) ([]models.MatrixAccount, error) {
	p, err := d.privileges.GetByMembership(ctx, membershipID)
	if err != nil {
		if errors.Is(err, privilegesstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return d.accounts.ListEnabledByPrivileges(ctx, p.ID)
}

// ListForMembership returns all of the member's Matrix accounts, enabled or
// not.
func (d *Directory) ListForMembership(ctx context.Context, membershipID primitive.ObjectID) ([]models.MatrixAccount, error) {
	p, err := d.privileges.GetByMembership(ctx, membershipID)
	if err != nil {
		if errors.Is(err, privilegesstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return d.accounts.ListByPrivileges(ctx, p.ID)
}
