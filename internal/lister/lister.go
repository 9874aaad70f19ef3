package lister

import (
	"context"
)

// Lister discovers the repositories that belong to an assignment batch
type Lister interface {
	// Principal returns the login of the authenticated principal. It fails with
	// an UNAUTHORIZED error when the credential is invalid or expired.
	Principal(ctx context.Context) (string, error)

	// List returns the names of the repositories in org whose name starts with
	// prefix, in the order the hosting API returned them.
	List(ctx context.Context, org, prefix string) ([]string, error)
}
