package tasks

import (
	"context"
	"fmt"
)

// Publisher publishes a directory to the hosting branch and returns the
// published commit.
type Publisher interface {
	Publish(ctx context.Context, dir string) (string, error)
}

// Deploy publishes the output tree. Errors are returned as failures and never
// retried.
func (e *Env) Deploy(ctx context.Context) Result {
	if e.Publisher == nil {
		return Failed(NameDeploy, nil, fmt.Errorf("no publisher configured"))
	}

	root := e.Paths.OutputRoot()
	commit, err := e.Publisher.Publish(ctx, e.abs(root))
	if err != nil {
		return Failed(NameDeploy, nil, fmt.Errorf("publishing %s: %w", root, err))
	}
	return Succeeded(NameDeploy, []string{commit})
}
