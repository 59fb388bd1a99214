package persistence

import "errors"

// ErrNoTransaction is returned by Commit or Rollback when the context carries no transaction.
var ErrNoTransaction = errors.New("no transaction in context")
