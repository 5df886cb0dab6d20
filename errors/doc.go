/*
Package errors provides semantic error types for the batchstore library.

The package defines the error taxonomy used by the batch operations with
specific types that can be checked using the standard errors.Is() function
or the provided helper functions.

Common Errors:

	var (
	    ErrInvalidArgument = errors.New("invalid argument")
	    ErrUniqueViolation = errors.New("unique constraint violation")
	    ErrNotFound        = errors.New("not found")
	    ErrTransient       = errors.New("transient storage error")
	    ErrNotConfigured   = errors.New("batchstore not configured")
	    ErrNoModelInfo     = errors.New("no model info registered")
	)

Usage:

	count, err := engine.CreateMany(ctx, "User", records)
	if err != nil {
	    if errors.IsUniqueViolation(err) {
	        // Collision outside the skip-duplicates retry path
	    }
	    return err
	}

Classification:

Storage adapters surface provider-native error codes through CodedError so
the orchestrator can branch on a closed Kind set instead of matching on
message text:

	kind := errors.Classify("postgres", err)
	if kind == errors.KindUniqueViolation {
	    // retry the chunk with skip-duplicates
	}

Providers lacking structured codes fall back to the substring table
("unique constraint", "duplicate key", "UNIQUE constraint", ...).
*/
package errors
