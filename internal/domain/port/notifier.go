package port

import "context"

// FailureNotice describes a job that ended in the dead-letter queue.
type FailureNotice struct {
	UserEmail string
	JobID     string
	Kind      string
	SourceKey string
	Attempts  int
	Reason    string
}

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, notice FailureNotice) error
}
