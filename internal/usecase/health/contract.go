package health

import "context"

// DBPinger checks cache store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// CredentialChecker checks that a session token can be resolved.
type CredentialChecker interface {
	HealthCheck(ctx context.Context) error
}
