// Package auth verifies the identity a client presents at login.
//
// Two flows exist. Federated clients present an RS256 token issued by the
// authorization service; its signing key is looked up by key ID through a
// [KeyProvider], which caches the service's key set in a [KeyRing] and
// refetches it with a [KeyFetchTask]. Legacy clients present a chain of
// ES384 self-signed tokens, each naming the key that signs the next; a
// [ChainValidator] walks it. Both flows then verify the client data token
// with the client's own key.
//
// Verification runs in [ProcessOpenIDLoginTask] and [ProcessLegacyLoginTask]
// on worker goroutines and reports back an [Outcome]. Failures never cross
// the boundary as errors: they become [Outcome.Error], with a translatable
// player-facing message where one exists (see [DisconnectMessage]).
//
// # OpenTelemetry Integration
//
// Key fetches and verification tasks create spans under the tracer scope
// "github.com/StricklySoft/bedrock-auth/pkg/auth".
package auth
