package auth

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ProcessOpenIDLoginTask verifies a federated identity token and the client
// data token bound to it through the cpk claim.
type ProcessOpenIDLoginTask struct {
	validator    ChainValidator
	token        string
	issuer       string
	signingKey   []byte
	clientData   string
	onCompletion func(Outcome)
	tracer       trace.Tracer

	outcome Outcome
}

// NewProcessOpenIDLoginTask creates the task. The key and issuer come from
// [KeyProvider.GetKey].
func NewProcessOpenIDLoginTask(v ChainValidator, token string, key KeyResult, clientData string, authRequired bool, onCompletion func(Outcome)) *ProcessOpenIDLoginTask {
	return &ProcessOpenIDLoginTask{
		validator:    v,
		token:        token,
		issuer:       key.Issuer,
		signingKey:   key.DER,
		clientData:   clientData,
		onCompletion: onCompletion,
		tracer:       otel.Tracer(tracerName),
		outcome:      Outcome{AuthRequired: authRequired},
	}
}

// Run executes on a worker.
func (t *ProcessOpenIDLoginTask) Run(ctx context.Context) {
	_, span := startSpan(ctx, t.tracer, "auth.ProcessOpenIDLogin")
	defer span.End()

	clientKey, err := t.verify()
	if err != nil {
		finishSpan(span, err)
		t.outcome.Error = DescribeError(err)
	} else {
		t.outcome.ClientPublicKeyDER = clientKey
	}
	span.SetAttributes(attribute.Bool("auth.authenticated", t.outcome.Authenticated))
}

func (t *ProcessOpenIDLoginTask) verify() ([]byte, error) {
	claims, err := t.validator.ValidateOpenIDToken(t.token, t.signingKey, t.issuer)
	if err != nil {
		return nil, err
	}
	t.outcome.Authenticated = true

	clientKey, err := decodeKeyB64(claims.ClientPublicKey, "client public key")
	if err != nil {
		return nil, err
	}
	if _, err := t.validator.ValidateClientData(t.clientData, clientKey); err != nil {
		return nil, err
	}
	return clientKey, nil
}

// Recovered records a panic raised by Run.
func (t *ProcessOpenIDLoginTask) Recovered(err error) {
	t.outcome.Error = DescribeError(err)
}

// Complete runs on the main loop.
func (t *ProcessOpenIDLoginTask) Complete() {
	t.onCompletion(t.outcome)
}

// ProcessLegacyLoginTask walks a self-signed certificate chain and verifies
// the client data token against the chain's final identity key.
type ProcessLegacyLoginTask struct {
	validator    ChainValidator
	chain        []string
	clientData   string
	onCompletion func(Outcome)
	tracer       trace.Tracer

	outcome Outcome
}

// NewProcessLegacyLoginTask creates the task. chain is copied.
func NewProcessLegacyLoginTask(v ChainValidator, chain []string, clientData string, authRequired bool, onCompletion func(Outcome)) *ProcessLegacyLoginTask {
	return &ProcessLegacyLoginTask{
		validator:    v,
		chain:        append([]string(nil), chain...),
		clientData:   clientData,
		onCompletion: onCompletion,
		tracer:       otel.Tracer(tracerName),
		outcome:      Outcome{AuthRequired: authRequired},
	}
}

// Run executes on a worker.
func (t *ProcessLegacyLoginTask) Run(ctx context.Context) {
	_, span := startSpan(ctx, t.tracer, "auth.ProcessLegacyLogin",
		trace.WithAttributes(attribute.Int("auth.chain_links", len(t.chain))))
	defer span.End()

	res, err := t.validator.ValidateChain(t.chain)
	t.outcome.Authenticated = res.Authenticated
	if err == nil {
		_, err = t.validator.ValidateClientData(t.clientData, res.IdentityKey)
	}
	if err != nil {
		finishSpan(span, err)
		t.outcome.Error = DescribeError(err)
	} else {
		t.outcome.ClientPublicKeyDER = res.IdentityKey
	}
	span.SetAttributes(attribute.Bool("auth.authenticated", t.outcome.Authenticated))
}

// Recovered records a panic raised by Run.
func (t *ProcessLegacyLoginTask) Recovered(err error) {
	t.outcome.Error = DescribeError(err)
}

// Complete runs on the main loop.
func (t *ProcessLegacyLoginTask) Complete() {
	t.onCompletion(t.outcome)
}
