package router

import (
	"context"

	"go.uber.org/zap"

	"pqcall/internal/anonymize"
	"pqcall/internal/domain"
	"pqcall/internal/resilience"
)

// Request is one routing attempt: a scanned token plus optional caller
// identity.
type Request struct {
	Token domain.SecureToken
	// CallerAnonymous is the caller's existing anonymous id; a fresh one is
	// minted when empty.
	CallerAnonymous domain.AnonymousID
	// ClientKey is the rate-limit key: client id, falling back to IP.
	ClientKey string
}

// Result is an established anonymous session.
type Result struct {
	SessionID         domain.SessionID
	CallerAnonymousID domain.AnonymousID
	CalleeAnonymousID domain.AnonymousID
}

// Router turns a scanned token into an active anonymous session. It only
// ever handles anonymous identifiers on its outputs; the callee's real id
// exists transiently between resolution and anonymization and is never
// logged or emitted.
type Router struct {
	tokens   domain.TokenAuthority
	anon     domain.Anonymizer
	registry domain.SessionRegistry
	limiter  *resilience.Limiter
	log      *zap.Logger
}

// New wires the router. limiter may be nil for callers that enforce rate
// limits upstream.
func New(tokens domain.TokenAuthority, anon domain.Anonymizer, registry domain.SessionRegistry, limiter *resilience.Limiter, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		tokens:   tokens,
		anon:     anon,
		registry: registry,
		limiter:  limiter,
		log:      log,
	}
}

// Allow consults the rate limiter for one request from clientKey.
func (r *Router) Allow(clientKey string) error {
	if r.limiter == nil || clientKey == "" {
		return nil
	}
	return r.limiter.Allow(clientKey).Failure()
}

// ValidateToken resolves the token to its user. Every attempt is recorded
// with the enumeration monitor; failures surface as resolution errors.
func (r *Router) ValidateToken(ctx context.Context, tok domain.SecureToken, clientKey string) (domain.UserID, error) {
	hashed := r.tokens.Hash(tok)
	r.tokens.Monitor(hashed.Prefix(), clientKey)

	user, err := r.tokens.Resolve(ctx, hashed)
	if err != nil {
		r.log.Debug("token resolution rejected",
			zap.String("token_prefix", hashed.Prefix()),
			zap.String("code", domain.FailureCode(err)))
		return "", err
	}
	return user, nil
}

// CreateSession anonymizes the callee, assigns the caller an anonymous id
// if none was supplied, checks privacy compliance of both identifiers, and
// admits the session.
func (r *Router) CreateSession(ctx context.Context, callee domain.UserID, caller domain.AnonymousID) (Result, error) {
	_ = ctx

	calleeAnon, err := r.anon.Anonymize(callee)
	if err != nil {
		return Result{}, err
	}
	if caller == "" {
		caller, err = r.anon.NewAnonymousID()
		if err != nil {
			return Result{}, err
		}
	}
	if err := checkIdentifierCompliance(caller, calleeAnon); err != nil {
		r.log.Warn("routing blocked by privacy check",
			anonymize.SanitizedField("detail", err.Error()))
		return Result{}, err
	}

	id, err := r.registry.Create(caller, calleeAnon)
	if err != nil {
		if domain.FailureCode(err) == domain.CodeDuplicateSession {
			return Result{}, err
		}
		return Result{}, domain.WrapFailure(domain.KindInfrastructure,
			domain.CodeSessionCreationFail, "admitting session", err)
	}

	r.log.Info("session routed",
		zap.String("session_id", string(id)),
		zap.String("caller", string(caller)),
		zap.String("callee", string(calleeAnon)))
	return Result{
		SessionID:         id,
		CallerAnonymousID: caller,
		CalleeAnonymousID: calleeAnon,
	}, nil
}

// checkIdentifierCompliance verifies that both routed identifiers carry the
// anonymous-id format and differ. Anything else means a real identifier is
// about to leak into routing.
func checkIdentifierCompliance(caller, callee domain.AnonymousID) error {
	if !caller.Valid() || !callee.Valid() {
		return domain.NewFailure(domain.KindPolicy, domain.CodePrivacyViolation,
			"identifier without anonymous format in routing path")
	}
	if caller == callee {
		return domain.NewFailure(domain.KindPolicy, domain.CodePrivacyViolation,
			"caller and callee resolve to the same anonymous id")
	}
	return nil
}

// Route performs the full pipeline: rate gate, token resolution, caller
// assignment, compliance check, session creation.
func (r *Router) Route(ctx context.Context, req Request) (Result, error) {
	if err := r.Allow(req.ClientKey); err != nil {
		return Result{}, err
	}
	user, err := r.ValidateToken(ctx, req.Token, req.ClientKey)
	if err != nil {
		return Result{}, err
	}
	return r.CreateSession(ctx, user, req.CallerAnonymous)
}

// Terminate ends a session and triggers registry cleanup. Idempotent:
// terminating a missing or already-ended session is not an error.
func (r *Router) Terminate(ctx context.Context, id domain.SessionID) error {
	_ = ctx

	rec, ok := r.registry.Get(id)
	if !ok {
		return nil
	}
	if !rec.Status.Terminal() {
		if err := r.registry.UpdateStatus(id, domain.StatusEnded); err != nil {
			// A concurrent terminator may have won; only report failures
			// that are not the already-terminal case.
			if domain.FailureCode(err) != domain.CodeInvalidTransition {
				return err
			}
		}
	}
	r.registry.Cleanup(id)
	return nil
}
