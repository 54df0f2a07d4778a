package fsp

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const SandboxCode = "MOCK"

var (
	sandboxInstantLimit = decimal.NewFromInt(1000)
	sandboxDailyLimit   = decimal.NewFromInt(10000)
)

// Sandbox is an in-process provider for development and tests. Amounts below
// 1,000 settle at once, amounts above 10,000 are rejected, and everything in
// between is accepted and settles on the next status check.
type Sandbox struct {
	mu          sync.Mutex
	byReference map[string]string
	results     map[string]sandboxPayment
}

type sandboxPayment struct {
	amount  decimal.Decimal
	settled bool
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		byReference: make(map[string]string),
		results:     make(map[string]sandboxPayment),
	}
}

func SandboxProfile() Profile {
	return Profile{
		Code:          SandboxCode,
		Name:          "Sandbox Provider",
		Channels:      AllChannels,
		MinAmount:     decimal.RequireFromString("1.00"),
		MaxAmount:     decimal.RequireFromString("50000.00"),
		MaxConcurrent: 10,
		Active:        true,
	}
}

func (s *Sandbox) Code() string {
	return SandboxCode
}

// Submit is idempotent on the payment reference, as real gateways are on
// their external id.
func (s *Sandbox) Submit(ctx context.Context, req SubmitRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, &TransientProviderError{Provider: SandboxCode, Reason: "PROVIDER_TIMEOUT", Err: err}
	}

	if req.Amount.GreaterThan(sandboxDailyLimit) {
		return Result{
			Outcome: OutcomePermanentFailure,
			Reason:  "AMOUNT_LIMIT_EXCEEDED",
		}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, seen := s.byReference[req.Reference]; seen {
		return s.resultFor(ref), nil
	}

	ref := "MOCK-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	s.byReference[req.Reference] = ref
	s.results[ref] = sandboxPayment{
		amount:  req.Amount,
		settled: req.Amount.LessThan(sandboxInstantLimit),
	}
	return s.resultFor(ref), nil
}

func (s *Sandbox) CheckStatus(ctx context.Context, providerReference string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.results[providerReference]
	if !ok {
		return Result{}, &PermanentProviderError{Provider: SandboxCode, Reason: "UNKNOWN_REFERENCE"}
	}
	if !p.settled {
		p.settled = true
		s.results[providerReference] = p
	}
	return s.resultFor(providerReference), nil
}

func (s *Sandbox) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Sandbox) resultFor(ref string) Result {
	p := s.results[ref]
	if !p.settled {
		return Result{Outcome: OutcomeAccepted, ProviderReference: ref}
	}
	confirmed := p.amount
	return Result{Outcome: OutcomeSuccess, ProviderReference: ref, ConfirmedAmount: &confirmed}
}
