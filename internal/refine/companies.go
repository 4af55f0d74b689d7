package refine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"bordereau/internal/company"
	"bordereau/internal/issue"
	"bordereau/internal/roles"
	"bordereau/pkg/platform/sentinel"
	pstrings "bordereau/pkg/platform/strings"
)

const defaultConcurrency = 4

// Profile is the capability a party must hold for its role.
type Profile int

const (
	// ProfileNone only checks that a registered company is not dormant.
	ProfileNone Profile = iota
	ProfileTransporter
	ProfileDestination
	ProfileCrematorium
	ProfileBroker
	ProfileTrader
	ProfileEcoOrganisme
	ProfileRegistered
	// ProfileCollector is a destination allowed to receive grouping
	// operations (R12, D13).
	ProfileCollector
)

// Party is one company reference to check against the registry.
type Party struct {
	Role      roles.Role
	Siret     string
	VatNumber string
	Field     string
	Path      []string
	Profile   Profile
	// Exempted transporters declared a receipt exemption and need not hold
	// the transporter profile.
	Exempted bool
	// DocumentType is checked against eco-organisme approvals.
	DocumentType company.DocumentType
}

// Checker looks parties up concurrently. Every lookup completes; missing or
// mismatching companies become issues, registry failures an error.
type Checker struct {
	registry           company.Registry
	concurrency        int
	verifyDestinations bool
	logger             *slog.Logger
	tracer             trace.Tracer
}

type CheckerOption func(*Checker)

func WithConcurrency(n int) CheckerOption {
	return func(c *Checker) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithDestinationVerification rejects destinations whose account has not
// been verified.
func WithDestinationVerification(enabled bool) CheckerOption {
	return func(c *Checker) {
		c.verifyDestinations = enabled
	}
}

func WithCheckerLogger(logger *slog.Logger) CheckerOption {
	return func(c *Checker) {
		c.logger = logger
	}
}

func NewChecker(registry company.Registry, opts ...CheckerOption) *Checker {
	c := &Checker{
		registry:    registry,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
		tracer:      otel.Tracer("bordereau/refine"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check runs every party lookup and returns the issues in party order.
func (c *Checker) Check(ctx context.Context, parties []Party) ([]issue.Issue, error) {
	ctx, span := c.tracer.Start(ctx, "refine.CheckCompanies",
		trace.WithAttributes(attribute.Int("parties", len(parties))))
	defer span.End()

	found := make([][]issue.Issue, len(parties))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, p := range parties {
		g.Go(func() error {
			issues, err := c.checkParty(ctx, p)
			if err != nil {
				return err
			}
			mu.Lock()
			found[i] = issues
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	var out []issue.Issue
	for _, issues := range found {
		out = append(out, issues...)
	}
	return out, nil
}

func (c *Checker) checkParty(ctx context.Context, p Party) ([]issue.Issue, error) {
	siret := pstrings.CompactIdentifier(p.Siret)
	vat := pstrings.CompactIdentifier(p.VatNumber)
	id, label := siret, "le SIRET "+siret
	if id == "" {
		id, label = vat, "le numéro de TVA "+vat
	}
	if id == "" {
		return nil, nil
	}

	record, err := c.registry.FindCompany(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		if p.Profile == ProfileNone {
			return nil, nil
		}
		return []issue.Issue{c.notRegistered(p, label)}, nil
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "company lookup failed", "role", p.Role, "org_id", id, "error", err)
		return nil, fmt.Errorf("lookup %s %s: %w", p.Role, id, err)
	}

	var out []issue.Issue
	if record.IsDormant() {
		out = append(out, issue.ExternalEntity(p.Field, p.Path,
			fmt.Sprintf("L'établissement avec %s est en sommeil, il n'est pas possible de le mentionner sur un bordereau", label)))
	}
	if msg := c.profileViolation(p, record, label); msg != "" {
		out = append(out, issue.ExternalEntity(p.Field, p.Path, msg))
	}
	return out, nil
}

func (c *Checker) notRegistered(p Party, label string) issue.Issue {
	if p.Profile == ProfileEcoOrganisme {
		return issue.ExternalEntity(p.Field, p.Path,
			fmt.Sprintf("L'éco-organisme avec %s n'est pas référencé", label))
	}
	return issue.ExternalEntity(p.Field, p.Path,
		fmt.Sprintf("%s : l'établissement avec %s n'est pas inscrit", roleLabel(p.Role), label))
}

func (c *Checker) profileViolation(p Party, r *company.Record, label string) string {
	const wrongProfile = "%s saisi sur le bordereau (%s) n'est pas inscrit en tant que %s. " +
		"Cette entreprise ne peut donc pas être visée sur le bordereau"
	switch p.Profile {
	case ProfileTransporter:
		if !p.Exempted && !r.IsTransporter() {
			return fmt.Sprintf(wrongProfile, "Le transporteur", label, "entreprise de transport")
		}
	case ProfileDestination, ProfileCrematorium, ProfileCollector:
		if !r.IsDestination() {
			return fmt.Sprintf(wrongProfile, "L'installation de destination", label,
				"installation de traitement ou de tri transit regroupement")
		}
		if p.Profile == ProfileCrematorium && !r.IsCrematorium() {
			return fmt.Sprintf(wrongProfile, "L'installation de destination", label, "crématorium")
		}
		if p.Profile == ProfileCollector && !r.IsCollector() {
			return fmt.Sprintf("Les codes R12 et D13 sont réservés aux installations de tri transit regroupement. "+
				"L'installation de destination avec %s n'a pas ce profil", label)
		}
		if c.verifyDestinations && !r.IsVerified() {
			return fmt.Sprintf("Le compte de l'installation de destination avec %s n'a pas encore été vérifié. "+
				"Cette installation ne peut pas être visée sur le bordereau", label)
		}
	case ProfileBroker:
		if !r.IsBroker() {
			return fmt.Sprintf(wrongProfile, "Le courtier", label, "courtier")
		}
	case ProfileTrader:
		if !r.IsTrader() {
			return fmt.Sprintf(wrongProfile, "Le négociant", label, "négociant")
		}
	case ProfileEcoOrganisme:
		if !r.IsEcoOrganisme() {
			return fmt.Sprintf("L'éco-organisme avec %s n'est pas référencé", label)
		}
		if p.DocumentType != "" && !r.CanHandle(p.DocumentType) {
			return fmt.Sprintf("L'éco-organisme avec %s n'est pas autorisé à apparaître sur un %s", label, p.DocumentType)
		}
	}
	return ""
}

func roleLabel(r roles.Role) string {
	switch r {
	case roles.Emitter:
		return "Émetteur"
	case roles.Transporter:
		return "Transporteur"
	case roles.Destination:
		return "Destination"
	case roles.Broker:
		return "Courtier"
	case roles.Trader:
		return "Négociant"
	case roles.EcoOrganisme:
		return "Éco-organisme"
	case roles.Intermediary:
		return "Intermédiaire"
	}
	return string(r)
}
