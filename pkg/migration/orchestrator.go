package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ha1tch/hotelmig/pkg/graph"
	"github.com/ha1tch/hotelmig/pkg/identity"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
	"github.com/ha1tch/hotelmig/pkg/storage"
	"github.com/ha1tch/hotelmig/pkg/validation"
)

var (
	// ErrUnknownPhase is returned for a phase name that does not exist
	ErrUnknownPhase = errors.New("unknown phase")
	// ErrRunInProgress is returned when the profile is already being migrated
	ErrRunInProgress = errors.New("a migration run is already in progress for this profile")
)

// Phase is one ordered step of a migration
type Phase string

const (
	PhaseUsers          Phase = "users"
	PhasePartners       Phase = "partners"
	PhaseProducts       Phase = "products"
	PhaseFolios         Phase = "folios"
	PhaseReservations   Phase = "reservations"
	PhaseServices       Phase = "services"
	PhasePayments       Phase = "payments"
	PhasePaymentReturns Phase = "payment-returns"
	PhaseInvoices       Phase = "invoices"
	PhaseCleanup        Phase = "clean-up"
)

// Phases returns every phase in run order
func Phases() []Phase {
	return []Phase{
		PhaseUsers, PhasePartners, PhaseProducts, PhaseFolios, PhaseReservations,
		PhaseServices, PhasePayments, PhasePaymentReturns, PhaseInvoices, PhaseCleanup,
	}
}

// ParsePhase accepts a phase name with or without the "migrate-" prefix
func ParsePhase(s string) (Phase, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "migrate-")
	name = strings.ReplaceAll(name, "_", "-")
	if name == "cleanup" {
		name = string(PhaseCleanup)
	}
	for _, p := range Phases() {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPhase, s)
}

type phaseSpec struct {
	requires   []Phase
	crosswalks []Domain
	run        func(ctx context.Context, mc *Context) (*BatchResult, error)
}

func phaseSpecs() map[Phase]phaseSpec {
	return map[Phase]phaseSpec{
		PhaseUsers: {
			crosswalks: []Domain{Users},
			run: func(ctx context.Context, mc *Context) (*BatchResult, error) {
				return RunBatch[userPartner](ctx, mc, UserMigrator{})
			},
		},
		PhasePartners: {
			requires:   []Phase{PhaseUsers},
			crosswalks: []Domain{Countries, States, PartnerCategories, Users},
			run: func(ctx context.Context, mc *Context) (*BatchResult, error) {
				return RunBatch[models.RemotePartner](ctx, mc, PartnerMigrator{})
			},
		},
		PhaseProducts: {
			requires:   []Phase{PhaseUsers},
			crosswalks: []Domain{ProductCategories, Taxes},
			run: func(ctx context.Context, mc *Context) (*BatchResult, error) {
				return RunBatch[models.RemoteProduct](ctx, mc, ProductMigrator{})
			},
		},
		PhaseFolios: {
			requires:   []Phase{PhasePartners},
			crosswalks: []Domain{Users},
			run: func(ctx context.Context, mc *Context) (*BatchResult, error) {
				return RunBatch[models.RemoteFolio](ctx, mc, FolioMigrator{})
			},
		},
		PhaseReservations: {
			requires:   []Phase{PhaseFolios},
			crosswalks: []Domain{RoomTypes, Rooms, OTAChannels},
			run: func(ctx context.Context, mc *Context) (*BatchResult, error) {
				return RunBatch[models.RemoteReservation](ctx, mc, NewReservationMigrator())
			},
		},
		PhaseServices: {
			requires: []Phase{PhaseReservations, PhaseProducts},
			run: func(ctx context.Context, mc *Context) (*BatchResult, error) {
				return RunBatch[models.RemoteService](ctx, mc, NewServiceMigrator())
			},
		},
		PhasePayments: {
			requires:   []Phase{PhaseFolios},
			crosswalks: []Domain{Journals},
			run: func(ctx context.Context, mc *Context) (*BatchResult, error) {
				return RunBatch[models.RemotePayment](ctx, mc, PaymentMigrator{})
			},
		},
		PhasePaymentReturns: {
			requires:   []Phase{PhasePayments},
			crosswalks: []Domain{Journals},
			run: func(ctx context.Context, mc *Context) (*BatchResult, error) {
				return RunBatch[models.RemotePaymentReturn](ctx, mc, NewPaymentReturnMigrator())
			},
		},
		PhaseInvoices: {
			requires:   []Phase{PhasePartners, PhaseReservations, PhaseServices, PhasePayments},
			crosswalks: []Domain{Journals, Taxes},
			run: func(ctx context.Context, mc *Context) (*BatchResult, error) {
				return RunBatch[models.RemoteInvoice](ctx, mc, NewInvoiceMigrator())
			},
		},
		PhaseCleanup: {
			requires: []Phase{PhaseInvoices, PhasePaymentReturns},
			run:      Cleanup,
		},
	}
}

// checkPhaseOrder verifies the phase dependencies are acyclic and that the
// run order never schedules a phase before one it requires.
func checkPhaseOrder(specs map[Phase]phaseSpec, order []Phase) (*graph.Graph, error) {
	g := graph.New()
	for _, p := range order {
		g.AddNode(string(p))
	}
	for _, p := range order {
		for _, dep := range specs[p].requires {
			g.AddEdge(string(p), string(dep), "requires")
		}
	}
	if g.HasCycle() {
		return nil, fmt.Errorf("phase dependencies: %w", graph.ErrCycle)
	}

	position := make(map[string]int, len(order))
	for i, p := range order {
		position[string(p)] = i
	}
	for _, p := range order {
		for _, dep := range g.Dependencies(string(p)) {
			if position[dep] >= position[string(p)] {
				return nil, fmt.Errorf("phase %s runs before its dependency %s", p, dep)
			}
		}
	}
	return g, nil
}

// PhaseReport is the outcome of one phase invocation
type PhaseReport struct {
	Phase    Phase         `json:"phase"`
	RunID    string        `json:"run_id"`
	Result   *BatchResult  `json:"result"`
	Duration time.Duration `json:"duration"`
}

// Dialer opens an authenticated session to a profile's legacy system
type Dialer func(ctx context.Context, profile *models.ConnectionProfile) (remote.Source, error)

// RemoteDialer dials the legacy server over JSON-RPC and logs in
func RemoteDialer(timeout time.Duration, rateLimit float64) Dialer {
	return func(ctx context.Context, p *models.ConnectionProfile) (remote.Source, error) {
		client, err := remote.Dial(ctx, remote.Options{
			Host:      p.Host,
			Protocol:  p.Protocol,
			Port:      p.Port,
			Timeout:   timeout,
			RateLimit: rateLimit,
		})
		if err != nil {
			return nil, err
		}
		session, err := client.Login(ctx, p.Database, p.Username, p.Password)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

// Options configures an Orchestrator
type Options struct {
	Store     storage.MigrationStore
	Identity  *identity.Map
	Validator validation.Validator
	Dialer    Dialer
	Settings  Settings
	Logger    zerolog.Logger
}

// Orchestrator runs phases against connection profiles
type Orchestrator struct {
	store     storage.MigrationStore
	identity  *identity.Map
	validator validation.Validator
	dial      Dialer
	settings  Settings
	logger    zerolog.Logger

	specs map[Phase]phaseSpec
	order []Phase
	deps  *graph.Graph

	mu      sync.Mutex
	running map[int]bool
}

// New creates an orchestrator
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Identity == nil {
		opts.Identity = identity.New(opts.Store, nil)
	}
	if opts.Validator == nil {
		opts.Validator = validation.NoOpValidator{}
	}
	if opts.Dialer == nil {
		opts.Dialer = RemoteDialer(0, 0)
	}

	specs := phaseSpecs()
	order := Phases()
	deps, err := checkPhaseOrder(specs, order)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		store:     opts.Store,
		identity:  opts.Identity,
		validator: opts.Validator,
		dial:      opts.Dialer,
		settings:  opts.Settings,
		logger:    opts.Logger,
		specs:     specs,
		order:     order,
		deps:      deps,
		running:   make(map[int]bool),
	}, nil
}

// CreateProfile verifies the profile's credentials against the legacy
// server, records the server version and stores the profile.
func (o *Orchestrator) CreateProfile(ctx context.Context, p *models.ConnectionProfile) error {
	if _, err := models.ParseCutoverOperator(string(p.CutoverOperator)); err != nil {
		return err
	}

	source, err := o.dial(ctx, p)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", p.Host, err)
	}
	defer source.Logout(ctx)

	p.RemoteVersion = source.Version()
	if err := o.store.CreateProfile(ctx, p); err != nil {
		return err
	}

	o.logger.Info().
		Int("profile_id", p.ID).
		Str("name", p.Name).
		Str("remote_version", p.RemoteVersion).
		Msg("profile created")
	return nil
}

// Prerequisites lists the phases that must have run before phase, in run
// order.
func (o *Orchestrator) Prerequisites(phase Phase) ([]Phase, error) {
	if _, ok := o.specs[phase]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPhase, phase)
	}
	closure, err := o.deps.Closure(string(phase))
	if err != nil {
		return nil, err
	}
	required := make(map[string]bool, len(closure))
	for _, p := range closure {
		required[p] = true
	}

	var phases []Phase
	for _, p := range o.order {
		if p != phase && required[string(p)] {
			phases = append(phases, p)
		}
	}
	return phases, nil
}

// RunPhase runs one phase with its own run id and connection
func (o *Orchestrator) RunPhase(ctx context.Context, profileID int, phase Phase) (*PhaseReport, error) {
	if _, ok := o.specs[phase]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPhase, phase)
	}

	reports, err := o.run(ctx, profileID, []Phase{phase})
	if len(reports) == 0 {
		return nil, err
	}
	return &reports[0], err
}

// RunAll runs every phase in order under one run id and one connection,
// stopping at the first phase that fails.
func (o *Orchestrator) RunAll(ctx context.Context, profileID int) ([]PhaseReport, error) {
	return o.run(ctx, profileID, o.order)
}

func (o *Orchestrator) run(ctx context.Context, profileID int, phases []Phase) ([]PhaseReport, error) {
	if err := o.acquire(profileID); err != nil {
		return nil, err
	}
	defer o.release(profileID)

	profile, err := o.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("profile %d: %w", profileID, err)
	}

	source, err := o.dial(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", profile.Host, err)
	}
	defer source.Logout(ctx)

	runID := uuid.NewString()
	reports := make([]PhaseReport, 0, len(phases))
	for _, phase := range phases {
		report, err := o.runPhase(ctx, profile, source, runID, phase)
		reports = append(reports, report)
		if err != nil {
			return reports, fmt.Errorf("phase %s: %w", phase, err)
		}
	}
	return reports, nil
}

func (o *Orchestrator) runPhase(ctx context.Context, profile *models.ConnectionProfile, source remote.Source, runID string, phase Phase) (PhaseReport, error) {
	spec := o.specs[phase]
	report := PhaseReport{Phase: phase, RunID: runID}
	start := time.Now()

	logger := o.logger.With().
		Str("run_id", runID).
		Str("phase", string(phase)).
		Int("profile_id", profile.ID).
		Logger()
	if prereq, err := o.Prerequisites(phase); err == nil && len(prereq) > 0 {
		names := make([]string, len(prereq))
		for i, p := range prereq {
			names[i] = string(p)
		}
		logger.Debug().Strs("requires", names).Msg("phase prerequisites")
	}
	logger.Info().Msg("phase started")

	crosswalks, err := NewBuilder(source, o.store, o.settings, logger).Build(ctx, spec.crosswalks...)
	if err != nil {
		report.Duration = time.Since(start)
		return report, err
	}

	mc := &Context{
		RunID:      runID,
		Profile:    profile,
		Source:     source,
		Store:      o.store,
		Identity:   o.identity,
		Crosswalks: crosswalks,
		Validator:  o.validator,
		Log:        NewLog(o.store, runID, profile.ID, logger),
		Logger:     logger,
		Settings:   o.settings,
	}

	result, err := spec.run(ctx, mc)
	report.Result = result
	report.Duration = time.Since(start)
	if err != nil {
		logger.Error().Err(err).Msg("phase aborted")
		return report, err
	}

	logger.Info().Dur("duration", report.Duration).Msg("phase finished")
	return report, nil
}

func (o *Orchestrator) acquire(profileID int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running[profileID] {
		return ErrRunInProgress
	}
	o.running[profileID] = true
	return nil
}

func (o *Orchestrator) release(profileID int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, profileID)
}
