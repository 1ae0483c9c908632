package domains

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rekakarya/orderflow/internal/catalog"
)

// Rand supplies uniform values in [0, 1).
type Rand interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// lockedRand serialises access to a Rand that is not safe for concurrent use.
type lockedRand struct {
	mu  sync.Mutex
	src Rand
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Float64()
}

// PriceMode selects how a simulated price is derived.
type PriceMode string

const (
	// PriceList uses the catalogue base price with an optional discount.
	PriceList PriceMode = "list"
	// PriceQuick draws a teaser price between 10.99 and 29.99, shown only when available.
	PriceQuick PriceMode = "quick"
)

// Profile tunes the simulated registry.
type Profile struct {
	Availability float64
	// DiscountProbability and DiscountRate only apply to PriceList.
	DiscountProbability float64
	DiscountRate        float64
	Mode                PriceMode
	// A fixed delay is used when DelayMax is not greater than DelayMin.
	DelayMin time.Duration
	DelayMax time.Duration
	// PerSuffix checks every suffix concurrently with its own delay.
	PerSuffix bool
}

// SearchProfile matches the domain step search.
func SearchProfile() Profile {
	return Profile{
		Availability:        0.6,
		DiscountProbability: 0.3,
		DiscountRate:        0.2,
		Mode:                PriceList,
		DelayMin:            1500 * time.Millisecond,
		DelayMax:            1500 * time.Millisecond,
	}
}

// QuickProfile matches the landing page checker.
func QuickProfile() Profile {
	return Profile{
		Availability: 0.4,
		Mode:         PriceQuick,
		DelayMin:     500 * time.Millisecond,
		DelayMax:     1500 * time.Millisecond,
		PerSuffix:    true,
	}
}

// Availability is the simulated registry answer for one suffix.
type Availability struct {
	Suffix        string           `json:"suffix"`
	Available     bool             `json:"available"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
}

// AvailabilityProvider answers availability questions for a cleaned name.
type AvailabilityProvider interface {
	Check(ctx context.Context, name string, suffixes []catalog.Suffix) ([]Availability, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SimulatorOption customises a Simulator.
type SimulatorOption func(*Simulator)

// WithRand overrides the random source.
func WithRand(r Rand) SimulatorOption {
	return func(s *Simulator) {
		if r != nil {
			s.rand = &lockedRand{src: r}
		}
	}
}

// WithSleep overrides how delays are awaited.
func WithSleep(fn SleepFunc) SimulatorOption {
	return func(s *Simulator) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// Simulator fabricates availability answers according to a Profile.
type Simulator struct {
	profile Profile
	rand    Rand
	sleep   SleepFunc
}

var _ AvailabilityProvider = (*Simulator)(nil)

// NewSimulator constructs a simulator for profile.
func NewSimulator(profile Profile, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		profile: profile,
		rand:    globalRand{},
		sleep:   Sleep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Profile returns the configured profile.
func (s *Simulator) Profile() Profile {
	return s.profile
}

// Check simulates a registry lookup for name across suffixes.
func (s *Simulator) Check(ctx context.Context, name string, suffixes []catalog.Suffix) ([]Availability, error) {
	if name == "" {
		return nil, ErrEmptyQuery
	}
	if s.profile.PerSuffix {
		return s.checkConcurrently(ctx, suffixes)
	}

	if err := s.sleep(ctx, s.delay()); err != nil {
		return nil, err
	}
	out := make([]Availability, 0, len(suffixes))
	for _, suffix := range suffixes {
		out = append(out, s.answer(suffix))
	}
	return out, nil
}

func (s *Simulator) checkConcurrently(ctx context.Context, suffixes []catalog.Suffix) ([]Availability, error) {
	out := make([]Availability, len(suffixes))
	g, gctx := errgroup.WithContext(ctx)
	for i, suffix := range suffixes {
		g.Go(func() error {
			if err := s.sleep(gctx, s.delay()); err != nil {
				return err
			}
			out[i] = s.answer(suffix)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Simulator) delay() time.Duration {
	lo, hi := s.profile.DelayMin, s.profile.DelayMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rand.Float64()*float64(hi-lo))
}

func (s *Simulator) answer(suffix catalog.Suffix) Availability {
	available := s.rand.Float64() < s.profile.Availability
	result := Availability{Suffix: suffix.Name, Available: available}

	switch s.profile.Mode {
	case PriceQuick:
		if !available {
			return result
		}
		dollars := int64(s.rand.Float64()*20) + 10
		price := decimal.NewFromInt(dollars).Add(decimal.RequireFromString("0.99"))
		result.Price = &price
	default:
		base := suffix.BasePrice
		price := base
		if s.rand.Float64() < s.profile.DiscountProbability {
			factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(s.profile.DiscountRate))
			price = base.Mul(factor).Round(0)
			original := base
			result.OriginalPrice = &original
		}
		result.Price = &price
	}
	return result
}

// IsCancelled reports whether err came from a cancelled or expired context.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
