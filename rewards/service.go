package rewards

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/oracoin/reward-engine/captcha"
	"github.com/oracoin/reward-engine/generic"
)

// ErrCaptchaRejected is returned when the oracle does not accept an answer.
var ErrCaptchaRejected = errors.New("captcha answer rejected")

// Service is the entry point for every reward surface.
type Service struct {
	Ledger  *generic.Ledger
	Catalog *Catalog
	Oracle  captcha.Oracle
	Picker  Picker
	Logger  *zap.Logger
}

func NewService(ledger *generic.Ledger, catalog *Catalog, oracle captcha.Oracle, logger *zap.Logger) *Service {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Ledger:  ledger,
		Catalog: catalog,
		Oracle:  oracle,
		Picker:  globalPicker{},
		Logger:  logger,
	}
}

// Outcome is the post-commit state after one reward action.
type Outcome struct {
	Kind        generic.ActivityKind
	Prize       generic.Amount
	Balance     generic.Amount
	Count       int
	Remaining   int
	Limit       int
	CooldownEnd time.Time
	Record      generic.Transaction
}

// =============================================================================
// SURFACES
// =============================================================================

// SolveCaptcha asks the oracle about answer and pays the captcha reward if
// it is accepted.
func (s *Service) SolveCaptcha(ctx context.Context, userID generic.UserID, image, answer string) (Outcome, error) {
	act, err := s.Catalog.Activity(generic.ActivityCaptcha)
	if err != nil {
		return Outcome{}, err
	}
	if s.Oracle == nil || !s.Oracle.Validate(ctx, image, answer) {
		s.Logger.Info("captcha rejected", zap.String("user_id", string(userID)))
		return Outcome{}, ErrCaptchaRejected
	}
	return s.play(ctx, userID, act)
}

// WatchAd pays the ad reward. Unlimited.
func (s *Service) WatchAd(ctx context.Context, userID generic.UserID) (Outcome, error) {
	return s.Play(ctx, userID, generic.ActivityAd)
}

func (s *Service) Spin(ctx context.Context, userID generic.UserID) (Outcome, error) {
	return s.Play(ctx, userID, generic.ActivitySpin)
}

func (s *Service) Scratch(ctx context.Context, userID generic.UserID) (Outcome, error) {
	return s.Play(ctx, userID, generic.ActivityScratch)
}

// Play runs one play of kind. Captcha must go through SolveCaptcha.
func (s *Service) Play(ctx context.Context, userID generic.UserID, kind generic.ActivityKind) (Outcome, error) {
	if kind == generic.ActivityCaptcha {
		return Outcome{}, ErrCaptchaRejected
	}
	act, err := s.Catalog.Activity(kind)
	if err != nil {
		return Outcome{}, err
	}
	return s.play(ctx, userID, act)
}

func (s *Service) play(ctx context.Context, userID generic.UserID, act Activity) (Outcome, error) {
	prize := act.Reward
	if len(act.Prizes) > 0 {
		prize = Draw(s.picker(), act.Prizes)
	}

	res, err := s.Ledger.ClaimReward(ctx, generic.Claim{
		UserID: userID,
		Kind:   act.Kind,
		Window: act.Window,
		Amount: prize,
	})
	if err != nil {
		s.logFailure(userID, act.Kind, err)
		return Outcome{}, err
	}

	out := Outcome{
		Kind:        act.Kind,
		Prize:       prize,
		Balance:     res.NewBalance,
		Count:       res.NewCount,
		CooldownEnd: res.CooldownEnd,
		Record:      res.Record,
	}
	if act.Window != nil {
		out.Limit = act.Window.Limit
		out.Remaining = max(act.Window.Limit-res.NewCount, 0)
	}
	return out, nil
}

// ExtraPlay trades an ad view for one more play of a limited activity
// that is at its limit.
func (s *Service) ExtraPlay(ctx context.Context, userID generic.UserID, kind generic.ActivityKind) (Outcome, error) {
	act, err := s.Catalog.Activity(kind)
	if err != nil {
		return Outcome{}, err
	}
	if !act.Limited() {
		return Outcome{}, generic.ErrPlaysRemaining
	}

	res, err := s.Ledger.ExtraPlay(ctx, userID, kind, *act.Window)
	if err != nil {
		s.logFailure(userID, kind, err)
		return Outcome{}, err
	}
	return Outcome{
		Kind:      kind,
		Prize:     generic.Coins(0),
		Balance:   res.NewBalance,
		Count:     res.NewCount,
		Limit:     act.Window.Limit,
		Remaining: act.Window.Limit - res.NewCount,
		Record:    res.Record,
	}, nil
}

// =============================================================================
// STATUS
// =============================================================================

// ActivityStatus is the current window state of one limited activity.
type ActivityStatus struct {
	Kind        generic.ActivityKind
	Limit       int
	Used        int
	Remaining   int
	CooldownEnd time.Time
}

// Status is the account summary shown on the dashboard.
type Status struct {
	Account    generic.Account
	Activities []ActivityStatus
}

// Status returns the balance and the window state of every limited activity.
func (s *Service) Status(ctx context.Context, userID generic.UserID) (Status, error) {
	acct, err := s.Ledger.Account(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	now := s.Ledger.Clock()

	st := Status{Account: acct}
	for _, act := range s.Catalog.Limited() {
		w := *act.Window
		c := acct.Counter(act.Kind)
		as := ActivityStatus{
			Kind:      act.Kind,
			Limit:     w.Limit,
			Used:      w.EffectiveCount(now, c),
			Remaining: w.Remaining(now, c),
		}
		if w.IsBlocked(now, c) {
			as.CooldownEnd = c.CooldownEnd
		}
		st.Activities = append(st.Activities, as)
	}
	return st, nil
}

func (s *Service) picker() Picker {
	if s.Picker == nil {
		return globalPicker{}
	}
	return s.Picker
}

func (s *Service) logFailure(userID generic.UserID, kind generic.ActivityKind, err error) {
	fields := []zap.Field{zap.String("user_id", string(userID)), zap.String("kind", string(kind)), zap.Error(err)}
	if generic.IsClientError(err) || generic.IsNotFound(err) {
		s.Logger.Info("reward claim refused", fields...)
		return
	}
	s.Logger.Error("reward claim failed", fields...)
}
