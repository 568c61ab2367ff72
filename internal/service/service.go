package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rongwang/shinobu-server/internal/approval"
	"github.com/rongwang/shinobu-server/internal/config"
	"github.com/rongwang/shinobu-server/internal/draft"
	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/rongwang/shinobu-server/internal/repository"
	"github.com/rongwang/shinobu-server/internal/trade"
	"github.com/rongwang/shinobu-server/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotUpgradable      = errors.New("this waifu can't be upgraded")
	ErrInvalidBirthday    = errors.New("birthday must be a past date formatted YYYY-MM-DD")
	ErrBirthdayAlreadySet = errors.New("your birthday is already set")
)

// Service defines all the business logic operations
type Service interface {
	// Authentication
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)

	// Profile
	GetProfile(ctx context.Context, actor models.ActorID) (*models.ProfileResponse, error)
	GetUser(ctx context.Context, id models.ActorID) (*models.UserResponse, error)
	SetBirthday(ctx context.Context, actor models.ActorID, req models.BirthdayRequest) (*models.BirthdayResponse, error)
	GrantBirthdayGifts(ctx context.Context, today time.Time) (int, error)

	// Packs and waifus
	ListPacks(ctx context.Context) (*models.PacksResponse, error)
	BuyPack(ctx context.Context, actor models.ActorID, req models.BuyPackRequest) (*models.BuyPackResponse, error)
	ListWaifus(ctx context.Context, actor models.ActorID) (*models.WaifusResponse, error)
	FindWaifu(ctx context.Context, actor models.ActorID, query string) (*models.WaifuResponse, error)
	RefundWaifu(ctx context.Context, actor models.ActorID, waifuID int64, seen models.WaifuRef) (*models.RefundResponse, error)
	UpgradeWaifu(ctx context.Context, actor models.ActorID, waifuID int64, seen models.WaifuRef) (*models.WaifuResponse, error)

	// Trading
	EnqueueMoneyTransfer(ctx context.Context, actor models.ActorID, req models.MoneyTransferRequest) (*models.ChangeResponse, error)
	EnqueueWaifuTransfer(ctx context.Context, actor models.ActorID, req models.WaifuTransferRequest) (*models.ChangeResponse, error)
	PendingChanges(ctx context.Context, actor models.ActorID) (*models.ChangesResponse, error)
	Sign(ctx context.Context, actor models.ActorID, req models.SignRequest) (*models.SignResponse, error)
	Cancel(ctx context.Context, actor models.ActorID) (*models.MessageResponse, error)

	// Approvals
	ListApprovals(ctx context.Context, actor models.ActorID) []approval.Request
	Vote(ctx context.Context, actor models.ActorID, requestID string, approve bool) (*models.MessageResponse, error)
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo          repository.Repository
	engine        *draft.Engine
	ledger        *trade.Ledger
	signer        *trade.Signer
	hub           *approval.Hub
	logger        *utils.Logger
	economy       config.EconomyConfig
	jwtSecret     []byte
	tokenDuration time.Duration
	now           func() time.Time
}

// Option customizes a DefaultService
type Option func(*DefaultService)

// WithDraftEngine replaces the default draft engine
func WithDraftEngine(engine *draft.Engine) Option {
	return func(s *DefaultService) { s.engine = engine }
}

// WithLogger sets the logger
func WithLogger(logger *utils.Logger) Option {
	return func(s *DefaultService) { s.logger = logger }
}

// WithClock sets the clock used for passive income
func WithClock(now func() time.Time) Option {
	return func(s *DefaultService) { s.now = now }
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(repo repository.Repository, cfg *config.Config, opts ...Option) *DefaultService {
	s := &DefaultService{
		repo:          repo,
		ledger:        trade.NewLedger(),
		hub:           approval.NewHub(),
		logger:        utils.NewLogger(),
		economy:       cfg.Economy,
		jwtSecret:     []byte(cfg.Auth.JWTSecret),
		tokenDuration: cfg.Auth.TokenDuration,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = draft.NewEngine(repo)
	}
	if s.tokenDuration <= 0 {
		s.tokenDuration = 24 * time.Hour // 24 hours token validity
	}
	s.signer = trade.NewSigner(s.ledger, repo, s.hub, cfg.Economy.ApprovalTimeout, s.logger)
	return s
}

// Authentication methods
func (s *DefaultService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthResponse, error) {
	// Check if user already exists
	existingUser, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("error checking user existence: %w", err)
	}

	if existingUser != nil {
		return nil, fmt.Errorf("user with this email already exists: %w", repository.ErrUserExists)
	}

	// Hash the password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	// Create the user
	user := &models.User{
		Email:     req.Email,
		Name:      req.Name,
		Password:  string(hashedPassword),
		Balance:   s.economy.StartingBalance,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	return &models.AuthResponse{
		Status: "success",
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	}, nil
}

func (s *DefaultService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	// Get the user
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}

	if user == nil {
		return nil, ErrInvalidCredentials
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// Generate JWT token
	token, err := s.generateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	return &models.AuthResponse{
		Status:    "success",
		UserID:    user.ID,
		Token:     token,
		ExpiresIn: int(s.tokenDuration.Seconds()),
	}, nil
}

// GetProfile withdraws the actor's accrued passive income and reports the balance
func (s *DefaultService) GetProfile(ctx context.Context, actor models.ActorID) (*models.ProfileResponse, error) {
	user, err := s.repo.GetUserByID(ctx, actor)
	if err != nil {
		return nil, err
	}

	income, next := AccruedIncome(user.LastWithdrawal, s.now(), s.economy.IncomeInterval, s.economy.IncomeCap)
	withdrawn := int64(0)
	if next != user.LastWithdrawal {
		err := s.repo.WithdrawIncome(ctx, actor, income, user.LastWithdrawal, next)
		switch {
		case err == nil:
			withdrawn = income
			user.Balance += income
			s.logger.Info("%s withdrew %d from their passive income", user.Name, income)
		case errors.Is(err, repository.ErrNotFound):
			// A concurrent request withdrew first
			if user, err = s.repo.GetUserByID(ctx, actor); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("error withdrawing income: %w", err)
		}
	}

	return &models.ProfileResponse{
		Status:        "success",
		UserID:        user.ID,
		Name:          user.Name,
		Balance:       user.Balance,
		Withdrawn:     withdrawn,
		InTransaction: s.ledger.HasPending(actor),
		Birthday:      user.Birthday,
	}, nil
}

// AccruedIncome returns the passive income earned since last (unix seconds) and the new
// last-withdrawal time. Only whole intervals count and at most limit of them are paid out;
// the remainder beyond the limit is forfeited.
func AccruedIncome(last int64, now time.Time, interval time.Duration, limit int64) (income int64, next int64) {
	step := int64(interval / time.Second)
	if step <= 0 {
		return 0, last
	}
	full := (now.Unix() - last) / step
	if full <= 0 {
		return 0, last
	}
	return min(full, limit), last + full*step
}

// Helper methods
func (s *DefaultService) generateJWT(user *models.User) (string, error) {
	expirationTime := s.now().Add(s.tokenDuration)

	claims := jwt.MapClaims{
		"sub": fmt.Sprintf("%d", user.ID), // subject
		"exp": expirationTime.Unix(),
		"iat": s.now().Unix(), // issued at
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

var _ Service = (*DefaultService)(nil)
