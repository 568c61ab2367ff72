package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/rongwang/shinobu-server/internal/repository"
)

// GetUser shows another user's balance and the income they have yet to withdraw. Nothing is withdrawn.
func (s *DefaultService) GetUser(ctx context.Context, id models.ActorID) (*models.UserResponse, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	income, _ := AccruedIncome(user.LastWithdrawal, s.now(), s.economy.IncomeInterval, s.economy.IncomeCap)
	return &models.UserResponse{
		Status:      "success",
		UserID:      user.ID,
		Name:        user.Name,
		Balance:     user.Balance,
		Unwithdrawn: income,
	}, nil
}

// SetBirthday records the actor's date of birth. It can only be set once.
func (s *DefaultService) SetBirthday(ctx context.Context, actor models.ActorID, req models.BirthdayRequest) (*models.BirthdayResponse, error) {
	now := s.now()
	born, err := time.Parse(time.DateOnly, req.Birthday)
	if err != nil || born.Format(time.DateOnly) > now.Format(time.DateOnly) {
		return nil, fmt.Errorf("birthday %q: %w", req.Birthday, ErrInvalidBirthday)
	}

	user, err := s.repo.GetUserByID(ctx, actor)
	if err != nil {
		return nil, err
	}
	if user.Birthday != nil {
		return nil, ErrBirthdayAlreadySet
	}

	next := NextBirthday(born, now)
	err = s.repo.SetBirthday(ctx, actor, next)
	if errors.Is(err, repository.ErrNotFound) {
		// Set by a concurrent request
		return nil, ErrBirthdayAlreadySet
	}
	if err != nil {
		return nil, fmt.Errorf("error setting birthday: %w", err)
	}

	return &models.BirthdayResponse{
		Status:       "success",
		Message:      "Birthday saved",
		NextBirthday: next,
	}, nil
}

// GrantBirthdayGifts credits the birthday gift to every user whose birthday is today and moves their
// birthday a year ahead. Birthdays missed while nobody was checking are moved ahead without a gift.
// It returns the number of users gifted.
func (s *DefaultService) GrantBirthdayGifts(ctx context.Context, today time.Time) (int, error) {
	day := today.Format(time.DateOnly)
	users, err := s.repo.ListBirthdaysDue(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("error listing birthdays: %w", err)
	}

	gifted := 0
	for _, user := range users {
		prev := *user.Birthday
		born, err := time.Parse(time.DateOnly, prev)
		if err != nil {
			s.logger.Error("user %d has an unreadable birthday %q", user.ID, prev)
			continue
		}

		amount := int64(0)
		if prev == day {
			amount = s.economy.BirthdayGift
		}
		next := NextBirthday(born, today.AddDate(0, 0, 1))

		err = s.repo.GrantBirthdayGift(ctx, user.ID, amount, prev, next)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// Another check got there first
			continue
		case err != nil:
			return gifted, fmt.Errorf("error granting birthday gift to user %d: %w", user.ID, err)
		}

		if amount > 0 {
			gifted++
			s.logger.Info("gifted %d to %s as a birthday present", amount, user.Name)
		}
	}
	return gifted, nil
}

// NextBirthday returns the first anniversary of born on or after from, formatted YYYY-MM-DD.
// February 29 is celebrated on February 28 in common years.
func NextBirthday(born, from time.Time) string {
	first := from.Format(time.DateOnly)
	for year := from.Year(); ; year++ {
		day := born.Day()
		if born.Month() == time.February && day == 29 && !isLeap(year) {
			day = 28
		}
		next := time.Date(year, born.Month(), day, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
		if next >= first {
			return next
		}
	}
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
