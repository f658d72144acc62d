package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"secretcontest/internal/models"
)

// Notifier tells the organizers that the winner left contact details.
type Notifier interface {
	NotifyWinner(ctx context.Context, contact models.WinnerContact) error
}

// MultiNotifier fans out to every channel and succeeds if at least one did.
type MultiNotifier []Notifier

func (m MultiNotifier) NotifyWinner(ctx context.Context, contact models.WinnerContact) error {
	if len(m) == 0 {
		return errors.New("no notification channel configured")
	}
	var errs []error
	delivered := 0
	for _, n := range m {
		if err := n.NotifyWinner(ctx, contact); err != nil {
			log.Printf("[notify][winner] channel %T failed: %v", n, err)
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	if delivered > 0 {
		return nil
	}
	return errors.Join(errs...)
}

func winnerSummary(c models.WinnerContact) string {
	lines := []string{
		"The contest winner has submitted their contact details.",
		"",
		fmt.Sprintf("Name: %s", c.Name),
		fmt.Sprintf("Email: %s", c.Email),
	}
	if c.Phone != nil {
		lines = append(lines, fmt.Sprintf("Phone: %s", *c.Phone))
	}
	return strings.Join(lines, "\n")
}

// runWithContext gives blocking client calls without context support a deadline.
func runWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
