package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var arrivalDatePattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/(0[1-9]|[12][0-9]|3[01])/(19|20)\d{2}$`)

// ValidateArrivalDate checks the MM/DD/YYYY form the portal expects.
// Month must be 01-12, day 01-31, year 1900-2099. Whether the day exists
// in that month is left to the portal.
func ValidateArrivalDate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("date is empty")
	}
	if !arrivalDatePattern.MatchString(s) {
		return fmt.Errorf("invalid date '%s'. Use format MM/DD/YYYY (e.g., 01/15/2024)", s)
	}
	return nil
}

// PromptArrivalDate asks until the operator enters a valid date. Invalid
// input never leaves this loop.
func PromptArrivalDate(ctx context.Context, p Prompter) (string, error) {
	fmt.Println(T("date_format_help"))
	for {
		answer, err := p.ReadLine(ctx, T("date_prompt"))
		if err != nil {
			return "", err
		}
		answer = strings.TrimSpace(answer)

		if answer == "" {
			fmt.Println(T("date_empty"))
			continue
		}
		if err := ValidateArrivalDate(answer); err != nil {
			fmt.Println(T("date_invalid_format"))
			fmt.Println(T("date_examples"))
			continue
		}

		fmt.Printf(T("date_valid")+"\n", answer)
		return answer, nil
	}
}
