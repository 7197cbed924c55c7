package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

var (
	ErrUnknownRule      = errors.New("validator: unknown rule")
	ErrUnknownTransform = errors.New("validator: unknown transform")
	ErrInvalid          = errors.New("validator: invalid value")
)

// Rule checks one value. Rules other than "required" accept an empty value.
type Rule func(value string) error

var (
	postalRe = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	stateRe  = regexp.MustCompile(`^[A-Z]{2}$`)
	emailRe  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

func required(value string) error {
	if value == "" {
		return fmt.Errorf("%w: value is required", ErrInvalid)
	}
	return nil
}

func digits(value string) error {
	for _, r := range value {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %q is not numeric", ErrInvalid, value)
		}
	}
	return nil
}

func date(value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(models.DateLayout, value); err != nil {
		return fmt.Errorf("%w: %q is not a date", ErrInvalid, value)
	}
	return nil
}

func matching(re *regexp.Regexp, what string) Rule {
	return func(value string) error {
		if value == "" || re.MatchString(value) {
			return nil
		}
		return fmt.Errorf("%w: %q is not a valid %s", ErrInvalid, value, what)
	}
}

func alpha(value string) error {
	for _, r := range value {
		if unicode.IsLetter(r) || r == ' ' || r == '-' || r == '\'' || r == '.' {
			continue
		}
		return fmt.Errorf("%w: %q contains %q", ErrInvalid, value, r)
	}
	return nil
}

func maxLength(n int) Rule {
	return func(value string) error {
		if utf8.RuneCountInString(value) > n {
			return fmt.Errorf("%w: %q is longer than %d characters", ErrInvalid, value, n)
		}
		return nil
	}
}

var namedRules = map[string]Rule{
	"required": required,
	"digits":   digits,
	"date":     date,
	"postal":   matching(postalRe, "postal code"),
	"state":    matching(stateRe, "state code"),
	"email":    matching(emailRe, "email address"),
	"alpha":    alpha,
}

// ParseRule compiles a comma separated rule list such as "required,max=40".
func ParseRule(list string) (Rule, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}

	var rules []Rule
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if name, arg, ok := strings.Cut(part, "="); ok {
			if name != "max" {
				return nil, fmt.Errorf("%w: %s", ErrUnknownRule, part)
			}
			n, err := strconv.Atoi(arg)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%w: %s needs a positive length", ErrUnknownRule, part)
			}
			rules = append(rules, maxLength(n))
			continue
		}
		rule, ok := namedRules[part]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRule, part)
		}
		rules = append(rules, rule)
	}

	return func(value string) error {
		for _, rule := range rules {
			if err := rule(value); err != nil {
				return err
			}
		}
		return nil
	}, nil
}
