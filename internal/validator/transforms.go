package validator

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

// TransformContext is what a transform may consult besides the value.
// Existing is nil when no remote record is known.
type TransformContext struct {
	Client    *models.ClientConfig
	Record    *models.StudentRecord
	Existing  map[string]string
	RemoteKey string
	Mode      models.BuildMode
	Today     time.Time
}

func (c *TransformContext) existing() string {
	if c == nil || c.Existing == nil {
		return ""
	}
	return c.Existing[c.RemoteKey]
}

type Transform func(value string, ctx *TransformContext) (string, error)

var inputDateLayouts = []string{
	models.DateLayout,
	"01/02/2006",
	"1/2/2006",
	"20060102",
	"2006/01/02",
}

var barcodeRe = regexp.MustCompile(`^\d{14}$`)

func trim(value string, _ *TransformContext) (string, error) {
	return strings.Join(strings.Fields(value), " "), nil
}

func upper(value string, _ *TransformContext) (string, error) {
	return strings.ToUpper(value), nil
}

func title(value string, _ *TransformContext) (string, error) {
	return cases.Title(language.English).String(strings.ToLower(value)), nil
}

func fold(value string, _ *TransformContext) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		return "", fmt.Errorf("failed to fold %q: %w", value, err)
	}
	return folded, nil
}

func parseDate(value string, _ *TransformContext) (string, error) {
	if value == "" {
		return "", nil
	}
	for _, layout := range inputDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(models.DateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q is not a recognised date", ErrInvalid, value)
}

func onlyDigits(value string, _ *TransformContext) (string, error) {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, value), nil
}

// postal keeps five digit ZIP codes and ZIP+4, dropping other separators.
func postal(value string, ctx *TransformContext) (string, error) {
	d, _ := onlyDigits(value, ctx)
	switch len(d) {
	case 0:
		return "", nil
	case 9:
		return d[:5] + "-" + d[5:], nil
	}
	return d, nil
}

// keepBarcode preserves a 14 digit barcode already issued by the library.
func keepBarcode(value string, ctx *TransformContext) (string, error) {
	if current := ctx.existing(); barcodeRe.MatchString(current) {
		return current, nil
	}
	return value, nil
}

// keepDistrictEmail keeps an existing district address when the incoming
// one is not a district address.
func keepDistrictEmail(pattern *regexp.Regexp) Transform {
	return func(value string, ctx *TransformContext) (string, error) {
		if pattern == nil {
			return value, nil
		}
		current := ctx.existing()
		if current != "" && pattern.MatchString(current) && !pattern.MatchString(value) {
			return current, nil
		}
		return value, nil
	}
}

func ageProfile(value string, ctx *TransformContext) (string, error) {
	if ctx == nil || ctx.Record == nil || ctx.Client == nil || ctx.Record.BirthDate.IsZero() {
		return value, nil
	}
	today := ctx.Today
	if today.IsZero() {
		today = time.Now()
	}
	if AgeOn(ctx.Record.BirthDate, today) >= ctx.Client.AdultAge {
		return ctx.Client.AdultProfile, nil
	}
	return ctx.Client.YouthProfile, nil
}

// pin derives the initial PIN from the last four digits of the student ID.
func pin(value string, ctx *TransformContext) (string, error) {
	d, _ := onlyDigits(value, ctx)
	if d == "" {
		return "", nil
	}
	if len(d) < 4 {
		return strings.Repeat("0", 4-len(d)) + d, nil
	}
	return d[len(d)-4:], nil
}

// AgeOn returns the age in whole years on the given day. A Feb 29 birthday
// falls on Feb 28 in non-leap years.
func AgeOn(birth, today time.Time) int {
	years := today.Year() - birth.Year()
	month, day := birth.Month(), birth.Day()
	if month == time.February && day == 29 && !isLeap(today.Year()) {
		day = 28
	}
	if today.Month() < month || (today.Month() == month && today.Day() < day) {
		years--
	}
	return years
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func namedTransforms(client *models.ClientConfig) (map[string]Transform, error) {
	var pattern *regexp.Regexp
	if client.EmailPattern != "" {
		p, err := regexp.Compile(client.EmailPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid email_pattern: %w", err)
		}
		pattern = p
	}

	return map[string]Transform{
		"trim":        trim,
		"upper":       upper,
		"title":       title,
		"fold":        fold,
		"date":        parseDate,
		"digits":      onlyDigits,
		"postal":      postal,
		"barcode":     keepBarcode,
		"email":       keepDistrictEmail(pattern),
		"age_profile": ageProfile,
		"pin":         pin,
	}, nil
}
