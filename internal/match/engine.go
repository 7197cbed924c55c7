package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ThiagoRGoveia/patron-ingestion/internal/directory"
	"github.com/ThiagoRGoveia/patron-ingestion/internal/models"
)

// ErrNoEvidence means every strategy that ran failed at the transport level,
// so the record can be neither matched nor safely created.
var ErrNoEvidence = errors.New("match: every search strategy failed")

const (
	uniqueProbeCap   = 2
	defaultResultCap = 20
	birthDateLayout  = "20060102"
)

// Searcher is the part of the directory client matching needs.
type Searcher interface {
	Search(ctx context.Context, token, index, value string, opts directory.SearchOptions) (*directory.SearchResult, error)
}

type Options struct {
	ResultCap      int
	FieldsToReturn []string
	Logger         *slog.Logger
}

// Engine resolves incoming records against the directory. It holds no
// per-record state.
type Engine struct {
	searcher  Searcher
	token     string
	resultCap int
	fields    []string
	logger    *slog.Logger
}

func NewEngine(searcher Searcher, token string, opts Options) *Engine {
	if opts.ResultCap <= 0 {
		opts.ResultCap = defaultResultCap
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		searcher:  searcher,
		token:     token,
		resultCap: opts.ResultCap,
		fields:    opts.FieldsToReturn,
		logger:    opts.Logger,
	}
}

type resolution struct {
	record    *models.StudentRecord
	attempted int
	errs      []error
}

func (r *resolution) fail(reason models.MatchReason, err error) {
	r.errs = append(r.errs, &models.AppError{
		Row:      r.record.Row,
		Strategy: string(reason),
		Message:  "search failed",
		Err:      err,
	})
}

// Resolve runs the strategies in order and returns at the first one that
// finds exactly one patron. The record is never modified.
func (e *Engine) Resolve(ctx context.Context, record *models.StudentRecord) (models.MatchOutcome, error) {
	res := &resolution{record: record}

	if outcome, ok := e.unique(ctx, res, models.ReasonAltID, directory.IndexAltID, record.AlternateID); ok {
		return outcome, nil
	}

	if record.HasEmail() {
		if outcome, ok := e.unique(ctx, res, models.ReasonEmail, directory.IndexEmail, *record.Email); ok {
			return outcome, nil
		}
	}

	if outcome, ok := e.unique(ctx, res, models.ReasonID, directory.IndexID, record.Barcode); ok {
		return outcome, nil
	}

	candidates, err := e.birthDateAndStreet(ctx, record)
	res.attempted++
	if err != nil {
		res.fail(models.ReasonDOBStreet, err)
		e.logger.Warn("search failed", "row", record.Row, "barcode", record.Barcode,
			"strategy", models.ReasonDOBStreet, "error", err)
	}

	if len(res.errs) == res.attempted {
		return models.MatchOutcome{SearchErrors: res.errs},
			fmt.Errorf("%w: %w", ErrNoEvidence, errors.Join(res.errs...))
	}

	switch len(candidates) {
	case 0:
		return models.MatchOutcome{Kind: models.OutcomeCreate, SearchErrors: res.errs}, nil
	case 1:
		return models.MatchOutcome{
			Kind:         models.OutcomeUpdate,
			Key:          candidates[0].Key,
			Reason:       models.ReasonDOBStreet,
			Candidates:   candidates,
			SearchErrors: res.errs,
		}, nil
	}
	return models.MatchOutcome{
		Kind:         models.OutcomeAmbiguous,
		Reason:       models.ReasonDOBStreet,
		Candidates:   candidates,
		SearchErrors: res.errs,
	}, nil
}

// unique runs one single-index strategy. It is decisive only when the
// service reports exactly one result and that result has a key.
func (e *Engine) unique(ctx context.Context, res *resolution, reason models.MatchReason, index, value string) (models.MatchOutcome, bool) {
	res.attempted++
	result, err := e.searcher.Search(ctx, e.token, index, value, directory.SearchOptions{
		ResultCap:      uniqueProbeCap,
		FieldsToReturn: e.fields,
	})
	if err != nil {
		res.fail(reason, err)
		e.logger.Warn("search failed", "row", res.record.Row, "barcode", res.record.Barcode,
			"strategy", reason, "error", err)
		return models.MatchOutcome{}, false
	}

	if result == nil || result.TotalResults != 1 || len(result.Results) == 0 || result.Results[0].Key == "" {
		if result != nil && result.TotalResults > 1 {
			e.logger.Debug("strategy not decisive", "row", res.record.Row, "strategy", reason, "total", result.TotalResults)
		}
		return models.MatchOutcome{}, false
	}

	match := result.Results[0]
	return models.MatchOutcome{
		Kind:         models.OutcomeUpdate,
		Key:          match.Key,
		Reason:       reason,
		Candidates:   []models.MatchCandidate{match},
		SearchErrors: res.errs,
	}, true
}

// birthDateAndStreet searches both indexes and keeps the patrons present in
// both, compared on key only. Candidates keep the birth date result order.
func (e *Engine) birthDateAndStreet(ctx context.Context, record *models.StudentRecord) ([]models.MatchCandidate, error) {
	opts := directory.SearchOptions{ResultCap: e.resultCap, FieldsToReturn: e.fields}

	byBirthDate, err := e.searcher.Search(ctx, e.token, directory.IndexBirthDate, record.BirthDate.Format(birthDateLayout), opts)
	if err != nil {
		return nil, fmt.Errorf("birth date search: %w", err)
	}
	byStreet, err := e.searcher.Search(ctx, e.token, directory.IndexStreet, SearchStreet(record.Street), opts)
	if err != nil {
		return nil, fmt.Errorf("street search: %w", err)
	}

	if byBirthDate == nil || byStreet == nil {
		return nil, nil
	}
	common := keys(byBirthDate).Intersect(keys(byStreet))

	seen := mapset.NewThreadUnsafeSet[string]()
	var candidates []models.MatchCandidate
	for _, candidate := range byBirthDate.Results {
		if common.Contains(candidate.Key) && seen.Add(candidate.Key) {
			candidates = append(candidates, candidate)
		}
	}
	return candidates, nil
}

func keys(result *directory.SearchResult) mapset.Set[string] {
	set := mapset.NewThreadUnsafeSet[string]()
	if result == nil {
		return set
	}
	for _, candidate := range result.Results {
		if candidate.Key != "" {
			set.Add(candidate.Key)
		}
	}
	return set
}

// SearchStreet prepares a street for the street index. Unit markers and
// apostrophes are dropped in place ("Apt#4" becomes "Apt4", "O'Neil" becomes
// "ONeil"). Other punctuation separates words.
func SearchStreet(street string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '#' || r == '\'' || r == '’':
			return -1
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			return r
		}
		return ' '
	}, street)
	return strings.Join(strings.Fields(cleaned), " ")
}

// FieldsToReturn lists the remote fields a search must include so that
// transforms can see the existing values.
func FieldsToReturn(client *models.ClientConfig) []string {
	fields := mapset.NewThreadUnsafeSet("barcode", "firstName", "lastName")
	for name, field := range client.Fields {
		if field.Type == models.FieldTypeAddress {
			fields.Add(models.AddressListField)
			continue
		}
		fields.Add(name)
	}
	list := fields.ToSlice()
	sort.Strings(list)
	return list
}
