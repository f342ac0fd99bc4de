package news

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/go-playground/validator/v10"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9-]+$`)

// FieldError is one violated rule of the article schema.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindInt
	kindBool
)

// fieldRule describes one field of a JSON object. Zero bounds are unchecked.
type fieldRule struct {
	Name     string
	Kind     fieldKind
	Required bool
	Trim     bool
	MinLen   int
	MaxLen   int
	Min      int
	Max      int
	OneOf    []string
	Pattern  *regexp.Regexp
	PatternM string
	URL      bool
	Default  any
}

// Schema is an ordered list of field rules evaluated against a decoded JSON object.
type Schema []fieldRule

// ArticleSchema is the contract for article submissions.
var ArticleSchema = Schema{
	{Name: "title_de", Kind: kindString, Required: true, Trim: true, MinLen: 1, MaxLen: 200},
	{Name: "title_en", Kind: kindString, Required: true, Trim: true, MinLen: 1, MaxLen: 200},
	{Name: "excerpt_de", Kind: kindString, Required: true, Trim: true, MinLen: 1, MaxLen: 500},
	{Name: "excerpt_en", Kind: kindString, Required: true, Trim: true, MinLen: 1, MaxLen: 500},
	{Name: "content_de", Kind: kindString, Required: true, Trim: true, MinLen: 1, MaxLen: 50000},
	{Name: "content_en", Kind: kindString, Required: true, Trim: true, MinLen: 1, MaxLen: 50000},
	{Name: "category", Kind: kindString, OneOf: models.NewsCategories, Default: models.CategoryGeneral},
	{Name: "slug", Kind: kindString, MaxLen: 200, Pattern: slugRegex,
		PatternM: "must contain only lowercase letters, numbers and hyphens"},
	{Name: "read_time", Kind: kindInt, Min: 1, Max: 999, Default: models.DefaultReadTime},
	{Name: "image_url", Kind: kindString, MaxLen: 2048, URL: true},
	{Name: "author_name", Kind: kindString, MaxLen: 100, Default: models.DefaultAuthorName},
	{Name: "is_published", Kind: kindBool, Default: false},
}

// Validate checks body against the schema and returns the normalized values
// (trimmed strings, ints, bools, defaults applied) together with every violation.
// In partial mode only present fields are checked and no defaults are applied.
// An absent or null optional field is treated as not provided.
func (s Schema) Validate(body map[string]any, partial bool) (map[string]any, []FieldError) {
	values := make(map[string]any, len(s))
	var errs []FieldError

	for _, rule := range s {
		raw, present := body[rule.Name]
		if !present || raw == nil {
			if rule.Required && !partial {
				errs = append(errs, FieldError{rule.Name, "is required"})
			} else if rule.Default != nil && !partial {
				values[rule.Name] = rule.Default
			}
			continue
		}

		value, fieldErrs := rule.check(raw)
		if len(fieldErrs) > 0 {
			errs = append(errs, fieldErrs...)
			continue
		}
		values[rule.Name] = value
	}

	return values, errs
}

func (r fieldRule) check(raw any) (any, []FieldError) {
	switch r.Kind {
	case kindString:
		return r.checkString(raw)
	case kindInt:
		return r.checkInt(raw)
	case kindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, []FieldError{{r.Name, "must be a boolean"}}
		}
		return b, nil
	}
	return nil, []FieldError{{r.Name, "unsupported field"}}
}

var validate = validator.New()

// stringTags lists the validator tags for a string field. Each tag is
// evaluated on its own so every violated bound is reported.
func (r fieldRule) stringTags() []string {
	var tags []string
	if r.MinLen > 0 {
		tags = append(tags, "min="+strconv.Itoa(r.MinLen))
	}
	if r.MaxLen > 0 {
		tags = append(tags, "max="+strconv.Itoa(r.MaxLen))
	}
	if len(r.OneOf) > 0 {
		tags = append(tags, "oneof="+strings.Join(r.OneOf, " "))
	}
	if r.URL {
		tags = append(tags, "url")
	}
	return tags
}

func (r fieldRule) intTags() []string {
	tags := []string{"gte=" + strconv.Itoa(r.Min)}
	if r.Max > 0 {
		tags = append(tags, "lte="+strconv.Itoa(r.Max))
	}
	return tags
}

// violations runs each tag against value and maps failures to FieldErrors.
func (r fieldRule) violations(value any, tags []string) []FieldError {
	var errs []FieldError
	for _, tag := range tags {
		err := validate.Var(value, tag)
		if err == nil {
			continue
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			errs = append(errs, FieldError{r.Name, "is invalid"})
			continue
		}
		for _, fe := range verrs {
			errs = append(errs, FieldError{r.Name, message(fe)})
		}
	}
	return errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("must contain at least %s character(s)", fe.Param())
	case "max":
		return fmt.Sprintf("must contain at most %s character(s)", fe.Param())
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "url":
		return "must be a valid URL"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	}
	return "failed " + fe.Tag() + " check"
}

func (r fieldRule) checkString(raw any) (any, []FieldError) {
	s, ok := raw.(string)
	if !ok {
		return nil, []FieldError{{r.Name, "must be a string"}}
	}
	if r.Trim {
		s = strings.TrimSpace(s)
	}

	errs := r.violations(s, r.stringTags())
	if r.Pattern != nil && !r.Pattern.MatchString(s) {
		errs = append(errs, FieldError{r.Name, r.PatternM})
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return s, nil
}

func (r fieldRule) checkInt(raw any) (any, []FieldError) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, []FieldError{{r.Name, "must be a number"}}
		}
		f = parsed
	default:
		return nil, []FieldError{{r.Name, "must be a number"}}
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return nil, []FieldError{{r.Name, "must be an integer"}}
	}

	if errs := r.violations(f, r.intTags()); len(errs) > 0 {
		return nil, errs
	}
	return int(f), nil
}

// Input is a validated article submission.
type Input struct {
	TitleDE     string
	TitleEN     string
	ExcerptDE   string
	ExcerptEN   string
	ContentDE   string
	ContentEN   string
	Category    string
	Slug        string
	ReadTime    int
	ImageURL    *string
	AuthorName  string
	IsPublished bool
}

// ParseInput validates a full submission. The returned errors list every violated rule.
func ParseInput(body map[string]any) (*Input, []FieldError) {
	values, errs := ArticleSchema.Validate(body, false)
	if len(errs) > 0 {
		return nil, errs
	}

	in := &Input{
		TitleDE:     values["title_de"].(string),
		TitleEN:     values["title_en"].(string),
		ExcerptDE:   values["excerpt_de"].(string),
		ExcerptEN:   values["excerpt_en"].(string),
		ContentDE:   values["content_de"].(string),
		ContentEN:   values["content_en"].(string),
		Category:    values["category"].(string),
		ReadTime:    values["read_time"].(int),
		AuthorName:  values["author_name"].(string),
		IsPublished: values["is_published"].(bool),
	}
	if slug, ok := values["slug"].(string); ok {
		in.Slug = slug
	}
	if img, ok := values["image_url"].(string); ok {
		in.ImageURL = &img
	}
	return in, nil
}

// Article builds the row to insert. Publication is stamped with now only when published.
func (in *Input) Article(slug string, now time.Time) models.NewsArticle {
	article := models.NewsArticle{
		Slug:        slug,
		Category:    in.Category,
		TitleDE:     in.TitleDE,
		TitleEN:     in.TitleEN,
		ExcerptDE:   in.ExcerptDE,
		ExcerptEN:   in.ExcerptEN,
		ContentDE:   in.ContentDE,
		ContentEN:   in.ContentEN,
		ImageURL:    in.ImageURL,
		ReadTime:    in.ReadTime,
		AuthorName:  in.AuthorName,
		IsPublished: in.IsPublished,
		CreatedAt:   now,
	}
	if in.IsPublished {
		published := now
		article.PublishedAt = &published
	}
	return article
}
