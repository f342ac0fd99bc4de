package news

import (
	"strings"
	"testing"
	"time"

	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBody() map[string]any {
	return map[string]any{
		"title_de":   "Test",
		"title_en":   "Test",
		"excerpt_de": "E",
		"excerpt_en": "E",
		"content_de": "C",
		"content_en": "C",
	}
}

func fields(errs []FieldError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Field
	}
	return out
}

func TestParseInputDefaults(t *testing.T) {
	in, errs := ParseInput(validBody())
	require.Empty(t, errs)

	assert.Equal(t, models.CategoryGeneral, in.Category)
	assert.Equal(t, 5, in.ReadTime)
	assert.Equal(t, "Berliner Pub", in.AuthorName)
	assert.False(t, in.IsPublished)
	assert.Nil(t, in.ImageURL)
	assert.Empty(t, in.Slug)
}

func TestParseInputTrimsRequiredStrings(t *testing.T) {
	body := validBody()
	body["title_en"] = "   Summer Party  "

	in, errs := ParseInput(body)
	require.Empty(t, errs)
	assert.Equal(t, "Summer Party", in.TitleEN)
}

func TestParseInputMissingRequiredField(t *testing.T) {
	for _, field := range []string{"title_de", "title_en", "excerpt_de", "excerpt_en", "content_de", "content_en"} {
		t.Run(field, func(t *testing.T) {
			body := validBody()
			delete(body, field)

			_, errs := ParseInput(body)
			require.Len(t, errs, 1)
			assert.Equal(t, field, errs[0].Field)
		})
	}
}

func TestParseInputWhitespaceOnlyIsTooShort(t *testing.T) {
	body := validBody()
	body["excerpt_de"] = "   "

	_, errs := ParseInput(body)
	require.Len(t, errs, 1)
	assert.Equal(t, "excerpt_de", errs[0].Field)
	assert.Contains(t, errs[0].Message, "at least 1")
}

func TestParseInputReportsEveryViolation(t *testing.T) {
	body := map[string]any{
		"title_de":     strings.Repeat("a", 201),
		"title_en":     42,
		"excerpt_de":   "E",
		"excerpt_en":   "E",
		"content_de":   "C",
		"category":     "sports",
		"slug":         "Not Valid!" + strings.Repeat("x", 200),
		"read_time":    1000,
		"image_url":    "not-a-url",
		"author_name":  strings.Repeat("b", 101),
		"is_published": "yes",
	}

	_, errs := ParseInput(body)

	assert.Equal(t, []string{
		"title_de",
		"title_en",
		"content_en",
		"category",
		"slug", "slug",
		"read_time",
		"image_url",
		"author_name",
		"is_published",
	}, fields(errs))
}

func TestParseInputBounds(t *testing.T) {
	cases := []struct {
		name  string
		field string
		value any
		ok    bool
	}{
		{"title at max", "title_de", strings.Repeat("ä", 200), true},
		{"title over max", "title_de", strings.Repeat("ä", 201), false},
		{"excerpt at max", "excerpt_en", strings.Repeat("e", 500), true},
		{"excerpt over max", "excerpt_en", strings.Repeat("e", 501), false},
		{"content at max", "content_en", strings.Repeat("c", 50000), true},
		{"content over max", "content_en", strings.Repeat("c", 50001), false},
		{"read_time min", "read_time", float64(1), true},
		{"read_time zero", "read_time", float64(0), false},
		{"read_time max", "read_time", float64(999), true},
		{"read_time fraction", "read_time", 2.5, false},
		{"read_time string", "read_time", "5", false},
		{"slug ok", "slug", "happy-hour-2026", true},
		{"slug uppercase", "slug", "Happy", false},
		{"slug empty", "slug", "", false},
		{"slug at max", "slug", strings.Repeat("s", 200), true},
		{"image https", "image_url", "https://cdn.example.com/a.jpg", true},
		{"image no scheme", "image_url", "example.com/a.jpg", false},
		{"image too long", "image_url", "https://example.com/" + strings.Repeat("a", 2048), false},
		{"category events", "category", "events", true},
		{"category menu", "category", "menu", true},
		{"published true", "is_published", true, true},
		{"null optional", "image_url", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := validBody()
			body[tc.field] = tc.value
			_, errs := ParseInput(body)
			if tc.ok {
				assert.Empty(t, errs)
			} else {
				require.NotEmpty(t, errs)
				assert.Equal(t, tc.field, errs[0].Field)
			}
		})
	}
}

func TestFieldErrorMessages(t *testing.T) {
	body := validBody()
	body["title_de"] = strings.Repeat("ä", 201)
	body["excerpt_en"] = "   "
	body["category"] = "sports"
	body["read_time"] = float64(0)
	body["image_url"] = "example.com/a.jpg"

	_, errs := ParseInput(body)

	assert.Equal(t, []FieldError{
		{"title_de", "must contain at most 200 character(s)"},
		{"excerpt_en", "must contain at least 1 character(s)"},
		{"category", "must be one of: events, menu, general"},
		{"read_time", "must be at least 1"},
		{"image_url", "must be a valid URL"},
	}, errs)

	body = validBody()
	body["read_time"] = float64(1000)
	_, errs = ParseInput(body)
	assert.Equal(t, []FieldError{{"read_time", "must be at most 999"}}, errs)
}

func TestValidationIsDeterministic(t *testing.T) {
	body := map[string]any{"title_de": "", "image_url": "nope"}

	_, first := ParseInput(body)
	_, second := ParseInput(body)
	assert.Equal(t, first, second)
}

func TestPartialValidation(t *testing.T) {
	values, errs := ArticleSchema.Validate(map[string]any{"read_time": float64(7)}, true)
	require.Empty(t, errs)
	assert.Equal(t, map[string]any{"read_time": 7}, values)

	_, errs = ArticleSchema.Validate(map[string]any{"title_en": ""}, true)
	assert.Equal(t, []string{"title_en"}, fields(errs))
}

func TestDecodeBody(t *testing.T) {
	body, ok := DecodeBody([]byte(`{"read_time": 5}`))
	require.True(t, ok)
	require.NotNil(t, body)

	_, errs := ArticleSchema.Validate(body, true)
	assert.Empty(t, errs)

	_, ok = DecodeBody([]byte(`{"title_de":`))
	assert.False(t, ok)

	_, ok = DecodeBody([]byte(``))
	assert.False(t, ok)

	for _, raw := range []string{`{"read_time": 5}}`, `{"read_time": 5} ]`, `{} {}`, "{\"title_de\": \"\xff\"}"} {
		_, ok = DecodeBody([]byte(raw))
		assert.False(t, ok, "body %q", raw)
	}

	body, ok = DecodeBody([]byte(" {\"title_de\": \"Kneipe\"} \n"))
	require.True(t, ok)
	assert.Equal(t, "Kneipe", body["title_de"])

	body, ok = DecodeBody([]byte(`["not", "an", "object"]`))
	assert.True(t, ok)
	assert.Nil(t, body)
}

func TestArticlePublicationStamp(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	in, _ := ParseInput(validBody())
	draft := in.Article("test", now)
	assert.Nil(t, draft.PublishedAt)

	in.IsPublished = true
	published := in.Article("test", now)
	require.NotNil(t, published.PublishedAt)
	assert.Equal(t, now, *published.PublishedAt)
}
