package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/models"
)

// Required CSV columns. Any other column lands in Review.Metadata.
const (
	columnProductTitle = "product_title"
	columnReview       = "review"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Load parses raw CSV rows into reviews, one per row, preserving input
// order. The first row must be a header naming product_title and review.
// Any malformed row rejects the whole batch with
// *models.MalformedRecordError; nothing partial is returned.
//
// Load is deterministic: the same input produces the same reviews,
// including their content-derived IDs.
func (s *Service) Load(r io.Reader) ([]*models.Review, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &models.MalformedRecordError{Line: 1, Reason: "input is empty, expected a header row"}
	}
	if err != nil {
		return nil, csvReadError(err)
	}

	columns := make([]string, len(header))
	titleIdx, reviewIdx := -1, -1
	for i, name := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(name))
		switch columns[i] {
		case columnProductTitle:
			titleIdx = i
		case columnReview:
			reviewIdx = i
		}
	}
	if titleIdx < 0 {
		return nil, &models.MalformedRecordError{Line: 1, Field: columnProductTitle, Reason: "is missing from the header"}
	}
	if reviewIdx < 0 {
		return nil, &models.MalformedRecordError{Line: 1, Field: columnReview, Reason: "is missing from the header"}
	}

	var converter *md.Converter
	if s.config.NormalizeHTML {
		converter = md.NewConverter("", true, nil)
	}

	var reviews []*models.Review
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvReadError(err)
		}

		line, _ := reader.FieldPos(0)
		review, err := s.rowToReview(columns, record, line, titleIdx, reviewIdx, converter)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}

	s.logger.Debug().
		Int("reviews", len(reviews)).
		Int("columns", len(columns)).
		Msg("Parsed review CSV")

	return reviews, nil
}

// rowToReview converts one CSV record into a Review
func (s *Service) rowToReview(columns, record []string, line, titleIdx, reviewIdx int, converter *md.Converter) (*models.Review, error) {
	title := strings.TrimSpace(record[titleIdx])
	if title == "" {
		return nil, &models.MalformedRecordError{Line: line, Field: columnProductTitle, Reason: "is empty"}
	}
	body := strings.TrimSpace(record[reviewIdx])
	if body == "" {
		return nil, &models.MalformedRecordError{Line: line, Field: columnReview, Reason: "is empty"}
	}

	if converter != nil {
		body = normalizeReviewText(converter, body, s.logger)
	}

	var metadata map[string]string
	for i, value := range record {
		if i == titleIdx || i == reviewIdx || i >= len(columns) || columns[i] == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if metadata == nil {
			metadata = make(map[string]string)
		}
		metadata[columns[i]] = value
	}

	now := time.Now().UTC()
	return &models.Review{
		ID:           common.ReviewIDFromContent(title, body),
		ProductTitle: title,
		ReviewText:   body,
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// csvReadError converts csv parser errors into the ingestion error type,
// keeping the line number the parser reports.
func csvReadError(err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return &models.MalformedRecordError{Line: parseErr.Line, Reason: parseErr.Err.Error()}
	}
	return fmt.Errorf("failed to read CSV: %w", err)
}

// normalizeReviewText converts embedded HTML (<br />, <b>, ...) to plain
// markdown with fallback to tag stripping on conversion errors. Review
// bodies in public data sets mix HTML and plain text freely.
func normalizeReviewText(converter *md.Converter, text string, logger arbor.ILogger) string {
	if !strings.Contains(text, "<") {
		return text
	}

	converted, err := converter.ConvertString(text)
	if err != nil {
		logger.Warn().Err(err).Str("fallback", "stripHTMLTags").Msg("HTML to markdown conversion failed, using fallback")
		return stripHTMLTags(text)
	}

	converted = strings.TrimSpace(converted)
	if converted == "" {
		return stripHTMLTags(text)
	}
	return converted
}

// stripHTMLTags removes basic HTML tags for fallback cases
func stripHTMLTags(htmlStr string) string {
	stripped := htmlTagRe.ReplaceAllString(htmlStr, "")
	cleaned := whitespaceRe.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
