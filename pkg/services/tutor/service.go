package tutor

import (
	"context"
	"errors"
	"strings"

	"github.com/fadedpez/stemverse/internal/logging"
	"github.com/fadedpez/stemverse/internal/types"
)

// ErrModelUnavailable means the hosted model cannot answer right now and the
// keyword table should be used instead.
var ErrModelUnavailable = errors.New("tutor model unavailable")

// Source names the tier that produced an answer
type Source string

const (
	SourceModel   Source = "model"
	SourceKeyword Source = "keyword"
	SourceDefault Source = "default"
)

// DefaultHint is returned when no tier recognizes the question
const DefaultHint = "I’m not sure yet. Try keywords like 'newton 3', 'torque', or 'gear ratio'."

// Model is a hosted language model that can answer free-form questions
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Answer is a tutor response tagged with where it came from
type Answer struct {
	Text     string `json:"text"`
	VideoURL string `json:"video_url,omitempty"`
	Source   Source `json:"source"`
}

type keywordAnswer struct {
	keyword  string
	text     string
	videoURL string
}

// keywords are matched in order as case-insensitive substrings
var keywords = []keywordAnswer{
	{
		keyword:  "newton 3",
		text:     "Newton's Third Law: For every action, there is an equal and opposite reaction.",
		videoURL: "https://www.youtube.com/watch?v=arwP7fK2F6g",
	},
	{
		keyword:  "torque",
		text:     "Torque is a twisting force τ = r × F that causes rotation.",
		videoURL: "https://www.youtube.com/watch?v=0PDwZC40f5I",
	},
	{
		keyword:  "gear ratio",
		text:     "Gear ratio compares teeth or radii; larger ratio increases torque but reduces speed.",
		videoURL: "https://www.youtube.com/watch?v=p5g6zJYy1n8",
	},
}

// Service answers STEM questions
type Service struct {
	model  Model
	logger *logging.Logger
}

// NewService creates a tutor. A nil model means only the keyword table answers.
func NewService(model Model, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default
	}
	return &Service{
		model:  model,
		logger: logger,
	}
}

// Ask resolves a question through the model, then the keyword table, then the default hint
func (s *Service) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, types.NewAppError(types.ErrInvalidArgument, "question is required")
	}

	if s.model != nil {
		text, err := s.model.Generate(ctx, question)
		switch {
		case err == nil && strings.TrimSpace(text) != "":
			return &Answer{Text: strings.TrimSpace(text), Source: SourceModel}, nil
		case err == nil:
			s.logger.Debug("Tutor model returned an empty answer")
		case errors.Is(err, ErrModelUnavailable):
			s.logger.WithError(err).Debug("Tutor model unavailable, using keyword table")
		default:
			return nil, types.WrapError(types.ErrInternalError, "tutor model failed", err)
		}
	}

	return Lookup(question), nil
}

// Lookup answers from the keyword table alone
func Lookup(question string) *Answer {
	q := strings.ToLower(question)
	for _, k := range keywords {
		if strings.Contains(q, k.keyword) {
			return &Answer{Text: k.text, VideoURL: k.videoURL, Source: SourceKeyword}
		}
	}
	return &Answer{Text: DefaultHint, Source: SourceDefault}
}
