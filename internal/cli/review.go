package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/the-model-must-learn/internal/model"
)

// ReviewAction is what the reviewer chose for one example.
type ReviewAction int

// Review actions.
const (
	ReviewSkip ReviewAction = iota
	ReviewApprove
	ReviewReject
	ReviewQuit
)

// ReviewAnswer is a parsed reviewer response.
type ReviewAnswer struct {
	Label  string
	Reason string
	Action ReviewAction
}

// ReviewPrompter walks a reviewer through pending examples one at a time.
type ReviewPrompter struct {
	reader *NonBlockingReader
	writer io.Writer
}

// NewReviewPrompter creates a prompter reading answers from r and writing to w.
func NewReviewPrompter(r io.Reader, w io.Writer) *ReviewPrompter {
	return &ReviewPrompter{
		reader: NewNonBlockingReader(r),
		writer: w,
	}
}

const reviewHelp = "[a]pprove, a <label> to relabel, [r]eject <reason>, [s]kip, [q]uit"

// Prompt shows one example and reads answers until one parses.
// End of input is treated as quit.
func (p *ReviewPrompter) Prompt(ctx context.Context, example model.TrainingExample, position, total int) (ReviewAnswer, error) {
	p.printf("%s\n", RenderBox(
		fmt.Sprintf("Example %d of %d", position, total),
		renderExample(example),
	))

	for {
		p.printf("%s", FormatPrompt(reviewHelp))
		line, err := p.reader.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			return ReviewAnswer{Action: ReviewQuit}, nil
		}
		if err != nil {
			return ReviewAnswer{}, err
		}

		answer, parseErr := ParseReviewAnswer(line)
		if parseErr == nil {
			return answer, nil
		}
		p.printf("%s\n", FormatError(parseErr.Error()))
	}
}

// ParseReviewAnswer interprets one line of reviewer input.
func ParseReviewAnswer(line string) (ReviewAnswer, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ReviewAnswer{}, errors.New("please choose an action")
	}
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch strings.ToLower(fields[0]) {
	case "a", "approve":
		if len(fields) > 2 {
			return ReviewAnswer{}, errors.New("a label is a single word")
		}
		return ReviewAnswer{Action: ReviewApprove, Label: rest}, nil
	case "r", "reject":
		if rest == "" {
			return ReviewAnswer{}, errors.New("a rejection needs a reason")
		}
		return ReviewAnswer{Action: ReviewReject, Reason: rest}, nil
	case "s", "skip":
		return ReviewAnswer{Action: ReviewSkip}, nil
	case "q", "quit":
		return ReviewAnswer{Action: ReviewQuit}, nil
	}
	return ReviewAnswer{}, fmt.Errorf("unknown action %q", fields[0])
}

func renderExample(e model.TrainingExample) string {
	lines := []string{
		BoldStyle.Render(e.Text),
		fmt.Sprintf("label:      %s", e.PredictedLabel),
		fmt.Sprintf("confidence: %s", FormatConfidence(e.Confidence)),
		fmt.Sprintf("entities:   %s", FormatEntities(e.Entities)),
	}
	if e.Priority == model.ExamplePriorityPriority {
		lines = append(lines, WarningStyle.Render("priority review"))
	}
	if e.Source != "" {
		lines = append(lines, SubtleStyle.Render("source: "+e.Source))
	}
	return strings.Join(lines, "\n")
}

func (p *ReviewPrompter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.writer, format, args...)
}
