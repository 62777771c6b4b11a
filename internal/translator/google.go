package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/valpere/pagetran/internal"
)

// CloudModels are the Cloud Translation models, best first.
var CloudModels = []string{"nmt", "base"}

var requestLineRe = regexp.MustCompile(`^\[(\d+)\](.*)$`)

// CloudBackend translates through the Google Cloud Translation API. It has no
// prompt, so the style and domain instructions are ignored and each numbered
// line is sent as a separate input.
type CloudBackend struct {
	credentials string
	target      language.Tag
}

func NewCloudBackend(credentials string) *CloudBackend {
	return &CloudBackend{
		credentials: credentials,
		target:      language.Make(internal.TargetLang),
	}
}

func (s *CloudBackend) Name() string {
	return "cloud"
}

func (s *CloudBackend) Generate(ctx context.Context, model string, req Request) (string, error) {
	opts := []option.ClientOption{}
	switch {
	case s.credentials != "":
		opts = append(opts, option.WithCredentialsFile(s.credentials))
	case req.APIKey != "":
		opts = append(opts, option.WithAPIKey(req.APIKey))
	default:
		return "", ErrMissingAPIKey
	}

	ids, inputs := splitRequestLines(req.Text)
	if len(inputs) == 0 {
		return "", &Error{Kind: KindMalformed, Model: model, Message: "nothing to translate"}
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return "", &Error{Kind: KindNetwork, Model: model, Message: fmt.Sprintf("failed to create client: %v", err), Err: err}
	}
	defer client.Close()

	translations, err := client.Translate(ctx, inputs, s.target, &translate.Options{
		Format: translate.Text,
		Model:  model,
	})
	if err != nil {
		return "", classifyCloud(model, err)
	}
	if len(translations) != len(inputs) {
		return "", &Error{Kind: KindMalformed, Model: model, Message: fmt.Sprintf("expected %d translations, got %d", len(inputs), len(translations))}
	}

	var sb strings.Builder
	for i, tr := range translations {
		if ids[i] != "" {
			sb.WriteString("[" + ids[i] + "]")
		}
		sb.WriteString(tr.Text)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// Stream has no incremental transport here; the whole result is delivered
// as a single increment.
func (s *CloudBackend) Stream(ctx context.Context, model string, req Request, onPartial func(string)) (string, error) {
	text, err := s.Generate(ctx, model, req)
	if err != nil {
		return "", err
	}
	if onPartial != nil {
		onPartial(text)
	}
	return text, nil
}

// splitRequestLines separates "[n]text" lines into IDs and texts. Lines
// without a prefix keep an empty ID.
func splitRequestLines(text string) (ids, inputs []string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if line == "" {
			continue
		}
		if m := requestLineRe.FindStringSubmatch(line); m != nil {
			ids = append(ids, m[1])
			inputs = append(inputs, m[2])
			continue
		}
		ids = append(ids, "")
		inputs = append(inputs, line)
	}
	return ids, inputs
}

func classifyCloud(model string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &Error{Kind: KindNetwork, Model: model, Message: err.Error(), Err: err}
	}

	te := &Error{Kind: KindUnknown, Model: model, Code: gerr.Code, Message: gerr.Message, Err: err}
	switch gerr.Code {
	case http.StatusNotFound:
		te.Kind = KindNotFound
	case http.StatusTooManyRequests:
		te.Kind = KindQuotaExceeded
	case http.StatusForbidden:
		if strings.Contains(strings.ToLower(gerr.Message), "quota") {
			te.Kind = KindQuotaExceeded
		}
	}
	return te
}
