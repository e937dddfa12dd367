package usecase

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"dcode-agent/internal/domain"
	"dcode-agent/internal/integrations/openai"
	"dcode-agent/internal/scenario"
)

const (
	defaultMaxHistoryTurns = 8
	maxResponseRunes       = 300
	truncateBudgetRunes    = 250
)

// Fallback texts for classified remote-call failures. These are shown
// in character and never expose a technical error string.
const (
	fallbackCredentials = "My connection key doesn't seem to be working. Please check the settings!"
	fallbackRateLimited = "Whoa, that was a lot of questions at once! Wait just a moment and try again!"
	fallbackServerError = "Something went wrong on the server side. Please try again in a little while!"
	fallbackGeneric     = "Oops, something glitched! Please try again!"
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type CompletionClient interface {
	Complete(ctx context.Context, model string, messages []domain.ChatMessage, opts openai.CompletionOptions) (string, error)
	Moderate(ctx context.Context, input string) (bool, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// DefaultCompletionOptions is the canonical completion tuning: short
// replies with enough temperature for the character's personality to
// vary, and a triple-newline stop so the model cannot ramble across
// paragraph breaks.
func DefaultCompletionOptions() openai.CompletionOptions {
	return openai.CompletionOptions{
		MaxTokens:        300,
		Temperature:      0.8,
		PresencePenalty:  0.1,
		FrequencyPenalty: 0.1,
		Stop:             []string{"\n\n\n"},
	}
}

// Resolver turns a user submission into the next bot turn. Option
// submissions resolve against the scenario table; free text goes to the
// remote completion service with the scripted fallbacks standing in on
// any failure. Resolver is stateless between calls: all conversational
// context is passed in.
type Resolver struct {
	params          ParamGetter
	llm             CompletionClient
	paramPrefix     string
	maxHistoryTurns int
	completionOpts  openai.CompletionOptions

	cacheMu       sync.RWMutex
	cacheLoaded   bool
	pinnedPersona string
	model         string
}

func NewResolver(p ParamGetter, llm CompletionClient, paramPrefix string, maxHistoryTurns int, opts openai.CompletionOptions) (*Resolver, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: completion client must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if maxHistoryTurns <= 0 {
		maxHistoryTurns = defaultMaxHistoryTurns
	}
	return &Resolver{
		params:          p,
		llm:             llm,
		paramPrefix:     paramPrefix,
		maxHistoryTurns: maxHistoryTurns,
		completionOpts:  opts,
	}, nil
}

// Resolve produces the bot turn for one user submission. It returns an
// error only for contract violations (empty input, unknown kind, the
// terminal sentinel leaking past the state machine); every remote
// failure resolves to an in-character draft.
func (r *Resolver) Resolve(ctx context.Context, destination string, input domain.UserInput, transcript []domain.Turn) (domain.BotTurnDraft, error) {
	value := strings.TrimSpace(input.Value)
	if value == "" {
		return domain.BotTurnDraft{}, NewError(ErrorInvalidInput, "empty_input", nil)
	}
	if input.Kind == domain.InputOption && value == scenario.TerminalOption {
		return domain.BotTurnDraft{}, NewError(ErrorInternal, "terminal_sentinel_in_resolver", nil)
	}

	switch input.Kind {
	case domain.InputOption:
		return r.resolveOption(input.Value), nil
	case domain.InputFreeText:
		return r.resolveFreeText(ctx, destination, value, transcript), nil
	default:
		return domain.BotTurnDraft{}, NewError(ErrorInvalidInput, "unknown_input_kind", nil)
	}
}

// resolveOption is the scripted path: a pure table lookup with the
// default entry substituted on a miss, never an error.
func (r *Resolver) resolveOption(value string) domain.BotTurnDraft {
	entry, ok := scenario.Lookup(value)
	if !ok {
		entry = scenario.Default()
	}
	return draftFromEntry(entry)
}

func (r *Resolver) resolveFreeText(ctx context.Context, destination, value string, transcript []domain.Turn) domain.BotTurnDraft {
	flagged, err := r.llm.Moderate(ctx, value)
	if err != nil {
		return classifyFailure(err)
	}
	if flagged {
		return draftFromEntry(scenario.ModerationDeflection())
	}

	if err := r.ensureConfig(ctx); err != nil {
		return classifyFailure(err)
	}

	history := RemoteHistory(transcript, r.maxHistoryTurns)
	messages := buildPromptMessages(r.pinnedPersona, destination, history, value)

	raw, err := r.llm.Complete(ctx, r.model, messages, r.completionOpts)
	if err != nil {
		return classifyFailure(err)
	}
	return domain.BotTurnDraft{Text: postProcess(raw)}
}

// ensureConfig loads the pinned persona and model name from SSM once
// and caches them for the process lifetime. A load failure is retried
// on the next request.
func (r *Resolver) ensureConfig(ctx context.Context) error {
	r.cacheMu.RLock()
	if r.cacheLoaded {
		r.cacheMu.RUnlock()
		return nil
	}
	r.cacheMu.RUnlock()

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	if r.cacheLoaded {
		return nil
	}

	persona, err := r.params.GetParameter(ctx, r.paramPrefix+"/persona_prompt")
	if err != nil {
		return err
	}
	model, err := r.params.GetParameter(ctx, r.paramPrefix+"/config/openai_model")
	if err != nil {
		return err
	}
	if strings.TrimSpace(model) == "" {
		return errors.New("usecase: openai model parameter is empty")
	}

	r.pinnedPersona = persona
	r.model = model
	r.cacheLoaded = true
	return nil
}

// classifyFailure maps a remote-call failure to its canned in-character
// reply. Only a missing credential re-offers the starter options; the
// apology classes leave the visitor in free-text mode.
func classifyFailure(err error) domain.BotTurnDraft {
	if errors.Is(err, openai.ErrNotConfigured) {
		return draftFromEntry(scenario.FreeTextFallback())
	}

	var statusErr httpStatusCoder
	if errors.As(err, &statusErr) {
		switch code := statusErr.HTTPStatusCode(); {
		case code == 401 || code == 403:
			return domain.BotTurnDraft{Text: fallbackCredentials}
		case code == 429:
			return domain.BotTurnDraft{Text: fallbackRateLimited}
		case code >= 500:
			return domain.BotTurnDraft{Text: fallbackServerError}
		}
	}
	return domain.BotTurnDraft{Text: fallbackGeneric}
}

func draftFromEntry(e scenario.Entry) domain.BotTurnDraft {
	return domain.BotTurnDraft{
		Text:    e.Response,
		Options: append([]string(nil), e.FollowUpOptions...),
	}
}

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// postProcess normalizes a raw completion: excess blank lines are
// collapsed and over-long replies are cut at the last sentence boundary
// under the truncation budget.
func postProcess(raw string) string {
	text := strings.TrimSpace(excessNewlines.ReplaceAllString(strings.TrimSpace(raw), "\n\n"))
	runes := []rune(text)
	if len(runes) <= maxResponseRunes {
		return text
	}

	head := runes[:truncateBudgetRunes]
	for i := len(head) - 1; i >= 0; i-- {
		switch head[i] {
		case '.', '!', '?':
			return strings.TrimSpace(string(head[:i+1]))
		}
	}
	return strings.TrimSpace(string(head)) + "…"
}
