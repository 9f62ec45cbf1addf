package domain

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaCUE string

// schemaDefinitions maps each event type to its definition in schema.cue.
var schemaDefinitions = map[EventType]string{
	EventActivityLogged:     "#ActivityLogged",
	EventVoteResolved:       "#VoteResolved",
	EventPotChanged:         "#PotChanged",
	EventSpinResolved:       "#SpinResolved",
	EventReadyStateChanged:  "#ReadyStateChanged",
	EventPunishmentResolved: "#PunishmentResolved",
	EventPlayerEliminated:   "#PlayerEliminated",
	EventDailyReminderDue:   "#DailyReminderDue",
	EventWeeklyTargetHit:    "#WeeklyGroup",
	EventWeeklyTargetMissed: "#WeeklyGroup",
	EventWeeklyGhosted:      "#WeeklyGroup",
	EventWeeklyPerfectWeek:  "#WeeklyGroup",
	EventWeeklyTightRace:    "#WeeklyTightRace",
	EventWeeklyTopPerformer: "#WeeklyTopPerformer",
}

// PayloadValidator checks producer payloads against the embedded CUE schema.
//
// A cue.Context is not safe for concurrent use, so Validate serialises calls.
type PayloadValidator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

var (
	defaultValidator     *PayloadValidator
	defaultValidatorErr  error
	defaultValidatorOnce sync.Once
)

// NewPayloadValidator compiles schema.cue.
func NewPayloadValidator() (*PayloadValidator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}
	return &PayloadValidator{ctx: ctx, schema: schema}, nil
}

// Validate reports ErrInvalidEvent if raw is not a JSON object satisfying the
// definition registered for t.
func (v *PayloadValidator) Validate(t EventType, raw json.RawMessage) error {
	def, ok := schemaDefinitions[t]
	if !ok {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, t)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: %s payload must be a JSON object", ErrInvalidEvent, t)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	data := v.ctx.CompileBytes(trimmed, cue.Filename("payload.json"))
	if err := data.Err(); err != nil {
		return fmt.Errorf("%w: %s payload is not valid JSON: %v", ErrInvalidEvent, t, err)
	}
	unified := v.schema.LookupPath(cue.ParsePath(def)).Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrInvalidEvent, t, err)
	}
	return nil
}

// ValidatePayload validates raw using a process-wide validator.
func ValidatePayload(t EventType, raw json.RawMessage) error {
	defaultValidatorOnce.Do(func() {
		defaultValidator, defaultValidatorErr = NewPayloadValidator()
	})
	if defaultValidatorErr != nil {
		return defaultValidatorErr
	}
	return defaultValidator.Validate(t, raw)
}
