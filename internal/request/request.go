// Package request defines the validated configuration handed to analyzers.
//
// Every analyzer kind has its own request type sharing Base. Requests are
// plain values: WithInput returns an independent copy, so analyses of the
// files of a folder or the chunks of a split video never share mutable state.
package request

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// ErrConfig marks an invalid or missing request field. It is fatal and is
// reported before any I/O happens.
var ErrConfig = errors.New("invalid configuration")

// Mode is the operating mode of a head-pose request.
type Mode string

const (
	ModeFile Mode = "file"
	ModeLive Mode = "live"
)

// LookMode selects which landmark deviation counts as looking away.
type LookMode string

const (
	LookYaw      LookMode = "yaw"
	LookYawPitch LookMode = "yaw_pitch"
	LookGaze     LookMode = "gaze"
)

// Analyzer type identifiers, also used as output folder names.
const (
	AnalyzerHead   = "head"
	AnalyzerPerson = "person"
)

// Base holds the fields every request shares.
type Base struct {
	Input     string `json:"input"`
	FrameSkip int    `json:"frame_skip" validate:"min=0"`
}

// Head configures the head-pose (look-away) analyzer.
type Head struct {
	Base
	Mode              Mode     `json:"mode" validate:"oneof=file live"`
	LookMode          LookMode `json:"look_mode" validate:"oneof=yaw yaw_pitch gaze"`
	LookAwayThreshold float64  `json:"look_away_threshold" validate:"gt=0,lte=1"`
	// LookAwayDuration is the minimum length in seconds of a look-away
	// interval counted as sustained.
	LookAwayDuration float64 `json:"threshold_look_away_duration" validate:"min=0"`
}

// Person configures the person-count analyzer.
type Person struct {
	Base
	ModelName  string  `json:"model_name" validate:"required,endswith=.pt"`
	Confidence float64 `json:"confidence" validate:"min=0,max=1"`
}

// Video is the top-level request consumed by the analysis manager. It
// carries the settings of every analyzer it may run.
type Video struct {
	Base
	Output            string   `json:"output,omitempty"`
	LookMode          LookMode `json:"look_mode" validate:"oneof=yaw yaw_pitch gaze"`
	LookAwayThreshold float64  `json:"look_away_threshold" validate:"gt=0,lte=1"`
	LookAwayDuration  float64  `json:"threshold_look_away_duration" validate:"min=0"`
	ModelName         string   `json:"model_name" validate:"required,endswith=.pt"`
	Confidence        float64  `json:"confidence" validate:"min=0,max=1"`
	Analyzers         []string `json:"analyzers" validate:"min=1,dive,oneof=head person"`
}

// DefaultVideo returns the defaults used by the file command.
func DefaultVideo() Video {
	return Video{
		Base:              Base{FrameSkip: 1},
		LookMode:          LookYaw,
		LookAwayThreshold: 0.1,
		LookAwayDuration:  5,
		ModelName:         "yolov8n.pt",
		Confidence:        0.5,
		Analyzers:         []string{AnalyzerPerson, AnalyzerHead},
	}
}

// DefaultHead returns a head request for the given input.
func DefaultHead(input string) Head {
	return Head{
		Base:              Base{Input: input, FrameSkip: 5},
		Mode:              ModeFile,
		LookMode:          LookYawPitch,
		LookAwayThreshold: 0.6,
		LookAwayDuration:  5,
	}
}

// DefaultPerson returns a person request for the given input.
func DefaultPerson(input string) Person {
	return Person{
		Base:       Base{Input: input, FrameSkip: 5},
		ModelName:  "yolov8n.pt",
		Confidence: 0.5,
	}
}

// Validate checks the request invariants.
func (h Head) Validate() error {
	if h.Mode == ModeFile && strings.TrimSpace(h.Input) == "" {
		return fmt.Errorf("%w: input path is required in 'file' mode", ErrConfig)
	}
	return validateStruct(h)
}

// Validate checks the request invariants.
func (p Person) Validate() error {
	if strings.TrimSpace(p.Input) == "" {
		return fmt.Errorf("%w: input path is required", ErrConfig)
	}
	return validateStruct(p)
}

// Validate checks the request invariants.
func (v Video) Validate() error {
	if strings.TrimSpace(v.Input) == "" {
		return fmt.Errorf("%w: input path is required", ErrConfig)
	}
	return validateStruct(v)
}

// WithInput returns a copy of the request targeting path.
func (v Video) WithInput(path string) Video {
	out := v
	out.Input = path
	out.Analyzers = slices.Clone(v.Analyzers)
	return out
}

// Head derives the head-pose request for the current input.
func (v Video) Head() Head {
	return Head{
		Base:              v.Base,
		Mode:              ModeFile,
		LookMode:          v.LookMode,
		LookAwayThreshold: v.LookAwayThreshold,
		LookAwayDuration:  v.LookAwayDuration,
	}
}

// Person derives the person-count request for the current input.
func (v Video) Person() Person {
	return Person{
		Base:       v.Base,
		ModelName:  v.ModelName,
		Confidence: v.Confidence,
	}
}

// Validatable is implemented by every request type.
type Validatable interface {
	Validate() error
}

// LoadJSON reads a persisted request from path on top of def and validates it.
func LoadJSON[T Validatable](path string, def T) (T, error) {
	out, err := DecodeJSON(path, def)
	if err != nil {
		return out, err
	}
	if err := out.Validate(); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// DecodeJSON reads a persisted request from path on top of def without
// validating it, for callers that still apply overrides.
func DecodeJSON[T any](path string, def T) (T, error) {
	var zero T

	data, err := os.ReadFile(path)
	if err != nil {
		return zero, fmt.Errorf("%w: read request %s: %v", ErrConfig, path, err)
	}

	out := def
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("%w: parse request %s: %v", ErrConfig, path, err)
	}
	return out, nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func validateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, translateError(fe))
	}
	return fmt.Errorf("%w: %s", ErrConfig, strings.Join(messages, "; "))
}

// translateError converts a validator.FieldError to a human-readable message.
func translateError(fe validator.FieldError) string {
	field := fe.Field()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "endswith":
		return fmt.Sprintf("%s must end with %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
