// Package task defines the dispatch plane's central record: a unit of
// generative work tracked from submission through lease, progress, and
// completion. Types here are transport- and storage-agnostic; persistence
// lives behind the Store port in store.go.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownKind is returned when a tagged union's discriminator does not
// match any known variant. Callers should treat this as a soft decode
// failure, not a panic, so that a newer writer's task kinds don't crash an
// older reader (design notes: polymorphic task params and status).
var ErrUnknownKind = errors.New("task: unknown kind")

// ParamsKind discriminates the TaskParams tagged union.
type ParamsKind string

const (
	ParamsImageGeneration ParamsKind = "image_generation"
	ParamsChatMessageGen  ParamsKind = "chat_message_generation"
)

// ImageGenerationParams is the payload for an image-generation task.
type ImageGenerationParams struct {
	Prompt         string `json:"prompt"`
	Iterations     int    `json:"iterations"`
	NumberOfImages int    `json:"number_of_images"`
}

// ChatMessageGenerationParams is the (currently empty) payload for a
// chat-style task; the conversation itself lives in the chat_messages table.
type ChatMessageGenerationParams struct{}

// Params is the tagged union of task parameter variants, carrying an
// explicit "kind" discriminator so it remains forward-compatible when new
// task kinds are added.
type Params struct {
	Kind            ParamsKind
	ImageGeneration *ImageGenerationParams
	ChatMessageGen  *ChatMessageGenerationParams
}

// NewImageGenerationParams builds a Params wrapping an image-generation
// variant.
func NewImageGenerationParams(prompt string, iterations, numberOfImages int) Params {
	return Params{
		Kind: ParamsImageGeneration,
		ImageGeneration: &ImageGenerationParams{
			Prompt:         prompt,
			Iterations:     iterations,
			NumberOfImages: numberOfImages,
		},
	}
}

// NewChatMessageGenerationParams builds a Params wrapping a chat variant.
func NewChatMessageGenerationParams() Params {
	return Params{Kind: ParamsChatMessageGen, ChatMessageGen: &ChatMessageGenerationParams{}}
}

type paramsWire struct {
	Kind           ParamsKind `json:"kind"`
	Prompt         string     `json:"prompt,omitempty"`
	Iterations     int        `json:"iterations,omitempty"`
	NumberOfImages int        `json:"number_of_images,omitempty"`
}

// MarshalJSON encodes Params with an explicit "kind" tag.
func (p Params) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case ParamsImageGeneration:
		if p.ImageGeneration == nil {
			return nil, fmt.Errorf("task: image_generation params missing payload")
		}
		return json.Marshal(paramsWire{
			Kind:           ParamsImageGeneration,
			Prompt:         p.ImageGeneration.Prompt,
			Iterations:     p.ImageGeneration.Iterations,
			NumberOfImages: p.ImageGeneration.NumberOfImages,
		})
	case ParamsChatMessageGen:
		return json.Marshal(paramsWire{Kind: ParamsChatMessageGen})
	default:
		return nil, fmt.Errorf("task: marshal params: %w: %q", ErrUnknownKind, p.Kind)
	}
}

// UnmarshalJSON decodes Params, treating an unrecognized "kind" as
// ErrUnknownKind rather than a malformed-payload error.
func (p *Params) UnmarshalJSON(data []byte) error {
	var wire paramsWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch wire.Kind {
	case ParamsImageGeneration:
		*p = Params{
			Kind: ParamsImageGeneration,
			ImageGeneration: &ImageGenerationParams{
				Prompt:         wire.Prompt,
				Iterations:     wire.Iterations,
				NumberOfImages: wire.NumberOfImages,
			},
		}
	case ParamsChatMessageGen:
		*p = Params{Kind: ParamsChatMessageGen, ChatMessageGen: &ChatMessageGenerationParams{}}
	default:
		return fmt.Errorf("task: unmarshal params: %w: %q", ErrUnknownKind, wire.Kind)
	}
	return nil
}

// StatusKind discriminates the Status tagged union.
type StatusKind string

const (
	StatusPending    StatusKind = "pending"
	StatusInProgress StatusKind = "in_progress"
	StatusFinished   StatusKind = "finished"
)

// InProgressDetails carries the current position of an in-flight task.
type InProgressDetails struct {
	CurrentImage int `json:"current_image"`
	CurrentStep  int `json:"current_step"`
	TotalSteps   int `json:"total_steps"`
}

// Status is the tagged union of task lifecycle states.
type Status struct {
	Kind       StatusKind
	InProgress *InProgressDetails
}

// Pending returns the Pending status variant.
func Pending() Status { return Status{Kind: StatusPending} }

// Finished returns the Finished status variant.
func Finished() Status { return Status{Kind: StatusFinished} }

// NewInProgress returns the InProgress status variant.
func NewInProgress(currentImage, currentStep, totalSteps int) Status {
	return Status{
		Kind: StatusInProgress,
		InProgress: &InProgressDetails{
			CurrentImage: currentImage,
			CurrentStep:  currentStep,
			TotalSteps:   totalSteps,
		},
	}
}

// IsPending reports whether this status is the Pending variant — the
// value the persisted is_pending column must stay in sync with.
func (s Status) IsPending() bool { return s.Kind == StatusPending }

// IsTerminal reports whether the status is Finished.
func (s Status) IsTerminal() bool { return s.Kind == StatusFinished }

// Validate reports ErrInvalidProgress if an InProgress status is out of
// range: current_step must not exceed total_steps, and when numberOfImages
// is positive, current_image must stay within it. Other status kinds always
// validate.
func (s Status) Validate(numberOfImages int) error {
	if s.Kind != StatusInProgress || s.InProgress == nil {
		return nil
	}
	d := s.InProgress
	if d.CurrentStep > d.TotalSteps {
		return ErrInvalidProgress
	}
	if numberOfImages > 0 && d.CurrentImage >= numberOfImages {
		return ErrInvalidProgress
	}
	return nil
}

type statusWire struct {
	Kind         StatusKind `json:"kind"`
	CurrentImage int        `json:"current_image,omitempty"`
	CurrentStep  int        `json:"current_step,omitempty"`
	TotalSteps   int        `json:"total_steps,omitempty"`
}

// MarshalJSON encodes Status with an explicit "kind" tag.
func (s Status) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case StatusPending, StatusFinished:
		return json.Marshal(statusWire{Kind: s.Kind})
	case StatusInProgress:
		if s.InProgress == nil {
			return nil, fmt.Errorf("task: in_progress status missing payload")
		}
		return json.Marshal(statusWire{
			Kind:         StatusInProgress,
			CurrentImage: s.InProgress.CurrentImage,
			CurrentStep:  s.InProgress.CurrentStep,
			TotalSteps:   s.InProgress.TotalSteps,
		})
	default:
		return nil, fmt.Errorf("task: marshal status: %w: %q", ErrUnknownKind, s.Kind)
	}
}

// UnmarshalJSON decodes Status, treating an unrecognized "kind" as
// ErrUnknownKind.
func (s *Status) UnmarshalJSON(data []byte) error {
	var wire statusWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch wire.Kind {
	case StatusPending:
		*s = Pending()
	case StatusFinished:
		*s = Finished()
	case StatusInProgress:
		*s = NewInProgress(wire.CurrentImage, wire.CurrentStep, wire.TotalSteps)
	default:
		return fmt.Errorf("task: unmarshal status: %w: %q", ErrUnknownKind, wire.Kind)
	}
	return nil
}

// Task is the central dispatch-plane record.
type Task struct {
	TaskID    string    `json:"task_id"`
	UserID    *string   `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Params    Params    `json:"params"`
	Status    Status    `json:"status"`
}
