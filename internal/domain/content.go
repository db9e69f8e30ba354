package domain

import (
	"encoding/json"
	"fmt"
)

// ActivityType tags the concrete Activity variant on the wire.
type ActivityType string

const (
	TypeLesson ActivityType = "lesson"
	TypeQuiz   ActivityType = "quiz"
	TypeGame   ActivityType = "game"
)

// DefaultGameXP is the reward of a game that does not set one.
const DefaultGameXP = 30

// Activity is a completable unit of a module. It is implemented only by
// Lesson, Quiz and Game.
type Activity interface {
	ActivityID() string
	Type() ActivityType
	Reward() int
	activity()
}

// Lesson is a content item; reading it completes it.
type Lesson struct {
	ID    string
	Title string
	XP    int
}

// Quiz is a scored question set with a pass threshold.
type Quiz struct {
	ID        string
	Title     string
	XP        int
	Questions []Question
}

// Game is a binary-completion challenge.
type Game struct {
	ID    string
	Title string
	XP    int
}

func (a Lesson) ActivityID() string { return a.ID }
func (a Lesson) Type() ActivityType { return TypeLesson }
func (a Lesson) Reward() int        { return a.XP }
func (Lesson) activity()            {}

func (a Quiz) ActivityID() string { return a.ID }
func (a Quiz) Type() ActivityType { return TypeQuiz }
func (a Quiz) Reward() int        { return a.XP }
func (Quiz) activity()            {}

func (a Game) ActivityID() string { return a.ID }
func (a Game) Type() ActivityType { return TypeGame }
func (a Game) Reward() int {
	if a.XP == 0 {
		return DefaultGameXP
	}
	return a.XP
}
func (Game) activity() {}

// Question is a multiple-choice question with a single correct option index.
type Question struct {
	ID       string   `json:"id" yaml:"id"`
	Prompt   string   `json:"prompt" yaml:"prompt"`
	Options  []string `json:"options" yaml:"options"`
	Correct  int      `json:"correct" yaml:"correct"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
}

// Module is an ordered list of activities.
type Module struct {
	ID         string
	Title      string
	Activities []Activity
}

// Activity looks up an activity by ID.
func (m Module) Activity(id string) (Activity, error) {
	for _, a := range m.Activities {
		if a.ActivityID() == id {
			return a, nil
		}
	}
	return nil, ErrActivityNotFound
}

// TotalXP is the maximum XP a user can roll up in this module.
func (m Module) TotalXP() int {
	total := 0
	for _, a := range m.Activities {
		total += a.Reward()
	}
	return total
}

// ModuleDoc is the serialized form of a Module used by content loaders.
type ModuleDoc struct {
	ID         string        `json:"id" yaml:"id"`
	Title      string        `json:"title" yaml:"title"`
	Activities []ActivityDoc `json:"activities" yaml:"activities"`
}

// ActivityDoc is the serialized form of an Activity.
type ActivityDoc struct {
	ID        string       `json:"id" yaml:"id"`
	Type      ActivityType `json:"type" yaml:"type"`
	Title     string       `json:"title" yaml:"title"`
	XP        int          `json:"xp" yaml:"xp"`
	Questions []Question   `json:"questions,omitempty" yaml:"questions,omitempty"`
}

// Module converts the document into a Module.
func (d ModuleDoc) Module() (Module, error) {
	m := Module{ID: d.ID, Title: d.Title, Activities: make([]Activity, 0, len(d.Activities))}
	for _, ad := range d.Activities {
		a, err := ad.Activity()
		if err != nil {
			return Module{}, fmt.Errorf("module %s: %w", d.ID, err)
		}
		m.Activities = append(m.Activities, a)
	}
	return m, nil
}

// Activity converts the document into its concrete variant.
func (d ActivityDoc) Activity() (Activity, error) {
	switch d.Type {
	case TypeLesson:
		return Lesson{ID: d.ID, Title: d.Title, XP: d.XP}, nil
	case TypeQuiz:
		return Quiz{ID: d.ID, Title: d.Title, XP: d.XP, Questions: d.Questions}, nil
	case TypeGame:
		return Game{ID: d.ID, Title: d.Title, XP: d.XP}, nil
	}
	return nil, fmt.Errorf("activity %s: %w", d.ID, ErrUnknownActivity)
}

// Doc converts the module back to its serialized form.
func (m Module) Doc() ModuleDoc {
	doc := ModuleDoc{ID: m.ID, Title: m.Title, Activities: make([]ActivityDoc, 0, len(m.Activities))}
	for _, a := range m.Activities {
		ad := ActivityDoc{ID: a.ActivityID(), Type: a.Type()}
		switch v := a.(type) {
		case Lesson:
			ad.Title, ad.XP = v.Title, v.XP
		case Quiz:
			ad.Title, ad.XP, ad.Questions = v.Title, v.XP, v.Questions
		case Game:
			ad.Title, ad.XP = v.Title, v.XP
		}
		doc.Activities = append(doc.Activities, ad)
	}
	return doc
}

func (m Module) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Doc())
}

func (m *Module) UnmarshalJSON(data []byte) error {
	var doc ModuleDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	decoded, err := doc.Module()
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}

// Content is the read-only learning material: modules plus the challenge question bank.
type Content struct {
	Modules   []ModuleDoc `json:"modules" yaml:"modules"`
	Challenge []Question  `json:"challenge" yaml:"challenge"`
}
