// Package guide models the step-by-step page tour as a pure state machine.
//
// Transition never touches a page. It returns the next State and a list of
// Effects (show a step, hide the popup, update the controls, persist, alert)
// for the caller to apply, so the same rules serve the browser widget and
// the API that exposes them.
package guide

import (
	"path"
	"strings"
)

// NoGuideMessage is shown when a page has no steps.
const NoGuideMessage = "Aucun guide disponible pour cette page."

// Step is one tooltip anchored on a page element.
type Step struct {
	Target      string `json:"target"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Position    string `json:"position"`
}

// State is what the widget persists between page loads.
type State struct {
	Active bool `json:"active"`
	Step   int  `json:"step"`
}

// Event is a user or page action.
type Event string

const (
	EventStart    Event = "start"
	EventNext     Event = "next"
	EventPrevious Event = "previous"
	EventCancel   Event = "cancel"
	EventStop     Event = "stop"
	EventToggle   Event = "toggle"
	EventRestore  Event = "restore"
)

// Valid reports whether e is a known event.
func (e Event) Valid() bool {
	switch e {
	case EventStart, EventNext, EventPrevious, EventCancel, EventStop, EventToggle, EventRestore:
		return true
	}
	return false
}

// EffectKind names a side effect the caller must apply.
type EffectKind string

const (
	EffectShowStep EffectKind = "show_step"
	EffectHide     EffectKind = "hide"
	EffectControls EffectKind = "controls"
	EffectPersist  EffectKind = "persist"
	EffectAlert    EffectKind = "alert"
)

// Effect is one side effect. Only the fields relevant to Kind are set.
type Effect struct {
	Kind    EffectKind `json:"kind"`
	Index   int        `json:"index,omitempty"`
	Total   int        `json:"total,omitempty"`
	Step    *Step      `json:"step,omitempty"`
	IsLast  bool       `json:"is_last,omitempty"`
	Active  bool       `json:"active,omitempty"`
	State   *State     `json:"state,omitempty"`
	Message string     `json:"message,omitempty"`
}

// Transition applies ev to s. present reports whether a step's target exists
// on the page; nil means every target exists. Every transition ends with a
// persist effect carrying the new state.
func Transition(s State, ev Event, steps []Step, present func(target string) bool) (State, []Effect) {
	if present == nil {
		present = func(string) bool { return true }
	}
	m := machine{steps: steps, present: present}

	switch ev {
	case EventStart:
		return m.start(s)
	case EventNext:
		if !s.Active {
			return m.done(s)
		}
		if !m.valid(s.Step) {
			return m.deactivate(State{Step: 0})
		}
		return m.showFrom(s.Step+1, 1)
	case EventPrevious:
		if !s.Active {
			return m.done(s)
		}
		if !m.valid(s.Step) {
			return m.deactivate(State{Step: 0})
		}
		if s.Step <= 0 {
			return m.done(s)
		}
		return m.previous(s)
	case EventCancel:
		return m.deactivate(State{Step: 0})
	case EventStop:
		return m.deactivate(State{Step: s.Step})
	case EventToggle:
		if s.Active {
			return m.deactivate(State{Step: s.Step})
		}
		return m.start(s)
	case EventRestore:
		if !s.Active {
			m.effects = append(m.effects, Effect{Kind: EffectControls, Active: false})
			return m.done(State{Step: s.Step})
		}
		if s.Step < 0 || s.Step >= len(steps) {
			return m.deactivate(State{Step: 0})
		}
		return m.showFrom(s.Step, 1)
	default:
		return m.done(s)
	}
}

type machine struct {
	steps   []Step
	present func(string) bool
	effects []Effect
}

// valid reports whether a persisted index can come from this tour. -1 is the
// position before the first step.
func (m *machine) valid(i int) bool {
	return i >= -1 && i < len(m.steps)
}

func (m *machine) start(s State) (State, []Effect) {
	if len(m.steps) == 0 {
		m.effects = append(m.effects, Effect{Kind: EffectAlert, Message: NoGuideMessage})
		return m.done(State{Step: s.Step})
	}
	return m.showFrom(0, 1)
}

// showFrom shows the first present step at or after i, walking in dir.
// Walking forward past the last step ends the tour.
func (m *machine) showFrom(i, dir int) (State, []Effect) {
	for i >= 0 && i < len(m.steps) && !m.present(m.steps[i].Target) {
		i += dir
	}
	if i >= len(m.steps) {
		return m.deactivate(State{Step: i})
	}
	if i < 0 {
		return m.deactivate(State{Step: 0})
	}
	step := m.steps[i]
	m.effects = append(m.effects,
		Effect{Kind: EffectShowStep, Index: i, Total: len(m.steps), Step: &step, IsLast: i == len(m.steps)-1},
		Effect{Kind: EffectControls, Active: true},
	)
	return m.done(State{Active: true, Step: i})
}

func (m *machine) previous(s State) (State, []Effect) {
	for i := s.Step - 1; i >= 0; i-- {
		if m.present(m.steps[i].Target) {
			return m.showFrom(i, -1)
		}
	}
	// Nothing earlier is on the page; stay put.
	return m.showFrom(s.Step, 1)
}

func (m *machine) deactivate(s State) (State, []Effect) {
	s.Active = false
	m.effects = append(m.effects,
		Effect{Kind: EffectHide},
		Effect{Kind: EffectControls, Active: false},
	)
	return m.done(s)
}

func (m *machine) done(s State) (State, []Effect) {
	persisted := s
	m.effects = append(m.effects, Effect{Kind: EffectPersist, State: &persisted})
	return s, m.effects
}

// Steps returns the tour for a page path such as "/admin.html". An empty
// path means the home page. Unknown pages have no steps.
func Steps(page string) []Step {
	name := path.Base(strings.TrimSpace(page))
	if name == "" || name == "." || name == "/" {
		name = "index.html"
	}
	steps := catalog[name]
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

// Pages lists the pages that have a tour.
func Pages() []string {
	return []string{"index.html", "admin.html", "employee-login.html", "employee-dashboard.html", "employee-profile.html"}
}

var catalog = map[string][]Step{
	"index.html": {
		{Target: "h1", Title: "Bienvenue sur Zalagh Plancher", Description: "Cette page d'accueil vous permet de naviguer vers les différentes sections de l'application.", Position: "bottom"},
		{Target: "form", Title: "Connexion", Description: "Utilisez ce formulaire pour vous connecter en tant qu'administrateur ou employé.", Position: "right"},
		{Target: ".gallery", Title: "Galerie", Description: "Découvrez nos projets et notre flotte de véhicules.", Position: "left"},
	},
	"admin.html": {
		{Target: ".brand", Title: "Espace Administrateur", Description: "Bienvenue dans l'espace administrateur. Ici vous pouvez gérer tous les aspects de l'entreprise.", Position: "bottom"},
		{Target: "nav", Title: "Navigation Admin", Description: "Utilisez ces onglets pour naviguer entre les différentes sections : Employés, Demandes, Assistant.", Position: "bottom"},
		{Target: "#section-employes", Title: "Gestion des Employés", Description: "Ici vous pouvez ajouter, modifier et gérer les employés de l'entreprise.", Position: "top"},
		{Target: "#section-demandes", Title: "Gestion des Demandes", Description: "Consultez et gérez toutes les demandes de clients.", Position: "top"},
		{Target: "#section-assistant", Title: "Assistant IA", Description: "Utilisez l'assistant IA pour obtenir de l'aide et des réponses automatiques.", Position: "top"},
	},
	"employee-login.html": {
		{Target: "h1", Title: "Connexion Employé", Description: "Connectez-vous avec vos identifiants employé pour accéder à votre espace personnel.", Position: "bottom"},
		{Target: "form", Title: "Formulaire de Connexion", Description: "Entrez votre email et mot de passe pour accéder à votre tableau de bord.", Position: "right"},
	},
	"employee-dashboard.html": {
		{Target: ".brand", Title: "Tableau de Bord Employé", Description: "Bienvenue dans votre espace personnel. Ici vous pouvez voir vos notifications et gérer vos tâches.", Position: "bottom"},
		{Target: "nav", Title: "Navigation Employé", Description: "Utilisez ces onglets pour naviguer entre vos différentes sections.", Position: "bottom"},
		{Target: "#section-notifications", Title: "Notifications", Description: "Consultez vos notifications et répondez aux messages de l'administration.", Position: "top"},
		{Target: "#section-demandes", Title: "Mes Demandes", Description: "Gérez les demandes qui vous sont assignées.", Position: "top"},
	},
	"employee-profile.html": {
		{Target: ".brand", Title: "Profil Employé", Description: "Gérez votre profil et vos informations personnelles.", Position: "bottom"},
		{Target: "form", Title: "Informations Personnelles", Description: "Mettez à jour vos informations personnelles et changez votre mot de passe.", Position: "right"},
	},
}
