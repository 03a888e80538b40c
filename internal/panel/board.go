// Package panel keeps what the room panel would show. Rendering happens on
// the codec; the board only holds the state the orchestrator drives.
package panel

import (
	"sync"
	"time"
)

// Surface identifies which set of controls the panel shows.
type Surface string

const (
	SurfaceIdle   Surface = "idle"
	SurfaceInCall Surface = "in_call"
)

// Prompt is a pending operator confirmation.
type Prompt struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Scope     string    `json:"scope,omitempty"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Alert is the most recent operator-facing message.
type Alert struct {
	Title    string    `json:"title"`
	Text     string    `json:"text"`
	RaisedAt time.Time `json:"raised_at"`
}

// Progress is the combine progress indicator.
type Progress struct {
	Visible bool `json:"visible"`
	Percent int  `json:"percent"`
}

// Snapshot is a copy of the board at one instant.
type Snapshot struct {
	Prompt   *Prompt  `json:"prompt,omitempty"`
	Alert    *Alert   `json:"alert,omitempty"`
	Progress Progress `json:"progress"`
	Banner   string   `json:"banner,omitempty"`
	Surface  Surface  `json:"surface"`
}

// Board is safe for concurrent use.
type Board struct {
	mu       sync.RWMutex
	prompt   *Prompt
	alert    *Alert
	progress Progress
	banner   string
	surface  Surface
	now      func() time.Time
}

func NewBoard() *Board {
	return &Board{surface: SurfaceIdle, now: time.Now}
}

func (b *Board) ShowPrompt(prompt Prompt) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompt = &prompt
}

// ClearPrompt removes the prompt if its id matches. An empty id clears any prompt.
func (b *Board) ClearPrompt(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.prompt != nil && (id == "" || b.prompt.ID == id) {
		b.prompt = nil
	}
}

func (b *Board) Alert(title, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alert = &Alert{Title: title, Text: text, RaisedAt: b.now().UTC()}
}

func (b *Board) ClearAlert() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alert = nil
}

// SetProgress shows the indicator at percent, clamped to 0..100.
func (b *Board) SetProgress(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress = Progress{Visible: true, Percent: percent}
}

func (b *Board) ResetProgress() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress = Progress{}
}

func (b *Board) ShowBanner(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.banner = text
}

func (b *Board) ClearBanner() {
	b.ShowBanner("")
}

// ShowInCallControls swaps the idle room-status surfaces for in-call controls.
func (b *Board) ShowInCallControls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.surface = SurfaceInCall
}

func (b *Board) ShowIdleSurfaces() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.surface = SurfaceIdle
}

func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snapshot := Snapshot{
		Progress: b.progress,
		Banner:   b.banner,
		Surface:  b.surface,
	}
	if b.prompt != nil {
		prompt := *b.prompt
		snapshot.Prompt = &prompt
	}
	if b.alert != nil {
		alert := *b.alert
		snapshot.Alert = &alert
	}
	return snapshot
}
