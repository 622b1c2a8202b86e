package polling

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
)

const DefaultMatchWindow = 2 * time.Minute

// LocalComment is either a Temporary (sent, not yet seen from the server) or
// a Confirmed comment.
type LocalComment interface {
	localComment()
}

// Temporary is an optimistic comment shown before the server echoes it.
// ServerID is set once the post succeeded; AuthorID may be empty when the
// sender doesn't know its own id yet.
type Temporary struct {
	LocalID   string
	ServerID  string
	AuthorID  string
	Text      string
	HasImage  bool
	CreatedAt time.Time
}

// Confirmed is a comment returned by the server.
type Confirmed struct {
	models.CommentView
}

func (Temporary) localComment() {}
func (Confirmed) localComment() {}

func (t Temporary) matches(c models.CommentView, window time.Duration) bool {
	if t.ServerID != "" {
		return t.ServerID == c.ID
	}
	if t.AuthorID != "" && c.AuthorID != t.AuthorID {
		return false
	}
	if c.Text != t.Text || (c.ImagePath != "") != t.HasImage {
		return false
	}
	d := c.CreatedAt.Sub(t.CreatedAt)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// Thread is the local view of one file's discussion.
type Thread struct {
	mu        sync.Mutex
	window    time.Duration
	confirmed []Confirmed
	pending   []Temporary
	known     map[string]bool
}

func NewThread(matchWindow time.Duration) *Thread {
	if matchWindow <= 0 {
		matchWindow = DefaultMatchWindow
	}
	return &Thread{window: matchWindow, known: make(map[string]bool)}
}

// AddTemporary records a comment the user just sent.
func (t *Thread) AddTemporary(authorID, text string, hasImage bool, at time.Time) Temporary {
	tmp := Temporary{
		LocalID:   "local-" + uuid.NewString(),
		AuthorID:  authorID,
		Text:      text,
		HasImage:  hasImage,
		CreatedAt: at,
	}
	t.mu.Lock()
	t.pending = append(t.pending, tmp)
	t.mu.Unlock()
	return tmp
}

// Discard drops a temporary whose send failed.
func (t *Thread) Discard(localID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, tmp := range t.pending {
		if tmp.LocalID == localID {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Confirm binds a temporary to the id the server assigned it. If that id was
// already fetched the temporary is dropped, otherwise the next Reconcile that
// sees the id removes it regardless of clock skew.
func (t *Thread) Confirm(localID, serverID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.pending {
		if t.pending[i].LocalID != localID {
			continue
		}
		if t.known[serverID] {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
		} else {
			t.pending[i].ServerID = serverID
		}
		return
	}
}

// Reconcile merges a fetched thread. It returns the comments whose ids were
// not known before, excluding those that confirm one of our temporaries.
// Each confirmed arrival removes at most one temporary; unmatched
// temporaries stay.
func (t *Thread) Reconcile(fetched []models.CommentView) []models.CommentView {
	t.mu.Lock()
	defer t.mu.Unlock()

	var fresh []models.CommentView
	for _, c := range fetched {
		if t.known[c.ID] {
			continue
		}
		t.known[c.ID] = true
		if i := t.matchTemporary(c); i >= 0 {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			continue
		}
		fresh = append(fresh, c)
	}

	t.confirmed = t.confirmed[:0]
	for _, c := range fetched {
		t.confirmed = append(t.confirmed, Confirmed{c})
	}
	return fresh
}

// matchTemporary prefers a temporary bound to c's id over a content match.
func (t *Thread) matchTemporary(c models.CommentView) int {
	for i, tmp := range t.pending {
		if tmp.ServerID == c.ID {
			return i
		}
	}
	for i, tmp := range t.pending {
		if tmp.ServerID == "" && tmp.matches(c, t.window) {
			return i
		}
	}
	return -1
}

// Seed marks ids as known without reporting them. Temporaries sent before
// the first fetch are still confirmed by it.
func (t *Thread) Seed(fetched []models.CommentView) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.confirmed = t.confirmed[:0]
	for _, c := range fetched {
		if !t.known[c.ID] {
			if i := t.matchTemporary(c); i >= 0 {
				t.pending = append(t.pending[:i], t.pending[i+1:]...)
			}
		}
		t.known[c.ID] = true
		t.confirmed = append(t.confirmed, Confirmed{c})
	}
}

// Entries returns confirmed comments in server order followed by pending
// temporaries, oldest first.
func (t *Thread) Entries() []LocalComment {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]LocalComment, 0, len(t.confirmed)+len(t.pending))
	for _, c := range t.confirmed {
		out = append(out, c)
	}
	pending := append([]Temporary(nil), t.pending...)
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	for _, p := range pending {
		out = append(out, p)
	}
	return out
}

// Pending returns the number of unconfirmed temporaries.
func (t *Thread) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
