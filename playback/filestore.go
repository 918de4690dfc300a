package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fileStore keeps playback state in one JSON file per channel under dir.
// A single process-wide mutex provides the same at-most-once consume guarantee
// the Postgres store gets from per-row atomicity; this backend is only for
// single-instance deployments that want playback state off the shared database.
type fileStore struct {
	dir string
	mu  sync.Mutex
}

func newFileStore(dir string) (*fileStore, error) {
	if dir == "" {
		dir = "data"
	}
	stateDir := filepath.Join(dir, "playback")
	if err := os.MkdirAll(stateDir, 0o750); err != nil {
		return nil, fmt.Errorf("create playback state dir: %w", err)
	}
	return &fileStore{dir: stateDir}, nil
}

type mailboxEntry struct {
	Nonce    string          `json:"nonce"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	IssuedAt time.Time       `json:"issued_at"`
}

type channelState struct {
	NowPlaying *NowPlaying             `json:"now_playing,omitempty"`
	Mailbox    map[string]mailboxEntry `json:"mailbox,omitempty"`
}

func (s *fileStore) path(channel string) string {
	return filepath.Join(s.dir, channel+".json")
}

// load reads a channel's state; a missing file is an empty state.
func (s *fileStore) load(channel string) (*channelState, error) {
	b, err := os.ReadFile(s.path(channel))
	if os.IsNotExist(err) {
		return &channelState{Mailbox: map[string]mailboxEntry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read playback state: %w", err)
	}
	var st channelState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode playback state: %w", err)
	}
	if st.Mailbox == nil {
		st.Mailbox = map[string]mailboxEntry{}
	}
	return &st, nil
}

// save writes via temp-file rename so a crash never leaves a torn file.
func (s *fileStore) save(channel string, st *channelState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode playback state: %w", err)
	}
	tmp := s.path(channel) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write playback state: %w", err)
	}
	if err := os.Rename(tmp, s.path(channel)); err != nil {
		return fmt.Errorf("rename playback state: %w", err)
	}
	return nil
}

func (s *fileStore) SetNowPlaying(_ context.Context, np NowPlaying) (NowPlaying, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load(np.Channel)
	if err != nil {
		return np, err
	}
	now := time.Now().UTC()
	np.StartedAt = now
	np.UpdatedAt = now
	st.NowPlaying = &np
	if err := s.save(np.Channel, st); err != nil {
		return np, err
	}
	return np, nil
}

func (s *fileStore) GetNowPlaying(_ context.Context, channel string) (*NowPlaying, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load(channel)
	if err != nil {
		return nil, err
	}
	if st.NowPlaying == nil {
		return nil, ErrNoState
	}
	np := *st.NowPlaying
	return &np, nil
}

func (s *fileStore) Heartbeat(_ context.Context, channel, controllerID string, timeout time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load(channel)
	if err != nil {
		return false, err
	}
	if st.NowPlaying == nil {
		return false, nil
	}
	now := time.Now().UTC()
	owner := st.NowPlaying.ControllerID
	if owner != "" && owner != controllerID && !ShouldTakeOver(now, st.NowPlaying.UpdatedAt, timeout) {
		return false, nil
	}
	st.NowPlaying.ControllerID = controllerID
	st.NowPlaying.UpdatedAt = now
	if err := s.save(channel, st); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStore) Issue(_ context.Context, channel, kind string, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load(channel)
	if err != nil {
		return "", err
	}
	nonce := uuid.New().String()
	st.Mailbox[kind] = mailboxEntry{Nonce: nonce, Payload: payload, IssuedAt: time.Now().UTC()}
	if err := s.save(channel, st); err != nil {
		return "", err
	}
	return nonce, nil
}

func (s *fileStore) PollAndConsume(_ context.Context, channel, kind string, window time.Duration) (*Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load(channel)
	if err != nil {
		return nil, err
	}
	entry, ok := st.Mailbox[kind]
	if !ok {
		return nil, nil
	}
	// Consume-or-expire: the entry is removed either way, so late observers
	// and concurrent pollers both see nothing.
	delete(st.Mailbox, kind)
	if err := s.save(channel, st); err != nil {
		return nil, err
	}
	if time.Since(entry.IssuedAt) > window {
		return nil, nil
	}
	return &Command{Kind: kind, Nonce: entry.Nonce, Payload: entry.Payload, IssuedAt: entry.IssuedAt}, nil
}

func (s *fileStore) SweepExpired(_ context.Context, windows map[string]time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list playback state dir: %w", err)
	}
	var total int64
	now := time.Now()
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		channel := name[:len(name)-len(".json")]
		st, err := s.load(channel)
		if err != nil {
			continue
		}
		changed := false
		for kind, entry := range st.Mailbox {
			window, ok := windows[kind]
			if !ok {
				window = 5 * time.Second
			}
			if now.Sub(entry.IssuedAt) > window {
				delete(st.Mailbox, kind)
				total++
				changed = true
			}
		}
		if changed {
			if err := s.save(channel, st); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}
