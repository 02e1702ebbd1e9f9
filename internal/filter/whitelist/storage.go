package whitelist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/AdguardTeam/golibs/errors"
	renameio "github.com/google/renameio/v2"
)

// stateVersion is the version of the state file format.
//
// NOTE:  Increment it when changing the fields of [fileState].
const stateVersion = 1

// errStateVersion is returned when the state file has a different version.
const errStateVersion errors.Error = "unsupported state version"

// fileState is the structure of the JSON state file.
type fileState struct {
	Whitelisted []string `json:"whitelisted"`
	Blocklisted []string `json:"blocklisted"`
	DefaultMode bool     `json:"default_mode"`
	Version     int32    `json:"version"`
}

// storage keeps the state of the whitelist in a JSON file.
type storage struct {
	logger *slog.Logger
	path   string
}

// load returns the state from the file.  If the file doesn't exist, s is nil.
func (s *storage) load(ctx context.Context) (st *State, err error) {
	data, err := s.loadFromFile()
	if err != nil {
		return nil, fmt.Errorf("loading from file: %w", err)
	}

	if data == nil {
		s.logger.InfoContext(ctx, "file not present", "path", s.path)

		return nil, nil
	}

	if data.Version != stateVersion {
		return nil, fmt.Errorf("%w: %d, want %d", errStateVersion, data.Version, stateVersion)
	}

	return &State{
		Whitelisted: data.Whitelisted,
		Blocklisted: data.Blocklisted,
		DefaultMode: data.DefaultMode,
	}, nil
}

// loadFromFile decodes the state file.
func (s *storage) loadFromFile() (data *fileState, err error) {
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// File could be deleted or not yet created, go on.
			return nil, nil
		}

		return nil, err
	}
	defer func() { err = errors.WithDeferred(err, file.Close()) }()

	data = &fileState{}
	err = json.NewDecoder(file).Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding json: %w", err)
	}

	return data, nil
}

// store writes st to the file atomically.
func (s *storage) store(ctx context.Context, st *State) (err error) {
	b, err := json.Marshal(&fileState{
		Whitelisted: st.Whitelisted,
		Blocklisted: st.Blocklisted,
		DefaultMode: st.DefaultMode,
		Version:     stateVersion,
	})
	if err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}

	err = renameio.WriteFile(s.path, b, 0o600)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return err
	}

	s.logger.DebugContext(
		ctx,
		"saved",
		"path", s.path,
		"whitelisted", len(st.Whitelisted),
		"blocklisted", len(st.Blocklisted),
	)

	return nil
}
